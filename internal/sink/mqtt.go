package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"camclip/pkg/models"
)

// MQTTOptions configures an MQTTSink
type MQTTOptions struct {
	Broker   string // host:port or a full tcp:// URL
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Target   Target
	Mode     PayloadMode
}

// MQTTSink publishes the remote record of every clip to a broker topic
type MQTTSink struct {
	client mqtt.Client
	opts   MQTTOptions
	log    logrus.FieldLogger
}

// NewMQTTSink connects to the broker and returns a sink publishing to it
func NewMQTTSink(ctx context.Context, opts MQTTOptions, log logrus.FieldLogger) (*MQTTSink, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithFields(logrus.Fields{"sink": "mqtt", "broker": opts.Broker})

	broker := opts.Broker
	if !hasScheme(broker) {
		broker = "tcp://" + broker
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(broker)
	co.SetClientID(opts.ClientID)
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	co.SetAutoReconnect(true)
	co.SetConnectRetry(true)
	co.SetConnectRetryInterval(2 * time.Second)
	co.SetMaxReconnectInterval(30 * time.Second)
	co.OnConnect = func(mqtt.Client) {
		log.Info("MQTT connection established")
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost, will auto-reconnect")
	}

	client := mqtt.NewClient(co)
	token := client.Connect()

	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return newMQTTSink(client, opts, log), nil
}

func newMQTTSink(client mqtt.Client, opts MQTTOptions, log logrus.FieldLogger) *MQTTSink {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.Target.DBMS == "" {
		opts.Target.DBMS = DefaultDBMS
	}
	if opts.QoS > 2 {
		opts.QoS = 1
	}
	return &MQTTSink{client: client, opts: opts, log: log}
}

// Name implements Sink
func (s *MQTTSink) Name() string { return "mqtt" }

// Emit publishes the clip record
func (s *MQTTSink) Emit(ctx context.Context, clip *models.Clip, meta *models.ClipMetadata) error {
	if !s.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt not connected")
	}

	payload, err := json.Marshal(BuildPayload(s.opts.Target, s.opts.Mode, clip, meta))
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	token := s.client.Publish(s.opts.Topic, s.opts.QoS, false, payload)
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("publish timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"clip":  meta.FileName,
		"topic": s.opts.Topic,
		"size":  len(payload),
	}).Debug("Clip record published")
	return nil
}

// Close disconnects from the broker
func (s *MQTTSink) Close() error {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	return nil
}

func hasScheme(broker string) bool {
	for _, p := range []string{"tcp://", "ssl://", "tls://", "ws://", "wss://", "mqtt://", "mqtts://"} {
		if strings.HasPrefix(broker, p) {
			return true
		}
	}
	return false
}
