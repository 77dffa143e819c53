package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"camclip/internal/naming"
	"camclip/pkg/models"
)

// Remote endpoint defaults
const (
	DefaultTopic         = "livefeed"
	DefaultDBMS          = "livefeed"
	DefaultRemoteTimeout = 30 * time.Second
	UserAgent            = "AnyLog/1.23"
)

// RemoteOptions configures a RemoteSink
type RemoteOptions struct {
	Conn    naming.Conn
	Target  Target
	Topic   string
	Mode    PayloadMode
	Timeout time.Duration
	Client  *http.Client // Optional, replaces the default client
}

// RemoteSink POSTs one JSON record per clip to an ingestion endpoint.
// Delivery is best effort: a failed POST is returned to the caller and
// never retried.
type RemoteSink struct {
	opts     RemoteOptions
	endpoint string
	client   *http.Client
	log      logrus.FieldLogger
}

// NewRemoteSink creates a remote sink
func NewRemoteSink(opts RemoteOptions, log logrus.FieldLogger) *RemoteSink {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.Target.DBMS == "" {
		opts.Target.DBMS = DefaultDBMS
	}
	if opts.Mode == "" {
		opts.Mode = PayloadMetadata
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRemoteTimeout
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &RemoteSink{
		opts:     opts,
		endpoint: opts.Conn.URL(),
		client:   client,
		log: log.WithFields(logrus.Fields{
			"sink":     "remote",
			"endpoint": opts.Conn.Address(),
		}),
	}
}

// Name implements Sink
func (s *RemoteSink) Name() string { return "remote" }

// Emit submits the clip record
func (s *RemoteSink) Emit(ctx context.Context, clip *models.Clip, meta *models.ClipMetadata) error {
	payload := BuildPayload(s.opts.Target, s.opts.Mode, clip, meta)
	return s.Post(ctx, payload)
}

// Post submits an already built payload
func (s *RemoteSink) Post(ctx context.Context, payload *models.RemotePayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("command", "data")
	req.Header.Set("topic", s.opts.Topic)
	req.Header.Set("User-Agent", UserAgent)
	if s.opts.Conn.HasAuth() {
		req.SetBasicAuth(s.opts.Conn.User, s.opts.Conn.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send %s to %s: %w", payload.FileName, s.opts.Conn.Address(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("endpoint %s rejected %s: %s: %s",
			s.opts.Conn.Address(), payload.FileName, resp.Status, strings.TrimSpace(string(snippet)))
	}
	io.Copy(io.Discard, resp.Body)

	s.log.WithFields(logrus.Fields{
		"clip":  payload.FileName,
		"table": payload.Table,
		"bytes": len(body),
	}).Debug("Clip record delivered")
	return nil
}
