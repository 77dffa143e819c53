package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"camclip/config"
	"camclip/internal/encoder"
	"camclip/internal/metrics"
	"camclip/internal/segmenter"
	"camclip/internal/sink"
	"camclip/internal/storage"
	"camclip/internal/vision"
)

// openStorage creates the clip store selected by storage_type
func openStorage(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (storage.Storage, io.Closer, error) {
	switch cfg.StorageType {
	case "gcs":
		s, err := storage.NewGCSStorage(ctx, cfg.GCSBucket, cfg.GCSPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize GCS storage: %w", err)
		}
		log.WithFields(logrus.Fields{"bucket": cfg.GCSBucket, "prefix": cfg.GCSPrefix}).Info("Storage initialized: GCS")
		return s, s, nil

	case "s3":
		s, err := storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}
		log.WithFields(logrus.Fields{"bucket": cfg.S3Bucket, "prefix": cfg.S3Prefix}).Info("Storage initialized: S3")
		return s, closers(nil), nil

	default:
		s, err := storage.NewLocalStorage(cfg.OutputDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}
		log.WithField("dir", cfg.OutputDir).Info("Storage initialized: local directory")
		return s, closers(nil), nil
	}
}

// closers releases sink connections in reverse order
type closers []io.Closer

func (c closers) Close() error {
	for i := len(c) - 1; i >= 0; i-- {
		c[i].Close()
	}
	return nil
}

// buildRemote creates the HTTP remote sink, or nil when no remote_conn is set
func buildRemote(cfg *config.Config, log logrus.FieldLogger) (*sink.RemoteSink, error) {
	conn, ok, err := cfg.Remote()
	if err != nil || !ok {
		return nil, err
	}
	mode, err := sink.ParsePayloadMode(cfg.Payload)
	if err != nil {
		return nil, err
	}

	return sink.NewRemoteSink(sink.RemoteOptions{
		Conn:    conn,
		Target:  sink.Target{DBMS: cfg.DBName, Table: cfg.Table},
		Topic:   cfg.Topic,
		Mode:    mode,
		Timeout: cfg.RemoteTimeout,
	}, log), nil
}

// buildSinks assembles the clip destinations. The local sink is kept when
// keep_local is set or when no other destination is configured.
func buildSinks(ctx context.Context, cfg *config.Config, store storage.Storage, m *metrics.Metrics, log logrus.FieldLogger) (sink.Sink, io.Closer, error) {
	var (
		sinks  []sink.Sink
		opened closers
	)

	remote, err := buildRemote(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if remote != nil {
		sinks = append(sinks, sink.Instrument(remote, m, log))
	}

	if cfg.MQTTBroker != "" {
		mode, err := sink.ParsePayloadMode(cfg.Payload)
		if err != nil {
			return nil, nil, err
		}
		clientID := cfg.MQTTClientID
		if clientID == "" {
			clientID = "camclip-" + uuid.NewString()[:8]
		}
		mq, err := sink.NewMQTTSink(ctx, sink.MQTTOptions{
			Broker:   cfg.MQTTBroker,
			ClientID: clientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
			QoS:      byte(cfg.MQTTQoS),
			Target:   sink.Target{DBMS: cfg.DBName, Table: cfg.Table},
			Mode:     mode,
		}, log)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, sink.Instrument(mq, m, log))
		opened = append(opened, mq)
	}

	if cfg.KeepLocal || len(sinks) == 0 {
		local := sink.NewLocalFileSink(store, sink.LocalOptions{
			MetadataPath: cfg.MetadataPath(),
			MaxClips:     cfg.MaxClips,
		}, log, m)
		// Local first so a clip is on disk before it is announced
		sinks = append([]sink.Sink{sink.Instrument(local, m, log)}, sinks...)
	}

	if len(sinks) == 1 {
		return sinks[0], opened, nil
	}
	return sink.NewMulti(sinks...), opened, nil
}

// buildEncoder creates the clip encoder selected by encoder
func buildEncoder(cfg *config.Config, log logrus.FieldLogger) segmenter.Encoder {
	if cfg.Encoder == "ffmpeg" {
		return encoder.NewFFmpegEncoder(encoder.FFmpegOptions{Binary: cfg.FFmpegPath}, log)
	}
	return &vision.OpenCVEncoder{}
}
