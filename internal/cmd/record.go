package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"camclip/config"
	"camclip/httpServer"
	"camclip/internal/auth"
	"camclip/internal/console"
	"camclip/internal/metrics"
	"camclip/internal/preview"
	"camclip/internal/segmenter"
	"camclip/internal/vision"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the camera feed into clips",
	Long: `Record frames from a camera and cut them into clips of --interval seconds.

Each clip is stored in --output-dir together with one JSON line in its
metadata log. With --remote-conn every clip is also POSTed to a remote
ingestion endpoint, with --mqtt-broker it is published to an MQTT topic.

While recording, type o to open a preview window, q to quit, and h or w to
change the capture height or width.`,
	Args: cobra.NoArgs,
	RunE: runRecord,
}

var recordNoConsole bool

func init() {
	d := config.Default()
	f := recordCmd.Flags()
	f.Int("camera-id", d.CameraID, "camera device index, -1 probes for the first available camera")
	f.Float64("width", d.Width, "capture width in pixels")
	f.Float64("height", d.Height, "capture height in pixels")
	f.String("interval", d.Interval.String(), "clip length, seconds or a duration such as 2m")
	f.String("output-dir", d.OutputDir, "directory clips and the metadata log are written to")
	f.String("file-prefix", "", "prefix prepended to clip file names")
	f.Int("max-clips", 0, "keep at most this many clips, 0 keeps all")
	f.Bool("keep-local", d.KeepLocal, "store clips locally when a remote destination is configured")
	f.String("encoder", d.Encoder, "clip encoder: opencv or ffmpeg")
	f.String("storage", d.StorageType, "clip storage: local, gcs or s3")
	f.String("remote-conn", "", "remote ingestion endpoint, [user:password@]host:port")
	f.String("db-name", d.DBName, "logical database name sent to the remote endpoint")
	f.String("table", "", "table name sent to the remote endpoint, default derived from the clip name")
	f.String("topic", d.Topic, "topic header sent to the remote endpoint")
	f.String("payload", d.Payload, "remote payload: metadata or base64")
	f.String("mqtt-broker", "", "MQTT broker, host:port or tcp://host:port")
	f.String("http-addr", "", "control API listen address, empty disables it")
	f.BoolVar(&recordNoConsole, "no-console", false, "do not read commands from stdin")

	// Bound before running: other commands bind the same keys
	recordCmd.PreRun = func(cmd *cobra.Command, args []string) {
		bindFlags(cmd.Flags(), recordFlags)
	}

	rootCmd.AddCommand(recordCmd)
}

var recordFlags = map[string]string{
	"camera_id":    "camera-id",
	"width":        "width",
	"height":       "height",
	"interval":     "interval",
	"output_dir":   "output-dir",
	"file_prefix":  "file-prefix",
	"max_clips":    "max-clips",
	"keep_local":   "keep-local",
	"encoder":      "encoder",
	"storage_type": "storage",
	"remote_conn":  "remote-conn",
	"db_name":      "db-name",
	"table":        "table",
	"topic":        "topic",
	"payload":      "payload",
	"mqtt_broker":  "mqtt-broker",
	"http_addr":    "http-addr",
}

func runRecord(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	store, storeCloser, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer storeCloser.Close()

	clipSink, sinkCloser, err := buildSinks(ctx, cfg, store, m, log)
	if err != nil {
		return err
	}
	defer sinkCloser.Close()

	cameraID := cfg.CameraID
	if cameraID < 0 {
		if cameraID, err = vision.DefaultCameraID(); err != nil {
			return fmt.Errorf("%w: %w", segmenter.ErrSourceUnavailable, err)
		}
		log.WithField("camera", cameraID).Info("Using default camera")
	}

	hub := preview.NewHub(vision.JPEGEncoder(cfg.PreviewQuality), m, log)
	go hub.Run(ctx)

	enc := buildEncoder(cfg, log)
	rec := segmenter.New(segmenter.Options{
		CameraID:       cameraID,
		Interval:       cfg.Interval,
		Width:          cfg.Width,
		Height:         cfg.Height,
		FilePrefix:     cfg.FilePrefix,
		ReopenAttempts: cfg.ReopenAttempts,
		ReopenDelay:    cfg.ReopenDelay,
	}, vision.NewCamera(cameraID), enc, clipSink,
		segmenter.WithLogger(log),
		segmenter.WithMetrics(m),
		segmenter.WithPreview(hub),
	)

	if err := rec.Start(ctx); err != nil {
		return err
	}
	defer rec.Stop()

	if cfg.HTTPAddr != "" {
		if cfg.ControlToken == "" {
			log.Warn("Control API has no control_token, every client can stop the recorder")
		}
		srv := httpServer.New(httpServer.Options{
			Recorder: rec,
			Auth:     auth.New(cfg.ControlToken),
			Store:    store,
			Preview:  hub,
			Metrics:  m,
			Gatherer: reg,
			Log:      log,
			ClipExt:  enc.Extension(),
		})
		go func() {
			if err := srv.Run(ctx, cfg.HTTPAddr); err != nil {
				log.WithError(err).Error("Control API failed")
			}
		}()
	}

	session := &recordSession{
		rec:     rec,
		hub:     hub,
		windows: make(chan struct{}, 1),
		quit:    cancel,
	}
	if !recordNoConsole && isatty.IsTerminal(os.Stdin.Fd()) {
		c := console.New(session, cmd.OutOrStdout(), cfg.Width, cfg.Height)
		go func() {
			if err := c.Run(ctx, os.Stdin); err != nil {
				log.WithError(err).Warn("Console stopped")
			}
		}()
	}

	return session.wait(ctx, log)
}

// recordSession connects console commands to the recorder. Preview windows
// are opened on the command goroutine, HighGUI is not thread safe.
type recordSession struct {
	rec     *segmenter.Recorder
	hub     *preview.Hub
	windows chan struct{}
	quit    context.CancelFunc
}

func (s *recordSession) Preview() {
	select {
	case s.windows <- struct{}{}:
	default:
	}
}

func (s *recordSession) Quit() { s.quit() }

func (s *recordSession) Resize(width, height float64) error {
	return s.rec.Resize(width, height)
}

// wait blocks until the recorder ends or ctx is done, serving preview
// window requests meanwhile
func (s *recordSession) wait(ctx context.Context, log logrus.FieldLogger) error {
	for {
		select {
		case <-ctx.Done():
			s.rec.Stop()
			return nil

		case <-s.rec.Done():
			err := s.rec.Err()
			if segmenter.IsTerminal(err) {
				return err
			}
			return nil

		case <-s.windows:
			frames, unsubscribe := s.hub.Subscribe()
			winCtx, cancel := context.WithCancel(ctx)
			go func() {
				select {
				case <-s.rec.Done():
					cancel()
				case <-winCtx.Done():
				}
			}()
			vision.ShowLive(winCtx, fmt.Sprintf("camclip camera %d", s.rec.Status().CameraID), frames, log)
			cancel()
			unsubscribe()
		}
	}
}
