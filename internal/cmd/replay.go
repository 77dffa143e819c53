package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"camclip/config"
	"camclip/internal/metrics"
	"camclip/internal/replay"
	"camclip/internal/sink"
)

var replayCmd = &cobra.Command{
	Use:   "replay [metadata-log]",
	Short: "Publish recorded clips to the remote endpoint",
	Long: `Replay reads a metadata log written by record, loads every clip it lists
from storage and publishes it to --remote-conn (and --mqtt-broker when set).
Frame count, frame rate and size are re-read from the clip itself.

The log defaults to metadata_file inside output_dir. Entries that cannot be
published are reported and skipped.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReplay,
}

func init() {
	d := config.Default()
	f := replayCmd.Flags()
	f.String("output-dir", d.OutputDir, "directory the clips were written to")
	f.String("metadata-file", d.MetadataFile, "metadata log name inside output-dir, or an absolute path")
	f.String("storage", d.StorageType, "clip storage: local, gcs or s3")
	f.String("remote-conn", "", "remote ingestion endpoint, [user:password@]host:port")
	f.String("db-name", d.DBName, "logical database name sent to the remote endpoint")
	f.String("table", "", "table name sent to the remote endpoint, default derived from the clip name")
	f.String("topic", d.Topic, "topic header sent to the remote endpoint")
	f.String("payload", string(sink.PayloadBase64), "remote payload: metadata or base64")
	f.String("mqtt-broker", "", "MQTT broker, host:port or tcp://host:port")

	replayCmd.PreRun = func(cmd *cobra.Command, args []string) {
		bindFlags(cmd.Flags(), map[string]string{
			"output_dir":    "output-dir",
			"metadata_file": "metadata-file",
			"storage_type":  "storage",
			"remote_conn":   "remote-conn",
			"db_name":       "db-name",
			"table":         "table",
			"topic":         "topic",
			"payload":       "payload",
			"mqtt_broker":   "mqtt-broker",
		})
	}

	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	// Replay inlines the clip unless told otherwise
	if !cmd.Flags().Changed("payload") && !viper.InConfig("payload") {
		if _, ok := os.LookupEnv(config.EnvPrefix + "_PAYLOAD"); !ok {
			cfg.Payload = string(sink.PayloadBase64)
		}
	}
	if cfg.RemoteConn == "" && cfg.MQTTBroker == "" {
		return errors.New("replay needs --remote-conn or --mqtt-broker")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, storeCloser, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer storeCloser.Close()

	// Only remote destinations: the clips are already stored locally
	cfg.KeepLocal = false
	m := metrics.New(prometheus.NewRegistry())
	out, sinkCloser, err := buildSinks(ctx, cfg, store, m, log)
	if err != nil {
		return err
	}
	defer sinkCloser.Close()

	path := cfg.MetadataPath()
	if len(args) == 1 {
		path = args[0]
	}

	res, err := replay.New(store, out, log).Run(ctx, path)
	fmt.Fprintf(cmd.OutOrStdout(), "%d entries, %d published, %d failed\n", res.Entries, res.Published, res.Failed)
	if err != nil {
		return err
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d entries could not be published", res.Failed, res.Entries)
	}
	return nil
}
