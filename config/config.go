package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"camclip/internal/naming"
)

// EnvPrefix is the prefix of every environment variable, e.g. CAMCLIP_INTERVAL
const EnvPrefix = "CAMCLIP"

// Config holds all application configuration
type Config struct {
	// Capture
	CameraID int           `mapstructure:"camera_id"` // -1 probes for the first available camera
	Width    float64       `mapstructure:"width"`
	Height   float64       `mapstructure:"height"`
	Interval time.Duration `mapstructure:"interval"` // Segment length; plain numbers are seconds

	// Read failure policy
	ReopenAttempts int           `mapstructure:"reopen_attempts"`
	ReopenDelay    time.Duration `mapstructure:"reopen_delay"`

	// Output
	OutputDir    string `mapstructure:"output_dir"`
	MetadataFile string `mapstructure:"metadata_file"`
	FilePrefix   string `mapstructure:"file_prefix"`
	MaxClips     int    `mapstructure:"max_clips"`
	KeepLocal    bool   `mapstructure:"keep_local"` // Keep the local sink when a remote is configured

	// Encoding
	Encoder    string `mapstructure:"encoder"` // opencv or ffmpeg
	FFmpegPath string `mapstructure:"ffmpeg_path"`

	// Storage
	StorageType string `mapstructure:"storage_type"` // local, gcs or s3
	GCSBucket   string `mapstructure:"gcs_bucket"`
	GCSPrefix   string `mapstructure:"gcs_prefix"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Prefix    string `mapstructure:"s3_prefix"`
	S3Region    string `mapstructure:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key"`

	// Remote ingestion
	RemoteConn    string        `mapstructure:"remote_conn"` // [user:password@]host:port
	DBName        string        `mapstructure:"db_name"`
	Table         string        `mapstructure:"table"`
	Topic         string        `mapstructure:"topic"`
	Payload       string        `mapstructure:"payload"` // metadata or base64
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`

	// MQTT
	MQTTBroker   string `mapstructure:"mqtt_broker"`
	MQTTTopic    string `mapstructure:"mqtt_topic"`
	MQTTClientID string `mapstructure:"mqtt_client_id"`
	MQTTUsername string `mapstructure:"mqtt_username"`
	MQTTPassword string `mapstructure:"mqtt_password"`
	MQTTQoS      int    `mapstructure:"mqtt_qos"`

	// Control API and preview
	HTTPAddr       string `mapstructure:"http_addr"`     // Empty disables the control API
	ControlToken   string `mapstructure:"control_token"` // Bearer token required by /api/v1, empty allows all
	PreviewQuality int    `mapstructure:"preview_quality"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		CameraID:       -1,
		Width:          640,
		Height:         480,
		Interval:       60 * time.Second,
		ReopenAttempts: 3,
		ReopenDelay:    time.Second,
		OutputDir:      "./blobs",
		MetadataFile:   "metadata.json",
		KeepLocal:      true,
		Encoder:        "opencv",
		FFmpegPath:     "ffmpeg",
		StorageType:    "local",
		DBName:         "livefeed",
		Topic:          "livefeed",
		Payload:        "metadata",
		RemoteTimeout:  30 * time.Second,
		MQTTTopic:      "camclip/clips",
		MQTTQoS:        1,
		PreviewQuality: 80,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// SetDefaults registers every option with its default on v
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("camera_id", d.CameraID)
	v.SetDefault("width", d.Width)
	v.SetDefault("height", d.Height)
	v.SetDefault("interval", d.Interval)
	v.SetDefault("reopen_attempts", d.ReopenAttempts)
	v.SetDefault("reopen_delay", d.ReopenDelay)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("metadata_file", d.MetadataFile)
	v.SetDefault("file_prefix", d.FilePrefix)
	v.SetDefault("max_clips", d.MaxClips)
	v.SetDefault("keep_local", d.KeepLocal)
	v.SetDefault("encoder", d.Encoder)
	v.SetDefault("ffmpeg_path", d.FFmpegPath)
	v.SetDefault("storage_type", d.StorageType)
	v.SetDefault("gcs_bucket", d.GCSBucket)
	v.SetDefault("gcs_prefix", d.GCSPrefix)
	v.SetDefault("s3_bucket", d.S3Bucket)
	v.SetDefault("s3_prefix", d.S3Prefix)
	v.SetDefault("s3_region", d.S3Region)
	v.SetDefault("s3_endpoint", d.S3Endpoint)
	v.SetDefault("s3_access_key", d.S3AccessKey)
	v.SetDefault("s3_secret_key", d.S3SecretKey)
	v.SetDefault("remote_conn", d.RemoteConn)
	v.SetDefault("db_name", d.DBName)
	v.SetDefault("table", d.Table)
	v.SetDefault("topic", d.Topic)
	v.SetDefault("payload", d.Payload)
	v.SetDefault("remote_timeout", d.RemoteTimeout)
	v.SetDefault("mqtt_broker", d.MQTTBroker)
	v.SetDefault("mqtt_topic", d.MQTTTopic)
	v.SetDefault("mqtt_client_id", d.MQTTClientID)
	v.SetDefault("mqtt_username", d.MQTTUsername)
	v.SetDefault("mqtt_password", d.MQTTPassword)
	v.SetDefault("mqtt_qos", d.MQTTQoS)
	v.SetDefault("http_addr", d.HTTPAddr)
	v.SetDefault("control_token", d.ControlToken)
	v.SetDefault("preview_quality", d.PreviewQuality)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// BindEnv makes every option overridable by CAMCLIP_<OPTION>
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load decodes the configuration held by v and validates it
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook,
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs
	}
	return cfg, nil
}

// MetadataPath returns the NDJSON log path; a relative metadata_file is
// resolved inside output_dir
func (c *Config) MetadataPath() string {
	if filepath.IsAbs(c.MetadataFile) {
		return c.MetadataFile
	}
	return filepath.Join(c.OutputDir, c.MetadataFile)
}

// Remote returns the parsed remote connection, ok is false when none is set
func (c *Config) Remote() (conn naming.Conn, ok bool, err error) {
	if strings.TrimSpace(c.RemoteConn) == "" {
		return conn, false, nil
	}
	conn, err = naming.ParseConn(c.RemoteConn)
	return conn, err == nil, err
}

// secondsToDurationHook decodes bare numbers ("60", 60, 1.5) into seconds
func secondsToDurationHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	durationType := reflect.TypeOf(time.Duration(0))
	if to != durationType || from == durationType {
		return data, nil
	}

	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
	case reflect.String:
		if f, err := strconv.ParseFloat(strings.TrimSpace(reflect.ValueOf(data).String()), 64); err == nil {
			return time.Duration(f * float64(time.Second)), nil
		}
	}
	return data, nil
}
