package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"

	"camclip/internal/naming"
	"camclip/pkg/models"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The option name (e.g., "interval")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Enumerations accepted by Validate
var (
	ValidEncoders     = []string{"opencv", "ffmpeg"}
	ValidStorageTypes = []string{"local", "gcs", "s3"}
	ValidPayloadModes = []string{"metadata", "base64"}
	ValidLogFormats   = []string{"text", "json"}
)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	add := func(field string, value any, msg string) {
		errs = append(errs, ValidationError{Field: field, Value: value, Message: msg})
	}

	// Capture
	if c.CameraID < -1 {
		add("camera_id", c.CameraID, "must be a device index or -1 to probe")
	}
	if !models.ValidDimension(c.Width) {
		add("width", c.Width, "must be a positive finite number")
	}
	if !models.ValidDimension(c.Height) {
		add("height", c.Height, "must be a positive finite number")
	}
	if c.Interval <= 0 {
		add("interval", c.Interval, "must be positive")
	}
	if c.ReopenAttempts < 0 {
		add("reopen_attempts", c.ReopenAttempts, "must not be negative")
	}
	if c.ReopenDelay < 0 {
		add("reopen_delay", c.ReopenDelay, "must not be negative")
	}

	// Output
	if strings.TrimSpace(c.OutputDir) == "" {
		add("output_dir", c.OutputDir, "is required")
	}
	if strings.TrimSpace(c.MetadataFile) == "" {
		add("metadata_file", c.MetadataFile, "is required")
	}
	if strings.ContainsAny(c.FilePrefix, `/\`) {
		add("file_prefix", c.FilePrefix, "must not contain path separators")
	}
	if c.MaxClips < 0 {
		add("max_clips", c.MaxClips, "must not be negative")
	}

	if !slices.Contains(ValidEncoders, c.Encoder) {
		add("encoder", c.Encoder, "must be one of "+strings.Join(ValidEncoders, ", "))
	}

	// Storage
	switch c.StorageType {
	case "local":
	case "gcs":
		if c.GCSBucket == "" {
			add("gcs_bucket", c.GCSBucket, "is required when storage_type is gcs")
		}
	case "s3":
		if c.S3Bucket == "" {
			add("s3_bucket", c.S3Bucket, "is required when storage_type is s3")
		}
	default:
		add("storage_type", c.StorageType, "must be one of "+strings.Join(ValidStorageTypes, ", "))
	}

	// Remote
	if c.RemoteConn != "" {
		if _, err := naming.ParseConn(c.RemoteConn); err != nil {
			add("remote_conn", naming.Redact(c.RemoteConn), "must be [user:password@]host:port")
		}
	}
	if !slices.Contains(ValidPayloadModes, c.Payload) {
		add("payload", c.Payload, "must be one of "+strings.Join(ValidPayloadModes, ", "))
	}
	if c.RemoteTimeout <= 0 {
		add("remote_timeout", c.RemoteTimeout, "must be positive")
	}

	if c.MQTTQoS < 0 || c.MQTTQoS > 2 {
		add("mqtt_qos", c.MQTTQoS, "must be 0, 1 or 2")
	}
	if c.PreviewQuality < 1 || c.PreviewQuality > 100 {
		add("preview_quality", c.PreviewQuality, "must be between 1 and 100")
	}

	// Logging
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		add("log_level", c.LogLevel, "must be one of debug, info, warn, error")
	}
	if !slices.Contains(ValidLogFormats, c.LogFormat) {
		add("log_format", c.LogFormat, "must be one of "+strings.Join(ValidLogFormats, ", "))
	}

	return errs
}
