// Package sink delivers finished clips and their metadata: to a local
// NDJSON log, to a remote ingestion endpoint over HTTP, or to an MQTT broker.
package sink

import (
	"context"
	"encoding/base64"
	"fmt"

	"camclip/internal/naming"
	"camclip/pkg/models"
)

// Sink receives every flushed clip
type Sink interface {
	Emit(ctx context.Context, clip *models.Clip, meta *models.ClipMetadata) error
	Name() string
}

// Error reports a clip a sink did not accept
type Error struct {
	Sink string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PayloadMode selects what a remote payload carries
type PayloadMode string

const (
	// PayloadMetadata sends the metadata only
	PayloadMetadata PayloadMode = "metadata"
	// PayloadBase64 inlines the encoded clip as base64 in raw_video
	PayloadBase64 PayloadMode = "base64"
)

// ParsePayloadMode validates a payload mode, "" selects PayloadMetadata
func ParsePayloadMode(s string) (PayloadMode, error) {
	switch PayloadMode(s) {
	case "", PayloadMetadata:
		return PayloadMetadata, nil
	case PayloadBase64:
		return PayloadBase64, nil
	}
	return "", fmt.Errorf("unknown payload mode %q (want metadata or base64)", s)
}

// Target names where remote records land
type Target struct {
	DBMS  string
	Table string // Empty derives the table from the clip file name
}

// BuildPayload assembles the remote record of a clip
func BuildPayload(target Target, mode PayloadMode, clip *models.Clip, meta *models.ClipMetadata) *models.RemotePayload {
	table := target.Table
	if table == "" {
		table = naming.TableName(meta.FileName)
	}

	payload := models.NewRemotePayload(target.DBMS, table, meta)
	if mode == PayloadBase64 && clip != nil && len(clip.Data) > 0 {
		payload.RawVideo = base64.StdEncoding.EncodeToString(clip.Data)
	}
	return payload
}
