package sink

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"camclip/pkg/models"
)

// maxRecordSize bounds a single metadata line
const maxRecordSize = 1 << 20

// ScanMetadataLog calls fn for every non-empty line of an NDJSON metadata
// log. A line that fails to decode is reported to fn with a nil record and
// the decode error; scanning stops when fn returns an error.
func ScanMetadataLog(r io.Reader, fn func(line int, meta *models.ClipMetadata, err error) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordSize)

	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var meta models.ClipMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			if ferr := fn(line, nil, fmt.Errorf("line %d: %w", line, err)); ferr != nil {
				return ferr
			}
			continue
		}
		if err := fn(line, &meta, nil); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read metadata log: %w", err)
	}
	return nil
}

// ReadMetadataLog reads every record of the metadata log at path. The first
// malformed line aborts the read.
func ReadMetadataLog(path string) ([]*models.ClipMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata log: %w", err)
	}
	defer f.Close()

	var records []*models.ClipMetadata
	err = ScanMetadataLog(f, func(_ int, meta *models.ClipMetadata, err error) error {
		if err != nil {
			return err
		}
		records = append(records, meta)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
