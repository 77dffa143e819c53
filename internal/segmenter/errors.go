package segmenter

import "errors"

var (
	// ErrSourceUnavailable is returned when the capture device cannot be opened or re-opened
	ErrSourceUnavailable = errors.New("capture source unavailable")

	// ErrFrameRead is the terminal error of a loop that gave up after repeated read failures
	ErrFrameRead = errors.New("frame read failed")

	// ErrEncode marks a clip that could not be encoded; the loop skips it
	ErrEncode = errors.New("clip encode failed")

	// ErrSink marks a clip a sink did not accept; the loop continues
	ErrSink = errors.New("clip sink failed")

	// ErrAlreadyRunning is returned by Start when the recorder is not idle
	ErrAlreadyRunning = errors.New("recorder already running")

	// ErrNotRunning is returned by commands issued to an idle recorder
	ErrNotRunning = errors.New("recorder not running")
)
