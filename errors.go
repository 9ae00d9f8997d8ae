package spars

import "errors"

// Engine errors.
var (
	// ErrClosed is returned by engine methods called after Close.
	ErrClosed = errors.New("spars: engine closed")

	// ErrNilRecorder is returned when RenderFrame is called without a
	// recorder.
	ErrNilRecorder = errors.New("spars: nil recorder")

	// ErrInvalidConfig is returned for configuration values out of range.
	ErrInvalidConfig = errors.New("spars: invalid config")
)
