package native

import "errors"

// Package errors for the native backend.
var (
	// ErrNilDevice is returned when the adapter is created without a HAL
	// device or queue.
	ErrNilDevice = errors.New("native: nil hal device or queue")

	// ErrNotHAL is returned when a host device provider does not expose
	// HAL objects.
	ErrNotHAL = errors.New("native: provider does not expose a hal device")

	// ErrUnknownHandle is returned when a call names an object the adapter
	// never created or already destroyed.
	ErrUnknownHandle = errors.New("native: unknown handle")

	// ErrFrameOpen is returned when Begin is called twice without End.
	ErrFrameOpen = errors.New("native: frame already open")

	// ErrNoFrame is returned when End is called without Begin.
	ErrNoFrame = errors.New("native: no open frame")

	// ErrFenceTimeout is returned when a submitted frame does not complete
	// in time.
	ErrFenceTimeout = errors.New("native: fence wait timed out")
)
