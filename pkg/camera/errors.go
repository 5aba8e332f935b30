package camera

import "errors"

// Sentinel errors for camera conditions.
var (
	// ErrNoCamera is returned by Open when no candidate produced a live frame.
	// It is fatal to the session.
	ErrNoCamera = errors.New("camera: no camera available")

	// ErrReconnectExhausted is returned by Read when a reconnect window
	// elapsed without finding a device. The caller decides whether to
	// start another window with Reconnect or give up.
	ErrReconnectExhausted = errors.New("camera: reconnect window exhausted")

	// ErrClosed is returned when reading from a source that is not open.
	ErrClosed = errors.New("camera: source closed")

	// ErrAlreadyOpen is returned by Open on a source that is already running.
	ErrAlreadyOpen = errors.New("camera: source already open")

	// ErrDeadFrame is returned by devices that read an empty frame.
	ErrDeadFrame = errors.New("camera: empty frame")
)
