package transport

import (
	"errors"
	"io"
)

// Port errors.
var (
	// ErrPortClosed indicates an operation on a port that is not open.
	ErrPortClosed = errors.New("port closed")

	// ErrPortOpen indicates Open was called on a port that is already open.
	ErrPortOpen = errors.New("port already open")
)

// Port is a bidirectional byte stream to Moppy devices.
//
// Read blocks until data is available. Close must unblock a pending Read,
// which then returns an error; bridges rely on this to stop their reader.
// Write may be called concurrently with Read, but not with another Write.
type Port interface {
	io.ReadWriter

	// Open opens the port with its configured settings.
	Open() error

	// Close closes the port. Closing a closed port returns nil.
	Close() error

	// IsOpen reports whether the port is currently open.
	IsOpen() bool

	// Name returns the device path or network address for logs.
	Name() string
}
