package wire

import "errors"

// Framing constants used by Moppy devices.
const (
	// StartByte marks the beginning of every frame ('M').
	StartByte byte = 0x4d

	// SystemAddress is the reserved address for system-wide messages.
	SystemAddress byte = 0x00

	// MaxBodyLength is the largest body a frame can carry.
	MaxBodyLength = 255

	// MaxFrameSize is the largest possible frame: start, address,
	// sub-address, length and a full body.
	MaxFrameSize = 4 + MaxBodyLength

	// DefaultBaudRate is the serial speed Moppy devices listen on.
	DefaultBaudRate = 57600
)

// Message errors.
var (
	// ErrInvalidMessage indicates a message that cannot be constructed,
	// e.g. a body longer than MaxBodyLength.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrMalformedMessage indicates bytes that do not form a complete frame.
	ErrMalformedMessage = errors.New("malformed message")
)

// Framing holds the sentinel values that shape a frame.
// The zero value is not useful; start from DefaultFraming.
type Framing struct {
	// StartByte marks the beginning of a frame.
	StartByte byte

	// SystemAddress selects the short (no sub-address) frame shape.
	SystemAddress byte
}

// DefaultFraming is the framing spoken by Moppy firmware.
var DefaultFraming = Framing{
	StartByte:     StartByte,
	SystemAddress: SystemAddress,
}

// IsSystem reports whether address selects the system frame shape.
func (f Framing) IsSystem(address byte) bool {
	return address == f.SystemAddress
}

// HeaderSize returns the number of bytes preceding the body for a frame
// sent to address.
func (f Framing) HeaderSize(address byte) int {
	if f.IsSystem(address) {
		return 3
	}
	return 4
}
