package wire

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Message is a decoded Moppy frame. Messages are immutable: constructors
// copy the body and accessors return copies.
type Message struct {
	address    byte
	subAddress byte
	system     bool
	body       []byte
}

// NewMessage creates a message for the given framing. The sub-address is
// ignored when address is the framing's system address.
func NewMessage(f Framing, address, subAddress byte, body []byte) (Message, error) {
	if len(body) > MaxBodyLength {
		return Message{}, fmt.Errorf("%w: body length %d > %d", ErrInvalidMessage, len(body), MaxBodyLength)
	}

	m := Message{
		address: address,
		system:  f.IsSystem(address),
		body:    bytes.Clone(body),
	}
	if !m.system {
		m.subAddress = subAddress
	}
	if m.body == nil {
		m.body = []byte{}
	}
	return m, nil
}

// NewSystemMessage creates a system-wide message using DefaultFraming.
func NewSystemMessage(body []byte) (Message, error) {
	return DefaultFraming.SystemMessage(body)
}

// NewDeviceMessage creates a message for one device using DefaultFraming.
// The address must not be the system address.
func NewDeviceMessage(address, subAddress byte, body []byte) (Message, error) {
	return DefaultFraming.DeviceMessage(address, subAddress, body)
}

// SystemMessage creates a message addressed to f's system address.
func (f Framing) SystemMessage(body []byte) (Message, error) {
	return NewMessage(f, f.SystemAddress, 0, body)
}

// DeviceMessage creates a message for one device under f. The address
// must not be f's system address.
func (f Framing) DeviceMessage(address, subAddress byte, body []byte) (Message, error) {
	if f.IsSystem(address) {
		return Message{}, fmt.Errorf("%w: address 0x%02x is reserved for system messages", ErrInvalidMessage, address)
	}
	return NewMessage(f, address, subAddress, body)
}

// MustMessage panics if err is non-nil. Intended for constants and tests.
func MustMessage(m Message, err error) Message {
	if err != nil {
		panic(err)
	}
	return m
}

// Address returns the device address (or the system address).
func (m Message) Address() byte { return m.address }

// SubAddress returns the sub-address. Always zero for system messages.
func (m Message) SubAddress() byte { return m.subAddress }

// IsSystem reports whether the message uses the system frame shape.
func (m Message) IsSystem() bool { return m.system }

// Body returns a copy of the message body.
func (m Message) Body() []byte { return bytes.Clone(m.body) }

// BodyLen returns the body length without copying.
func (m Message) BodyLen() int { return len(m.body) }

// Command returns the first body byte, if present.
func (m Message) Command() (byte, bool) {
	if len(m.body) == 0 {
		return 0, false
	}
	return m.body[0], true
}

// Payload returns a copy of the body after the command byte.
func (m Message) Payload() []byte {
	if len(m.body) <= 1 {
		return []byte{}
	}
	return bytes.Clone(m.body[1:])
}

// EncodedLen returns the size of the encoded frame.
func (m Message) EncodedLen() int {
	if m.system {
		return 3 + len(m.body)
	}
	return 4 + len(m.body)
}

// Equal reports whether two messages carry the same fields.
func (m Message) Equal(other Message) bool {
	return m.address == other.address &&
		m.subAddress == other.subAddress &&
		m.system == other.system &&
		bytes.Equal(m.body, other.body)
}

// String returns a compact representation for logs.
func (m Message) String() string {
	if m.system {
		return fmt.Sprintf("SYS len=%d body=%s", len(m.body), hex.EncodeToString(m.body))
	}
	return fmt.Sprintf("DEV %d.%d len=%d body=%s", m.address, m.subAddress, len(m.body), hex.EncodeToString(m.body))
}
