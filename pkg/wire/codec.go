package wire

import (
	"fmt"
)

// Encode returns the wire bytes of m using DefaultFraming's start byte.
func (m Message) Encode() []byte {
	return DefaultFraming.Encode(m)
}

// Check reports whether m has the frame shape f gives its address. A
// message built for another framing can disagree: DefaultFraming's reset
// is addressed to 0x00, which is a device address when SystemAddress is
// 0xFF. The peer would read such a frame with the other shape.
func (f Framing) Check(m Message) error {
	if m.system != f.IsSystem(m.address) {
		return fmt.Errorf("%w: address 0x%02x has the wrong frame shape for system address 0x%02x",
			ErrInvalidMessage, m.address, f.SystemAddress)
	}
	return nil
}

// Encode returns the wire bytes of m. The body length was checked when the
// message was constructed, so encoding cannot fail. Writers should Check
// messages that may come from another framing first.
func (f Framing) Encode(m Message) []byte {
	buf := make([]byte, 0, m.EncodedLen())
	buf = append(buf, f.StartByte, m.address)
	if !m.system {
		buf = append(buf, m.subAddress)
	}
	buf = append(buf, byte(len(m.body)))
	return append(buf, m.body...)
}

// Decode parses exactly one frame (start byte included) using DefaultFraming.
func Decode(frame []byte) (Message, error) {
	return DefaultFraming.Decode(frame)
}

// Decode parses exactly one frame, start byte included.
func (f Framing) Decode(frame []byte) (Message, error) {
	if len(frame) == 0 || frame[0] != f.StartByte {
		return Message{}, fmt.Errorf("%w: missing start byte", ErrMalformedMessage)
	}
	if len(frame) < 3 {
		return Message{}, fmt.Errorf("%w: %d bytes is shorter than a header", ErrMalformedMessage, len(frame))
	}

	address := frame[1]
	header := f.HeaderSize(address)
	if len(frame) < header {
		return Message{}, fmt.Errorf("%w: %d bytes is shorter than a header", ErrMalformedMessage, len(frame))
	}

	var subAddress byte
	if !f.IsSystem(address) {
		subAddress = frame[2]
	}
	length := int(frame[header-1])

	switch want := header + length; {
	case len(frame) < want:
		return Message{}, fmt.Errorf("%w: declared %d body bytes, have %d", ErrMalformedMessage, length, len(frame)-header)
	case len(frame) > want:
		return Message{}, fmt.Errorf("%w: %d trailing bytes after frame", ErrMalformedMessage, len(frame)-want)
	}

	return f.DecodeFields(address, subAddress, frame[header:])
}

// DecodeFields builds a message from fields the framer has already
// separated, so the start byte never has to be put back in front of them.
func (f Framing) DecodeFields(address, subAddress byte, body []byte) (Message, error) {
	m, err := NewMessage(f, address, subAddress, body)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return m, nil
}
