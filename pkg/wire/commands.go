package wire

import "fmt"

// System command bytes (first body byte of a system message).
const (
	CmdPing          byte = 0x80
	CmdPong          byte = 0x81
	CmdSequenceStart byte = 0xfa
	CmdSequenceStop  byte = 0xfc
	CmdReset         byte = 0xff
)

// Device command bytes (first body byte of a device message).
const (
	CmdDeviceReset byte = 0x00
	CmdNoteOff     byte = 0x08
	CmdNoteOn      byte = 0x09
	CmdBendPitch   byte = 0x0e
)

// PongInfo describes a device that answered a ping.
type PongInfo struct {
	DeviceAddress byte
	MinSubAddress byte
	MaxSubAddress byte
}

// PingMessage asks every device on the bus to announce itself.
func PingMessage() Message { return DefaultFraming.Ping() }

// ResetMessage silences and re-homes every device.
func ResetMessage() Message { return DefaultFraming.Reset() }

// SequenceStartMessage signals that playback is starting.
func SequenceStartMessage() Message { return DefaultFraming.SequenceStart() }

// SequenceStopMessage signals that playback stopped.
func SequenceStopMessage() Message { return DefaultFraming.SequenceStop() }

// PongMessage builds the reply a device sends to a ping.
func PongMessage(info PongInfo) Message { return DefaultFraming.Pong(info) }

// NoteOnMessage starts playing a MIDI note on one sub-address.
func NoteOnMessage(address, subAddress, note byte) (Message, error) {
	return DefaultFraming.NoteOn(address, subAddress, note)
}

// NoteOffMessage stops the note playing on one sub-address.
func NoteOffMessage(address, subAddress byte) (Message, error) {
	return DefaultFraming.NoteOff(address, subAddress)
}

// BendPitchMessage bends the pitch of one sub-address.
func BendPitchMessage(address, subAddress byte, deflection int16) (Message, error) {
	return DefaultFraming.BendPitch(address, subAddress, deflection)
}

// DeviceResetMessage resets a single sub-address (0 resets the whole device).
func DeviceResetMessage(address, subAddress byte) (Message, error) {
	return DefaultFraming.DeviceReset(address, subAddress)
}

// Ping returns a ping addressed to f's system address.
func (f Framing) Ping() Message {
	return MustMessage(f.SystemMessage([]byte{CmdPing}))
}

// Reset returns a system reset addressed to f's system address.
func (f Framing) Reset() Message {
	return MustMessage(f.SystemMessage([]byte{CmdReset}))
}

// SequenceStart returns a sequence-start message for f.
func (f Framing) SequenceStart() Message {
	return MustMessage(f.SystemMessage([]byte{CmdSequenceStart}))
}

// SequenceStop returns a sequence-stop message for f.
func (f Framing) SequenceStop() Message {
	return MustMessage(f.SystemMessage([]byte{CmdSequenceStop}))
}

// Pong returns a device's ping reply for f.
func (f Framing) Pong(info PongInfo) Message {
	return MustMessage(f.SystemMessage([]byte{CmdPong, info.DeviceAddress, info.MinSubAddress, info.MaxSubAddress}))
}

// NoteOn returns a note-on message for f.
func (f Framing) NoteOn(address, subAddress, note byte) (Message, error) {
	return f.DeviceMessage(address, subAddress, []byte{CmdNoteOn, note})
}

// NoteOff returns a note-off message for f.
func (f Framing) NoteOff(address, subAddress byte) (Message, error) {
	return f.DeviceMessage(address, subAddress, []byte{CmdNoteOff})
}

// BendPitch returns a pitch-bend message for f. The deflection is sent
// big-endian, as the firmware reads payload[0]<<8 | payload[1].
func (f Framing) BendPitch(address, subAddress byte, deflection int16) (Message, error) {
	d := uint16(deflection)
	return f.DeviceMessage(address, subAddress, []byte{CmdBendPitch, byte(d >> 8), byte(d)})
}

// DeviceReset returns a single-device reset for f.
func (f Framing) DeviceReset(address, subAddress byte) (Message, error) {
	return f.DeviceMessage(address, subAddress, []byte{CmdDeviceReset})
}

// ParsePong extracts the device description from a pong message.
func ParsePong(m Message) (PongInfo, error) {
	cmd, ok := m.Command()
	if !m.IsSystem() || !ok || cmd != CmdPong {
		return PongInfo{}, fmt.Errorf("%w: not a pong", ErrInvalidMessage)
	}
	if m.BodyLen() < 4 {
		return PongInfo{}, fmt.Errorf("%w: pong body has %d bytes, want 4", ErrMalformedMessage, m.BodyLen())
	}
	return PongInfo{
		DeviceAddress: m.body[1],
		MinSubAddress: m.body[2],
		MaxSubAddress: m.body[3],
	}, nil
}

// CommandName returns a readable name for a command byte.
func CommandName(system bool, cmd byte) string {
	if system {
		switch cmd {
		case CmdPing:
			return "PING"
		case CmdPong:
			return "PONG"
		case CmdSequenceStart:
			return "SEQUENCE_START"
		case CmdSequenceStop:
			return "SEQUENCE_STOP"
		case CmdReset:
			return "RESET"
		}
		return fmt.Sprintf("SYS_0x%02X", cmd)
	}
	switch cmd {
	case CmdDeviceReset:
		return "DEVICE_RESET"
	case CmdNoteOff:
		return "NOTE_OFF"
	case CmdNoteOn:
		return "NOTE_ON"
	case CmdBendPitch:
		return "BEND_PITCH"
	}
	return fmt.Sprintf("DEV_0x%02X", cmd)
}
