package wire

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want []byte
	}{
		{
			name: "system ping",
			msg:  PingMessage(),
			want: []byte{StartByte, SystemAddress, 0x01, CmdPing},
		},
		{
			name: "system empty body",
			msg:  MustMessage(NewSystemMessage(nil)),
			want: []byte{StartByte, SystemAddress, 0x00},
		},
		{
			name: "device note on",
			msg:  MustMessage(NoteOnMessage(0x01, 0x03, 60)),
			want: []byte{StartByte, 0x01, 0x03, 0x02, CmdNoteOn, 60},
		},
		{
			name: "device empty body",
			msg:  MustMessage(NewDeviceMessage(0x07, 0x02, []byte{})),
			want: []byte{StartByte, 0x07, 0x02, 0x00},
		},
		{
			name: "body containing start byte",
			msg:  MustMessage(NewDeviceMessage(0x01, StartByte, []byte{StartByte, StartByte, 0x00})),
			want: []byte{StartByte, 0x01, StartByte, 0x03, StartByte, StartByte, 0x00},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.msg.Encode()
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("Encode() = % x, want % x", got, tt.want)
			}
			if len(got) != tt.msg.EncodedLen() {
				t.Errorf("EncodedLen() = %d, encoded %d bytes", tt.msg.EncodedLen(), len(got))
			}

			decoded, err := Decode(got)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if !decoded.Equal(tt.msg) {
				t.Errorf("Decode() = %v, want %v", decoded, tt.msg)
			}
		})
	}
}

func TestDecodeExampleFrame(t *testing.T) {
	f := Framing{StartByte: 0xF8, SystemAddress: 0x00}

	m, err := f.Decode([]byte{0xF8, 0x01, 0x02, 0x03, 0xAA, 0xBB, 0xCC})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if m.IsSystem() {
		t.Fatal("expected a device message")
	}
	if m.Address() != 0x01 || m.SubAddress() != 0x02 {
		t.Errorf("address = %d.%d, want 1.2", m.Address(), m.SubAddress())
	}
	if !bytes.Equal(m.Body(), []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("body = % x, want aa bb cc", m.Body())
	}
}

func TestShapeDiscrimination(t *testing.T) {
	// Same bytes after the address: as a system frame byte 2 is the length,
	// as a device frame it is the sub-address.
	sys, err := Decode([]byte{StartByte, SystemAddress, 0x02, 0x10, 0x20})
	if err != nil {
		t.Fatalf("system Decode failed: %v", err)
	}
	if !sys.IsSystem() || sys.SubAddress() != 0 {
		t.Errorf("system message decoded with sub-address %d", sys.SubAddress())
	}
	if !bytes.Equal(sys.Body(), []byte{0x10, 0x20}) {
		t.Errorf("system body = % x", sys.Body())
	}

	dev, err := Decode([]byte{StartByte, 0x05, 0x02, 0x01, 0x20})
	if err != nil {
		t.Fatalf("device Decode failed: %v", err)
	}
	if dev.IsSystem() || dev.SubAddress() != 0x02 {
		t.Errorf("device message decoded as %v", dev)
	}
	if !bytes.Equal(dev.Body(), []byte{0x20}) {
		t.Errorf("device body = % x", dev.Body())
	}
}

func TestBoundaryBodyLengths(t *testing.T) {
	full := bytes.Repeat([]byte{0x5a}, MaxBodyLength)

	m, err := NewDeviceMessage(0x01, 0x01, full)
	if err != nil {
		t.Fatalf("NewDeviceMessage with %d bytes failed: %v", MaxBodyLength, err)
	}
	frame := m.Encode()
	if len(frame) != MaxFrameSize {
		t.Errorf("full frame = %d bytes, want %d", len(frame), MaxFrameSize)
	}
	if frame[3] != 0xff {
		t.Errorf("length byte = 0x%02x, want 0xff", frame[3])
	}

	decoded, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.BodyLen() != MaxBodyLength {
		t.Errorf("decoded body = %d bytes, want %d", decoded.BodyLen(), MaxBodyLength)
	}

	sys, err := NewSystemMessage(full)
	if err != nil {
		t.Fatalf("NewSystemMessage failed: %v", err)
	}
	if sys.EncodedLen() != MaxFrameSize-1 {
		t.Errorf("system EncodedLen = %d, want %d", sys.EncodedLen(), MaxFrameSize-1)
	}
}

func TestNewMessageRejectsOversizedBody(t *testing.T) {
	body := make([]byte, MaxBodyLength+1)

	if _, err := NewDeviceMessage(0x01, 0x01, body); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("NewDeviceMessage error = %v, want ErrInvalidMessage", err)
	}
	if _, err := NewSystemMessage(body); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("NewSystemMessage error = %v, want ErrInvalidMessage", err)
	}
}

func TestNewDeviceMessageRejectsSystemAddress(t *testing.T) {
	_, err := NewDeviceMessage(SystemAddress, 0x01, nil)
	if !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"wrong start byte", []byte{0x00, 0x01, 0x01, 0x00}},
		{"start only", []byte{StartByte}},
		{"device header cut", []byte{StartByte, 0x01, 0x01}},
		{"system body short", []byte{StartByte, SystemAddress, 0x03, 0x01}},
		{"device body short", []byte{StartByte, 0x01, 0x01, 0x02, 0x01}},
		{"trailing bytes", []byte{StartByte, 0x01, 0x01, 0x00, 0x99}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame)
			if !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("Decode(% x) error = %v, want ErrMalformedMessage", tt.frame, err)
			}
		})
	}
}

func TestMessageImmutable(t *testing.T) {
	body := []byte{0x01, 0x02}
	m := MustMessage(NewDeviceMessage(0x01, 0x01, body))

	body[0] = 0xff
	if got := m.Body(); got[0] != 0x01 {
		t.Errorf("constructor did not copy body: % x", got)
	}

	out := m.Body()
	out[1] = 0xff
	if got := m.Body(); got[1] != 0x02 {
		t.Errorf("Body() exposed internal slice: % x", got)
	}
}

func TestCustomFramingSystemAddress(t *testing.T) {
	f := Framing{StartByte: 0xF8, SystemAddress: 0xFF}

	m, err := NewMessage(f, 0xFF, 0x09, []byte{0x01})
	if err != nil {
		t.Fatalf("NewMessage failed: %v", err)
	}
	if !m.IsSystem() || m.SubAddress() != 0 {
		t.Fatalf("expected system message without sub-address, got %v", m)
	}

	frame := f.Encode(m)
	if !bytes.Equal(frame, []byte{0xF8, 0xFF, 0x01, 0x01}) {
		t.Fatalf("Encode() = % x", frame)
	}

	// Address 0x00 is an ordinary device under this framing.
	dev, err := f.Decode([]byte{0xF8, 0x00, 0x01, 0x00})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if dev.IsSystem() {
		t.Error("address 0x00 should be a device address under custom framing")
	}
}

func TestFramingBuildersUseSystemAddress(t *testing.T) {
	f := Framing{StartByte: 0xF8, SystemAddress: 0xFF}

	reset := f.Reset()
	if !reset.IsSystem() || reset.Address() != 0xFF {
		t.Fatalf("Reset() = %v, want a system message to 0xFF", reset)
	}
	if got := f.Encode(reset); !bytes.Equal(got, []byte{0xF8, 0xFF, 0x01, CmdReset}) {
		t.Errorf("Encode(Reset()) = % x", got)
	}

	on, err := f.NoteOn(0x00, 0x01, 60)
	if err != nil {
		t.Fatalf("NoteOn on device 0x00 failed: %v", err)
	}
	if err := f.Check(on); err != nil {
		t.Errorf("Check(NoteOn) = %v", err)
	}

	if _, err := f.NoteOn(0xFF, 0x01, 60); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("NoteOn on the system address: err = %v, want ErrInvalidMessage", err)
	}
}

func TestFramingCheckRejectsForeignShape(t *testing.T) {
	f := Framing{StartByte: StartByte, SystemAddress: 0xFF}

	// Built for DefaultFraming: system-shaped but addressed to 0x00, which
	// f treats as a device.
	if err := f.Check(ResetMessage()); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Check(ResetMessage()) = %v, want ErrInvalidMessage", err)
	}

	// Device-shaped but addressed to f's system address.
	dev := MustMessage(NewDeviceMessage(0xFF, 0x01, []byte{CmdNoteOff}))
	if err := f.Check(dev); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Check(device 0xFF) = %v, want ErrInvalidMessage", err)
	}

	if err := DefaultFraming.Check(ResetMessage()); err != nil {
		t.Errorf("DefaultFraming.Check(ResetMessage()) = %v", err)
	}
}
