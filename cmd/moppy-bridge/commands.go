package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/moppy-project/moppy-go/pkg/wire"
)

var errUsage = errors.New("usage")

// Pitch bend range of a MIDI pitch wheel.
const (
	minBend = -8192
	maxBend = 8191
)

// messageUsage documents the message syntax understood by send and console.
const messageUsage = `  Messages:
    ping                       - Ask all devices to identify themselves
    reset                      - Reset all devices
    reset <addr> <sub>         - Reset one sub-address
    start | stop               - Sequence start / stop
    on <addr> <sub> <note>     - Note on (MIDI note number)
    off <addr> <sub>           - Note off
    bend <addr> <sub> <value>  - Pitch bend (-8192..8191)
    sys <hex-body>             - Raw system message body
    dev <addr> <sub> <hex>     - Raw device message body
    raw <hex-frame>            - Complete frame, start byte included

  Numbers accept decimal or 0x hex; hex bodies may contain spaces.`

// parseMessage builds a message from a command line such as
// "on 1 2 60" or "raw 4d 01 02 02 09 3c".
func parseMessage(framing wire.Framing, fields []string) (wire.Message, error) {
	if len(fields) == 0 {
		return wire.Message{}, errUsage
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "ping":
		return framing.Ping(), nil

	case "start":
		return framing.SequenceStart(), nil

	case "stop":
		return framing.SequenceStop(), nil

	case "reset":
		if len(args) == 0 {
			return framing.Reset(), nil
		}
		addr, sub, err := parseTarget(args, 2)
		if err != nil {
			return wire.Message{}, err
		}
		return framing.DeviceReset(addr, sub)

	case "on", "note-on":
		addr, sub, err := parseTarget(args, 3)
		if err != nil {
			return wire.Message{}, err
		}
		note, err := parseByte(args[2])
		if err != nil {
			return wire.Message{}, err
		}
		return framing.NoteOn(addr, sub, note)

	case "off", "note-off":
		addr, sub, err := parseTarget(args, 2)
		if err != nil {
			return wire.Message{}, err
		}
		return framing.NoteOff(addr, sub)

	case "bend":
		addr, sub, err := parseTarget(args, 3)
		if err != nil {
			return wire.Message{}, err
		}
		v, err := strconv.ParseInt(args[2], 0, 16)
		if err != nil || v < minBend || v > maxBend {
			return wire.Message{}, fmt.Errorf("invalid bend value %q (must be %d..%d)", args[2], minBend, maxBend)
		}
		return framing.BendPitch(addr, sub, int16(v))

	case "sys":
		body, err := parseHex(args)
		if err != nil {
			return wire.Message{}, err
		}
		return framing.SystemMessage(body)

	case "dev":
		if len(args) < 2 {
			return wire.Message{}, errUsage
		}
		addr, sub, err := parseTarget(args[:2], 2)
		if err != nil {
			return wire.Message{}, err
		}
		body, err := parseHex(args[2:])
		if err != nil {
			return wire.Message{}, err
		}
		return framing.DeviceMessage(addr, sub, body)

	case "raw":
		frame, err := parseHex(args)
		if err != nil {
			return wire.Message{}, err
		}
		return framing.Decode(frame)

	default:
		return wire.Message{}, fmt.Errorf("unknown message %q", cmd)
	}
}

func parseTarget(args []string, want int) (addr, sub byte, err error) {
	if len(args) != want {
		return 0, 0, errUsage
	}
	if addr, err = parseByte(args[0]); err != nil {
		return 0, 0, err
	}
	if sub, err = parseByte(args[1]); err != nil {
		return 0, 0, err
	}
	return addr, sub, nil
}

func parseByte(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q (must be 0-255)", s)
	}
	return byte(v), nil
}

func parseHex(args []string) ([]byte, error) {
	s := strings.Join(args, "")
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return b, nil
}

// formatMessage renders a message for monitor and console output.
func formatMessage(m wire.Message) string {
	var sb strings.Builder
	if m.IsSystem() {
		sb.WriteString("SYS")
	} else {
		fmt.Fprintf(&sb, "%02X:%02X", m.Address(), m.SubAddress())
	}
	cmd, ok := m.Command()
	if !ok {
		sb.WriteString(" <empty>")
		return sb.String()
	}
	fmt.Fprintf(&sb, " %s", wire.CommandName(m.IsSystem(), cmd))
	if info, err := wire.ParsePong(m); err == nil {
		fmt.Fprintf(&sb, " device=0x%02X subs=%d-%d", info.DeviceAddress, info.MinSubAddress, info.MaxSubAddress)
		return sb.String()
	}
	if p := m.Payload(); len(p) > 0 {
		fmt.Fprintf(&sb, " %s", hex.EncodeToString(p))
	}
	return sb.String()
}
