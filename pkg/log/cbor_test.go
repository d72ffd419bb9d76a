package log

import (
	"bytes"
	"testing"
	"time"

	"github.com/moppy-project/moppy-go/pkg/wire"
)

func TestEventCBORRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC)
	msg := wire.MustMessage(wire.NoteOnMessage(0x01, 0x04, 62))

	tests := []struct {
		name  string
		event Event
	}{
		{
			name: "frame",
			event: Event{
				Timestamp:    ts,
				ConnectionID: "conn-frame",
				Direction:    DirectionIn,
				Layer:        LayerTransport,
				Category:     CategoryMessage,
				PortName:     "/dev/ttyUSB0",
				Frame:        &FrameEvent{Size: 6, Data: msg.Encode(), Discarded: 3},
			},
		},
		{
			name: "message",
			event: Event{
				Timestamp:    ts,
				ConnectionID: "conn-msg",
				Direction:    DirectionOut,
				Layer:        LayerWire,
				Category:     CategoryMessage,
				Message:      NewMessageEvent(msg),
			},
		},
		{
			name: "state change",
			event: Event{
				Timestamp:    ts,
				ConnectionID: "conn-state",
				Layer:        LayerBridge,
				Category:     CategoryState,
				StateChange: &StateChangeEvent{
					Entity:   StateEntityConnection,
					OldState: "DISCONNECTED",
					NewState: "CONNECTED",
				},
			},
		},
		{
			name: "error",
			event: Event{
				Timestamp:    ts,
				ConnectionID: "conn-err",
				Layer:        LayerTransport,
				Category:     CategoryError,
				Error:        &ErrorEventData{Layer: LayerTransport, Message: "frame truncated", Context: "read"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEvent(tt.event)
			if err != nil {
				t.Fatalf("EncodeEvent failed: %v", err)
			}

			got, err := DecodeEvent(data)
			if err != nil {
				t.Fatalf("DecodeEvent failed: %v", err)
			}

			if !got.Timestamp.Equal(tt.event.Timestamp) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, tt.event.Timestamp)
			}
			if got.ConnectionID != tt.event.ConnectionID {
				t.Errorf("ConnectionID = %q, want %q", got.ConnectionID, tt.event.ConnectionID)
			}
			if got.Category != tt.event.Category || got.Layer != tt.event.Layer || got.Direction != tt.event.Direction {
				t.Errorf("classification = %v/%v/%v, want %v/%v/%v",
					got.Direction, got.Layer, got.Category,
					tt.event.Direction, tt.event.Layer, tt.event.Category)
			}

			switch {
			case tt.event.Frame != nil:
				if got.Frame == nil || !bytes.Equal(got.Frame.Data, tt.event.Frame.Data) || got.Frame.Discarded != 3 {
					t.Errorf("Frame = %+v, want %+v", got.Frame, tt.event.Frame)
				}
			case tt.event.Message != nil:
				if got.Message == nil {
					t.Fatal("Message missing after round trip")
				}
				if got.Message.SubAddress == nil || *got.Message.SubAddress != 0x04 {
					t.Errorf("SubAddress = %v, want 4", got.Message.SubAddress)
				}
				if got.Message.CommandName() != "NOTE_ON" {
					t.Errorf("CommandName() = %q, want NOTE_ON", got.Message.CommandName())
				}
			case tt.event.StateChange != nil:
				if got.StateChange == nil || got.StateChange.NewState != "CONNECTED" {
					t.Errorf("StateChange = %+v", got.StateChange)
				}
			case tt.event.Error != nil:
				if got.Error == nil || got.Error.Message != "frame truncated" {
					t.Errorf("Error = %+v", got.Error)
				}
			}
		})
	}
}

func TestDecodeEventGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00}); err == nil {
		t.Error("expected error decoding garbage")
	}
}

func TestNewMessageEventSystem(t *testing.T) {
	ev := NewMessageEvent(wire.PingMessage())
	if !ev.System {
		t.Error("ping should be a system message")
	}
	if ev.SubAddress != nil {
		t.Errorf("system message has sub-address %d", *ev.SubAddress)
	}
	if ev.CommandName() != "PING" {
		t.Errorf("CommandName() = %q, want PING", ev.CommandName())
	}

	empty := NewMessageEvent(wire.MustMessage(wire.NewSystemMessage(nil)))
	if empty.Command != nil || empty.CommandName() != "" {
		t.Errorf("empty body should have no command, got %v", empty.Command)
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{DirectionIn.String(), "IN"},
		{DirectionOut.String(), "OUT"},
		{Direction(9).String(), "UNKNOWN"},
		{LayerTransport.String(), "TRANSPORT"},
		{LayerWire.String(), "WIRE"},
		{LayerBridge.String(), "BRIDGE"},
		{CategoryMessage.String(), "MESSAGE"},
		{CategoryState.String(), "STATE"},
		{CategoryError.String(), "ERROR"},
		{StateEntityReader.String(), "READER"},
		{StateEntityGatewayClient.String(), "GATEWAY_CLIENT"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
