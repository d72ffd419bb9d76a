package log

import (
	"time"

	"github.com/moppy-project/moppy-go/pkg/wire"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies one connect/close cycle of a bridge (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// PortName is the serial device or network address of the link.
	PortName string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // Wire layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Bridge state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates bytes read from the device.
	DirectionIn Direction = 0
	// DirectionOut indicates bytes written to the device.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerWire is the message layer (decoded frames).
	LayerWire Layer = 1
	// LayerBridge is the bridge lifecycle layer.
	LayerBridge Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerBridge:
		return "BRIDGE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a frame or decoded message.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame bytes at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes, start byte included.
	Size int `cbor:"1,keyasint"`

	// Data is the raw frame.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Discarded counts the non-frame bytes skipped before this frame
	// while resynchronizing (inbound only).
	Discarded int `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded message at the wire layer.
type MessageEvent struct {
	// System is true for messages sent to the system address.
	System bool `cbor:"1,keyasint,omitempty"`

	// Address is the device (or system) address.
	Address uint8 `cbor:"2,keyasint"`

	// SubAddress is set for device messages only.
	SubAddress *uint8 `cbor:"3,keyasint,omitempty"`

	// Command is the first body byte, when the body is not empty.
	Command *uint8 `cbor:"4,keyasint,omitempty"`

	// BodyLength is the declared body length.
	BodyLength int `cbor:"5,keyasint"`

	// Body is the message body.
	Body []byte `cbor:"6,keyasint,omitempty"`
}

// NewMessageEvent describes m for the protocol log.
func NewMessageEvent(m wire.Message) *MessageEvent {
	ev := &MessageEvent{
		System:     m.IsSystem(),
		Address:    m.Address(),
		BodyLength: m.BodyLen(),
		Body:       m.Body(),
	}
	if !m.IsSystem() {
		sub := m.SubAddress()
		ev.SubAddress = &sub
	}
	if cmd, ok := m.Command(); ok {
		ev.Command = &cmd
	}
	return ev
}

// CommandName returns the readable command name, or "" for an empty body.
func (m *MessageEvent) CommandName() string {
	if m.Command == nil {
		return ""
	}
	return wire.CommandName(m.System, *m.Command)
}

// StateChangeEvent captures bridge lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a port open/close.
	StateEntityConnection StateEntity = 0
	// StateEntityReader indicates the background reader starting or stopping.
	StateEntityReader StateEntity = 1
	// StateEntityGatewayClient indicates a network client of a gateway.
	StateEntityGatewayClient StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityReader:
		return "READER"
	case StateEntityGatewayClient:
		return "GATEWAY_CLIENT"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
