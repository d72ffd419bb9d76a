package bridge

// State is the connection state of a Bridge.
type State int32

const (
	// StateDisconnected indicates the port is closed.
	StateDisconnected State = iota

	// StateConnecting indicates Connect is opening the port.
	StateConnecting

	// StateConnected indicates the port is open and the reader is running.
	StateConnected

	// StateClosing indicates Close is tearing the connection down.
	StateClosing
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	default:
		return "UNKNOWN"
	}
}
