package chat

// State is the lifecycle state of a realtime session.
type State int

const (
	// StateDisconnected is the initial state, and the state after any close or error.
	StateDisconnected State = iota
	// StateConnecting means a transport handshake is in flight.
	StateConnecting
	// StateConnected means frames can be sent and received.
	StateConnected
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}
