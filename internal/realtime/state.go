package realtime

// State is the lifecycle state of a Channel's transport.
type State int

const (
	// StateDisconnected means no transport exists.
	StateDisconnected State = iota

	// StateConnecting means a transport is being opened.
	StateConnecting

	// StateOpen means the transport is open. Queued messages are only
	// flushed once the server handshake marks the channel ready.
	StateOpen

	// StateClosing means Disconnect is closing the transport.
	StateClosing
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// StateEvent describes a state change observed through OnStateChange.
type StateEvent struct {
	Old State
	New State
	Err error // transport error or close cause, if any
}
