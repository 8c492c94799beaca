package realtime

// event is an input to the channel state machine.
type event int

const (
	evConnect event = iota
	evOpened
	evFailed
	evTimeout
	evHandshake
	evClosed
	evDisconnect
	evShutdown
	evHeartbeat
)

func (e event) String() string {
	switch e {
	case evConnect:
		return "connect"
	case evOpened:
		return "transport_open"
	case evFailed:
		return "transport_error"
	case evTimeout:
		return "timeout"
	case evHandshake:
		return "handshake"
	case evClosed:
		return "transport_close"
	case evDisconnect:
		return "disconnect"
	case evShutdown:
		return "shutdown"
	case evHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// effect is a side effect the channel performs after a transition.
type effect int

const (
	fxOpenTransport effect = iota
	fxStopTimeout
	fxStartHeartbeat
	fxStopHeartbeat
	fxResolveConnect
	fxRejectConnect
	fxDropTransport
	fxAbandonTransport
	fxCloseTransport
	fxDrainQueue
	fxClearRooms
	fxSendPing
)

// phase is the full machine state: the transport state plus the
// application-level readiness established by the handshake.
type phase struct {
	state State
	ready bool
}

// transition is the channel's state machine. It has no side effects; the
// returned effects are executed in order by the channel. Events that are not
// legal in the current phase leave it unchanged and produce no effects.
func transition(p phase, ev event) (phase, []effect, bool) {
	switch p.state {
	case StateDisconnected:
		switch ev {
		case evConnect:
			return phase{state: StateConnecting}, []effect{fxOpenTransport}, true
		case evDisconnect:
			return p, []effect{fxClearRooms}, true
		}

	case StateConnecting:
		switch ev {
		case evConnect:
			// joins the in-flight attempt
			return p, nil, true
		case evOpened:
			return phase{state: StateOpen}, []effect{fxStopTimeout, fxStartHeartbeat, fxResolveConnect}, true
		case evFailed, evClosed:
			return phase{state: StateDisconnected}, []effect{fxStopTimeout, fxDropTransport, fxRejectConnect}, true
		case evTimeout:
			return phase{state: StateDisconnected}, []effect{fxAbandonTransport, fxRejectConnect}, true
		case evDisconnect:
			return phase{state: StateDisconnected}, []effect{fxStopTimeout, fxAbandonTransport, fxRejectConnect, fxClearRooms}, true
		}

	case StateOpen:
		switch ev {
		case evConnect:
			return p, nil, true
		case evHandshake:
			return phase{state: StateOpen, ready: true}, []effect{fxDrainQueue}, true
		case evHeartbeat:
			return p, []effect{fxSendPing}, true
		case evClosed:
			return phase{state: StateDisconnected}, []effect{fxStopHeartbeat, fxDropTransport}, true
		case evDisconnect:
			return phase{state: StateClosing}, []effect{fxStopHeartbeat, fxCloseTransport, fxClearRooms}, true
		}

	case StateClosing:
		switch ev {
		case evShutdown:
			return phase{state: StateDisconnected}, nil, true
		case evDisconnect:
			return p, nil, true
		}
	}

	return p, nil, false
}
