package session

// State is the session machine state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateListening
	StateThinking
	StateSpeaking
	StateCompleting
	StateError
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateSpeaking:
		return "speaking"
	case StateCompleting:
		return "completing"
	case StateError:
		return "error"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// active reports whether the session is in a connected, conversing state.
func (s State) active() bool {
	switch s {
	case StateListening, StateThinking, StateSpeaking:
		return true
	default:
		return false
	}
}
