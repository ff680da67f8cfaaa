package stream

// State is the lifecycle state of a Session.
type State int32

const (
	// StateIdle is a session that has not started streaming.
	StateIdle State = iota
	// StateStreaming indicates chunks are arriving from the source.
	StateStreaming
	// StateDraining indicates the source has completed and queued chunks remain.
	StateDraining
	// StateFinalized indicates end of stream was signalled to the sink.
	StateFinalized
	// StateErrored indicates the source failed. Buffered audio still drains.
	StateErrored
	// StateAborted indicates the caller stopped the session.
	StateAborted
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateFinalized:
		return "finalized"
	case StateErrored:
		return "errored"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateFinalized || s == StateErrored || s == StateAborted
}

var transitions = map[State][]State{
	StateIdle:      {StateStreaming, StateAborted},
	StateStreaming: {StateDraining, StateFinalized, StateErrored, StateAborted},
	StateDraining:  {StateFinalized, StateErrored, StateAborted},
}

// CanTransition reports whether moving from s to next is allowed.
func (s State) CanTransition(next State) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// Termination records how the source ended.
type Termination int32

const (
	// TerminationNone means the source is still delivering.
	TerminationNone Termination = iota
	// TerminationCompleted means every chunk was delivered.
	TerminationCompleted
	// TerminationFailed means the source stopped with an error.
	TerminationFailed
)

func (t Termination) String() string {
	switch t {
	case TerminationNone:
		return "none"
	case TerminationCompleted:
		return "completed"
	case TerminationFailed:
		return "failed"
	default:
		return "unknown"
	}
}
