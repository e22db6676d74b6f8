package supervisor

// State is a unit's lifecycle state.
type State int

// Unit states.
const (
	StateLaunching State = iota
	StateRunning
	StateCompleting
	StateAborting
	StateFailed
	StateTerminated
)

var stateNames = [...]string{
	StateLaunching:  "launching",
	StateRunning:    "running",
	StateCompleting: "completing",
	StateAborting:   "aborting",
	StateFailed:     "failed",
	StateTerminated: "terminated",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var transitions = map[State][]State{
	StateLaunching:  {StateRunning, StateAborting, StateFailed},
	StateRunning:    {StateCompleting, StateAborting, StateFailed},
	StateCompleting: {StateTerminated},
	StateAborting:   {StateTerminated},
	StateFailed:     {StateTerminated},
}

// CanTransition reports whether to is a legal successor of s.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a final or pre-final state.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleting, StateAborting, StateFailed, StateTerminated:
		return true
	default:
		return false
	}
}
