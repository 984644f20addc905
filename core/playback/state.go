package playback

import "fmt"

// State is the overlay state of a playback surface.
type State int

const (
	// StateLoading is the initial state and the state after any (re)start.
	StateLoading State = iota
	// StateOnline means media is flowing.
	StateOnline
	// StateRetrying means the transport is recovering without operator action.
	StateRetrying
	// StateFailed means the current attempt is over; a refresh or retry leaves it.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateOnline:
		return "online"
	case StateRetrying:
		return "retrying"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its lowercase name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{StateLoading, StateOnline, StateRetrying, StateFailed} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown playback state %q", text)
}

// Status is Loading | Online | Retrying | Failed(reason).
type Status struct {
	State  State
	Reason string
}

// Loading is the status every session starts in.
func Loading() Status { return Status{State: StateLoading} }

// Failed builds a failed status carrying a human readable reason.
func Failed(reason string) Status { return Status{State: StateFailed, Reason: reason} }

func (s Status) String() string {
	if s.State == StateFailed && s.Reason != "" {
		return fmt.Sprintf("failed(%s)", s.Reason)
	}
	return s.State.String()
}

// CanTransition reports whether next is a legal successor of the current state.
// Loading is entered from any live state on restart (refresh, fallback, retry).
func (s Status) CanTransition(next State) bool {
	switch s.State {
	case StateLoading:
		return next == StateOnline || next == StateRetrying || next == StateFailed
	case StateOnline:
		return next == StateRetrying || next == StateFailed || next == StateLoading
	case StateRetrying:
		return next == StateOnline || next == StateFailed || next == StateLoading
	case StateFailed:
		return next == StateLoading
	}
	return false
}

// Next applies a transition. Staying in the same state is a no-op and
// reports false; an illegal move returns an error and leaves s unchanged.
func (s Status) Next(next State, reason string) (Status, bool, error) {
	if s.State == next && next != StateFailed {
		return s, false, nil
	}
	if s.State == StateFailed && next == StateFailed {
		return Status{State: StateFailed, Reason: reason}, reason != s.Reason, nil
	}
	if !s.CanTransition(next) {
		return s, false, fmt.Errorf("illegal transition %s -> %s", s.State, next)
	}
	if next != StateFailed {
		reason = ""
	}
	return Status{State: next, Reason: reason}, true, nil
}
