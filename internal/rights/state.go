package rights

import (
	"errors"
	"fmt"
	"strings"
)

// State is a license clearance state.
type State string

const (
	StatePending    State = "pending_clearance"
	StateCleared    State = "cleared"
	StateRestricted State = "restricted"
	StateRejected   State = "rejected"
)

var (
	// ErrInvalidState marks an unknown state name.
	ErrInvalidState = errors.New("invalid license state")
	// ErrInvalidTransition marks a move the state machine does not allow.
	ErrInvalidTransition = errors.New("invalid license transition")
	// ErrEvidenceRequired marks a clearance without an evidence URI.
	ErrEvidenceRequired = errors.New("clearance requires evidence")
)

var transitions = map[State][]State{
	StatePending: {StateCleared, StateRestricted, StateRejected},
	StateCleared: {StateRestricted, StateRejected},
}

// ParseState validates a state name. Matching is case-insensitive and
// accepts "pending" as shorthand.
func ParseState(value string) (State, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "pending", string(StatePending):
		return StatePending, nil
	case string(StateCleared), string(StateRestricted), string(StateRejected):
		return State(normalized), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidState, value)
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateRestricted || s == StateRejected
}

// Publishable reports whether artifacts may be in the catalog under s.
func (s State) Publishable() bool {
	return s == StateCleared
}

// CheckTransition validates moving from one state to another. Clearing
// requires a non-empty evidence URI.
func CheckTransition(from, to State, evidenceURI string) error {
	if _, err := ParseState(string(to)); err != nil {
		return err
	}
	allowed := false
	for _, next := range transitions[from] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if to == StateCleared && strings.TrimSpace(evidenceURI) == "" {
		return ErrEvidenceRequired
	}
	return nil
}
