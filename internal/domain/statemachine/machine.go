package statemachine

import "errors"

// State is a single named state in a finite state machine.
type State string

var (
	// ErrInvalidTransition means the requested edge does not exist in the table.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotAuthorized means the actor may not drive this transition at all.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrUnknownState means the current state is not part of the machine.
	ErrUnknownState = errors.New("unknown state")
)

// Actor identifies who is requesting a transition.
type Actor struct {
	Role string // role string from JWT claims
	ID   string // subject identity from JWT claims
}

// Guard decides whether an actor may request the given edge.
// OwnerID carries the machine-specific owner identity (the ride's assigned
// driver, the quote's original requester). Guards run before adjacency, so
// an unauthorized actor is rejected independent of transition validity.
type Guard func(from, to State, actor Actor, ownerID string) error

// Machine is a transition table plus an authorization guard.
// It is pure and safe for concurrent use; callers serialize transitions
// against the underlying record themselves.
type Machine struct {
	Name     string
	Edges    map[State][]State
	Terminal map[State]bool
	Guard    Guard
}

// CanTransition validates an actor-requested transition.
// Returns nil when allowed, ErrNotAuthorized when the guard rejects the
// actor, and ErrInvalidTransition when the edge is not in the table.
func (m *Machine) CanTransition(from, to State, actor Actor, ownerID string) error {
	if m.Guard != nil {
		if err := m.Guard(from, to, actor, ownerID); err != nil {
			return err
		}
	}

	next, ok := m.Edges[from]
	if !ok && !m.Terminal[from] {
		return ErrUnknownState
	}
	for _, s := range next {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// IsTerminal reports whether no transition leaves the given state.
func (m *Machine) IsTerminal(s State) bool {
	return m.Terminal[s]
}
