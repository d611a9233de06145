package quote

import (
	"errors"
	"strings"

	"ride-dispatch/internal/domain/statemachine"
	"ride-dispatch/internal/domain/user"
)

// Status is a quote status as visible to requesters and dispatch staff.
type Status string

const (
	StatusSubmitted    Status = "SUBMITTED"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusResponded    Status = "RESPONDED"
	StatusAccepted     Status = "ACCEPTED"
	StatusRejected     Status = "REJECTED"
	StatusCancelled    Status = "CANCELLED"
)

var ErrInvalidStatus = errors.New("invalid quote status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed quote status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusSubmitted, StatusAcknowledged, StatusResponded, StatusAccepted, StatusRejected, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// Terminal indicates if the status is in a terminal state.
func (status Status) Terminal() bool {
	return status == StatusAccepted || status == StatusRejected || status == StatusCancelled
}

// Machine is the quote lifecycle machine. REJECTED exists only as an exit
// from SUBMITTED; CANCELLED exits every non-terminal state.
//
// Acceptance is a requester-exclusive right: staff may never accept on a
// requester's behalf, admin or not. The guard expresses this once instead
// of each handler re-checking it.
var Machine = statemachine.Machine{
	Name: "quote",
	Edges: map[statemachine.State][]statemachine.State{
		statemachine.State(StatusSubmitted):    {statemachine.State(StatusAcknowledged), statemachine.State(StatusRejected), statemachine.State(StatusCancelled)},
		statemachine.State(StatusAcknowledged): {statemachine.State(StatusResponded), statemachine.State(StatusCancelled)},
		statemachine.State(StatusResponded):    {statemachine.State(StatusAccepted), statemachine.State(StatusCancelled)},
	},
	Terminal: map[statemachine.State]bool{
		statemachine.State(StatusAccepted):  true,
		statemachine.State(StatusRejected):  true,
		statemachine.State(StatusCancelled): true,
	},
	Guard: guard,
}

func guard(_, to statemachine.State, actor statemachine.Actor, requesterID string) error {
	role, err := user.ParseRole(actor.Role)
	if err != nil {
		return statemachine.ErrNotAuthorized
	}

	switch Status(to) {
	case StatusAcknowledged, StatusResponded, StatusRejected:
		if !role.IsStaff() {
			return statemachine.ErrNotAuthorized
		}
	case StatusAccepted:
		// identity, not role: a staff identity that is not the requester is
		// rejected even though it could drive every other transition
		if actor.ID == "" || actor.ID != requesterID {
			return statemachine.ErrNotAuthorized
		}
	case StatusCancelled:
		if actor.ID != requesterID && !role.IsStaff() {
			return statemachine.ErrNotAuthorized
		}
	default:
		return statemachine.ErrNotAuthorized
	}
	return nil
}

// Validate checks whether the actor may move a quote from one status to
// another. requesterID is the identity that originally submitted the quote.
func Validate(from, to Status, actor statemachine.Actor, requesterID string) error {
	return Machine.CanTransition(statemachine.State(from), statemachine.State(to), actor, requesterID)
}
