package ride

import (
	"errors"
	"strings"

	"ride-dispatch/internal/domain/statemachine"
	"ride-dispatch/internal/domain/user"
)

// Status is a ride status as visible to drivers and dispatch.
type Status string

const (
	StatusScheduled        Status = "SCHEDULED"
	StatusOnRoute          Status = "ON_ROUTE"
	StatusArrived          Status = "ARRIVED"
	StatusPassengerOnboard Status = "PASSENGER_ONBOARD"
	StatusCompleted        Status = "COMPLETED"
	StatusCancelled        Status = "CANCELLED"
)

var ErrInvalidStatus = errors.New("invalid ride status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed ride status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusScheduled, StatusOnRoute, StatusArrived, StatusPassengerOnboard, StatusCompleted, StatusCancelled:
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
	return status == StatusCompleted || status == StatusCancelled
}

// Machine is the ride lifecycle machine. Every intermediate state may move
// forward one step or cancel; nothing leaves COMPLETED or CANCELLED.
// Only the assigned driver may drive any transition.
var Machine = statemachine.Machine{
	Name: "ride",
	Edges: map[statemachine.State][]statemachine.State{
		statemachine.State(StatusScheduled):        {statemachine.State(StatusOnRoute), statemachine.State(StatusCancelled)},
		statemachine.State(StatusOnRoute):          {statemachine.State(StatusArrived), statemachine.State(StatusCancelled)},
		statemachine.State(StatusArrived):          {statemachine.State(StatusPassengerOnboard), statemachine.State(StatusCancelled)},
		statemachine.State(StatusPassengerOnboard): {statemachine.State(StatusCompleted), statemachine.State(StatusCancelled)},
	},
	Terminal: map[statemachine.State]bool{
		statemachine.State(StatusCompleted): true,
		statemachine.State(StatusCancelled): true,
	},
	Guard: func(_, _ statemachine.State, actor statemachine.Actor, assignedDriverID string) error {
		role, err := user.ParseRole(actor.Role)
		if err != nil || !role.IsDriver() {
			return statemachine.ErrNotAuthorized
		}
		if actor.ID == "" || actor.ID != assignedDriverID {
			return statemachine.ErrNotAuthorized
		}
		return nil
	},
}

// Validate checks whether the actor may move a ride from one status to
// another. assignedDriverID is the driver the ride belongs to.
func Validate(from, to Status, actor statemachine.Actor, assignedDriverID string) error {
	return Machine.CanTransition(statemachine.State(from), statemachine.State(to), actor, assignedDriverID)
}
