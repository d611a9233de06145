package ports

import (
	"context"
	"errors"

	"ride-dispatch/internal/domain/quote"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
)

var (
	// ErrRideNotFound means the ride id is unknown to the system of record.
	ErrRideNotFound = errors.New("ride not found")
	// ErrQuoteNotFound means the quote id is unknown to the system of record.
	ErrQuoteNotFound = errors.New("quote not found")
	// ErrDriverNotFound means the driver id is unknown to the system of record.
	ErrDriverNotFound = errors.New("driver not found")
	// ErrStatusConflict means the stored status changed between read and
	// apply; the caller lost the optimistic-concurrency race.
	ErrStatusConflict = errors.New("status changed concurrently")
)

// RideOwnership is the read-only ownership view used to gate subscriptions
// and status transitions.
type RideOwnership struct {
	RideID           string
	AssignedDriverID string
	RequesterID      string
	CurrentStatus    ride.Status
}

// Entitled reports whether the identity may observe this ride: the booking
// requester, the assigned driver, or any staff identity.
func (o RideOwnership) Entitled(role user.Role, id string) bool {
	if role.IsStaff() {
		return true
	}
	return id != "" && (id == o.RequesterID || id == o.AssignedDriverID)
}

// DriverBrief is the display payload attached to location broadcasts.
type DriverBrief struct {
	DriverID     string
	Name         string
	VehicleMake  string
	VehicleModel string
	VehiclePlate string
}

// RideDirectory is the narrow boundary to the excluded persistence layer
// for rides. The dispatch core never stores ride status itself.
type RideDirectory interface {
	GetRideOwnership(ctx context.Context, rideID string) (RideOwnership, error)
	// ApplyRideStatus persists an already-validated transition. The expected
	// current status is passed so the store can reject concurrent writers
	// with ErrStatusConflict.
	ApplyRideStatus(ctx context.Context, rideID string, from, to ride.Status) error
	GetDriverBrief(ctx context.Context, driverID string) (DriverBrief, error)
}

// QuoteRecord is the slice of a quote this core needs for validation.
type QuoteRecord struct {
	QuoteID       string
	RequesterID   string
	CurrentStatus quote.Status
}

// QuoteDirectory is the narrow boundary to the excluded persistence layer
// for quotes and the booking side effect of acceptance.
type QuoteDirectory interface {
	GetQuote(ctx context.Context, quoteID string) (QuoteRecord, error)
	ApplyQuoteStatus(ctx context.Context, quoteID string, from, to quote.Status) error
	// CreateBookingFromQuote converts an accepted quote into a booking and
	// returns the new booking id. Called exactly once per acceptance.
	CreateBookingFromQuote(ctx context.Context, quoteID string) (string, error)
}
