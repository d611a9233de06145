package ports

import (
	"context"
	"time"

	"ride-dispatch/internal/domain/statemachine"
)

// ----- DTOs for the tracking service -----

// UpdateLocationInput is the validated input for POST /rides/{ride_id}/location.
type UpdateLocationInput struct {
	RideID         string
	Latitude       float64
	Longitude      float64
	CapturedAt     time.Time
	HeadingDegrees *float64
	SpeedMps       *float64
	AccuracyMeters *float64
}

// UpdateLocationResult matches the API response for an accepted update.
type UpdateLocationResult struct {
	RideID   string    `json:"ride_id"`
	StoredAt time.Time `json:"stored_at"`
}

// LocationView is the read model returned by location queries.
type LocationView struct {
	RideID         string    `json:"ride_id"`
	DriverID       string    `json:"driver_id"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	CapturedAt     time.Time `json:"captured_at"`
	StoredAt       time.Time `json:"stored_at"`
	AgeSeconds     float64   `json:"age_seconds"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
	SpeedMps       *float64  `json:"speed_mps,omitempty"`
	AccuracyMeters *float64  `json:"accuracy_meters,omitempty"`
}

// UpdateRideStatusResult matches the API response for a status mutation.
type UpdateRideStatusResult struct {
	RideID  string `json:"ride_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// QuoteRespondInput carries the priced reply for POST /quotes/{id}/respond.
type QuoteRespondInput struct {
	Price          float64
	ProposedPickup time.Time
}

// QuoteActionResult matches the API response for any quote mutation.
type QuoteActionResult struct {
	QuoteID   string `json:"quote_id"`
	Status    string `json:"status"`
	BookingID string `json:"booking_id,omitempty"`
}

// ----- service interface -----

// TrackingService exposes the boundary of the tracking/lifecycle core.
// The actor is always the authenticated caller taken from JWT claims.
type TrackingService interface {
	UpdateLocation(ctx context.Context, actor statemachine.Actor, in UpdateLocationInput) (UpdateLocationResult, error)
	GetLocation(ctx context.Context, actor statemachine.Actor, rideID string) (LocationView, error)
	AllActiveLocations(ctx context.Context) ([]LocationView, error)

	UpdateRideStatus(ctx context.Context, actor statemachine.Actor, rideID, newStatus string) (UpdateRideStatusResult, error)

	AcknowledgeQuote(ctx context.Context, actor statemachine.Actor, quoteID string) (QuoteActionResult, error)
	RespondQuote(ctx context.Context, actor statemachine.Actor, quoteID string, in QuoteRespondInput) (QuoteActionResult, error)
	AcceptQuote(ctx context.Context, actor statemachine.Actor, quoteID string) (QuoteActionResult, error)
	RejectQuote(ctx context.Context, actor statemachine.Actor, quoteID string) (QuoteActionResult, error)
	CancelQuote(ctx context.Context, actor statemachine.Actor, quoteID string) (QuoteActionResult, error)
}
