package tracking

import "time"

// EventKind discriminates store change notifications.
type EventKind string

const (
	EventLocationUpdated EventKind = "location_updated"
	EventTrackingStopped EventKind = "tracking_stopped"
)

// StopReason is the human-readable reason attached to a tracking_stopped
// notification.
type StopReason string

const (
	StopReasonCompleted StopReason = "ride completed"
	StopReasonCancelled StopReason = "ride cancelled"
	StopReasonExpired   StopReason = "tracking expired"
)

// Event is one change notification raised by the Store. Location events
// carry the accepted record; stop events carry the reason. DriverID may be
// empty on a stop event when no record existed (removal is idempotent).
type Event struct {
	Kind     EventKind
	RideID   string
	DriverID string
	Record   *Record
	Reason   StopReason
	At       time.Time
}
