package contracts

import "time"

// Event type strings pushed over subscriber WebSockets.
const (
	WSTypeLocationUpdate        = "location_update"
	WSTypeRideStatusChanged     = "ride_status_changed"
	WSTypeTrackingStopped       = "tracking_stopped"
	WSTypeSubscriptionConfirmed = "subscription_confirmed"
)

// WSLocationUpdate mirrors a store write to every subscribed client.
type WSLocationUpdate struct {
	Type           string       `json:"type"` // "location_update"
	RideID         string       `json:"ride_id"`
	Location       GeoPoint     `json:"location"`
	CapturedAt     time.Time    `json:"captured_at"`
	HeadingDegrees *float64     `json:"heading_degrees,omitempty"`
	SpeedMps       *float64     `json:"speed_mps,omitempty"`
	AccuracyMeters *float64     `json:"accuracy_meters,omitempty"`
	DriverInfo     *DriverBrief `json:"driver_info,omitempty"`
	Envelope
}

// WSRideStatusChanged announces an accepted ride status transition.
type WSRideStatusChanged struct {
	Type     string `json:"type"` // "ride_status_changed"
	RideID   string `json:"ride_id"`
	Status   string `json:"status"`
	DriverID string `json:"driver_id,omitempty"`
	Envelope
}

// WSTrackingStopped tells subscribers a ride's live record is gone and why.
type WSTrackingStopped struct {
	Type   string `json:"type"` // "tracking_stopped"
	RideID string `json:"ride_id"`
	Reason string `json:"reason"` // "ride completed" | "ride cancelled" | "tracking expired"
	Envelope
}

// WSSubscriptionConfirmed is sent to the subscribing connection only,
// never group-broadcast.
type WSSubscriptionConfirmed struct {
	Type  string `json:"type"` // "subscription_confirmed"
	Group string `json:"group"`
	Envelope
}
