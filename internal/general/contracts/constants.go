package contracts

// Exchanges
const (
	ExchangeTrackingFanout = "tracking_fanout"
)

// Queues
const (
	QueueTrackingAudit = "tracking_audit"
)

// Subscription group keys. Ride and driver groups are parameterized;
// admins is a singleton.
const (
	GroupAdmins       = "admins"
	GroupRidePrefix   = "ride:"
	GroupDriverPrefix = "driver:"
)

// RideGroup returns the group key for a ride's subscribers.
func RideGroup(rideID string) string { return GroupRidePrefix + rideID }

// DriverGroup returns the group key for a driver's (staff-only) subscribers.
func DriverGroup(driverID string) string { return GroupDriverPrefix + driverID }
