package broadcast

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/tracking"
)

const producerName = "tracking-service"

// Publisher mirrors broadcast events to the message broker for services
// outside the WebSocket surface (audit, analytics).
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// Sender is the WebSocket fan-out surface the coordinator pushes into.
type Sender interface {
	Broadcast(ctx context.Context, group, eventType string, payload any)
}

// Coordinator drains store change notifications and turns each one into
// group broadcasts plus a broker mirror. It owns the driver brief cache so
// the hot path never hits the directory more than once per driver per TTL.
type Coordinator struct {
	logger   *logger.Logger
	events   <-chan tracking.Event
	registry Sender
	rides    ports.RideDirectory
	mq       Publisher

	briefTTL time.Duration
	briefMu  sync.Mutex
	briefs   map[string]cachedBrief
}

type cachedBrief struct {
	brief   contracts.DriverBrief
	fetched time.Time
}

// NewCoordinator wires a coordinator over a store event channel. mq may be
// nil when the broker is disabled; WebSocket fan-out still runs.
func NewCoordinator(log *logger.Logger, events <-chan tracking.Event, registry Sender, rides ports.RideDirectory, mq Publisher) *Coordinator {
	return &Coordinator{
		logger:   log,
		events:   events,
		registry: registry,
		rides:    rides,
		mq:       mq,
		briefTTL: 30 * time.Second,
		briefs:   make(map[string]cachedBrief),
	}
}

// Run drains events until the channel closes or ctx is cancelled. The store
// closes the channel when its sweeper stops, so both exits are clean.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.events:
			if !ok {
				c.logger.Info(ctx, "broadcast_drained", "Store event channel closed, coordinator stopping", nil)
				return nil
			}
			c.dispatch(ctx, ev)
		}
	}
}

func (c *Coordinator) dispatch(ctx context.Context, ev tracking.Event) {
	switch ev.Kind {
	case tracking.EventLocationUpdated:
		c.onLocation(ctx, ev)
	case tracking.EventTrackingStopped:
		c.onStopped(ctx, ev)
	default:
		c.logger.Error(ctx, "broadcast_unknown_event", "Dropping event of unknown kind", nil, map[string]any{
			"kind":    string(ev.Kind),
			"ride_id": ev.RideID,
		})
	}
}

func (c *Coordinator) onLocation(ctx context.Context, ev tracking.Event) {
	if ev.Record == nil {
		return
	}
	rec := ev.Record

	payload := contracts.WSLocationUpdate{
		Type:   contracts.WSTypeLocationUpdate,
		RideID: rec.Sample.RideID,
		Location: contracts.GeoPoint{
			Lat: rec.Sample.Latitude,
			Lng: rec.Sample.Longitude,
		},
		CapturedAt:     rec.Sample.CapturedAt,
		HeadingDegrees: rec.Sample.HeadingDegrees,
		SpeedMps:       rec.Sample.SpeedMps,
		AccuracyMeters: rec.Sample.AccuracyMeters,
		Envelope:       c.envelope(),
	}
	if brief, ok := c.driverBrief(ctx, rec.DriverID); ok {
		payload.DriverInfo = &brief
	}

	c.registry.Broadcast(ctx, contracts.RideGroup(rec.Sample.RideID), contracts.WSTypeLocationUpdate, payload)
	if rec.DriverID != "" {
		c.registry.Broadcast(ctx, contracts.DriverGroup(rec.DriverID), contracts.WSTypeLocationUpdate, payload)
	}
	c.registry.Broadcast(ctx, contracts.GroupAdmins, contracts.WSTypeLocationUpdate, payload)

	c.mirror(ctx, contracts.WSTypeLocationUpdate, payload)
}

func (c *Coordinator) onStopped(ctx context.Context, ev tracking.Event) {
	payload := contracts.WSTrackingStopped{
		Type:     contracts.WSTypeTrackingStopped,
		RideID:   ev.RideID,
		Reason:   string(ev.Reason),
		Envelope: c.envelope(),
	}

	c.registry.Broadcast(ctx, contracts.RideGroup(ev.RideID), contracts.WSTypeTrackingStopped, payload)
	if ev.DriverID != "" {
		c.registry.Broadcast(ctx, contracts.DriverGroup(ev.DriverID), contracts.WSTypeTrackingStopped, payload)
	}
	c.registry.Broadcast(ctx, contracts.GroupAdmins, contracts.WSTypeTrackingStopped, payload)

	c.mirror(ctx, contracts.WSTypeTrackingStopped, payload)
}

// AnnounceStatus pushes a ride status change to the ride's subscribers and
// the admin feed. Called by the service layer after the directory accepted
// the transition; there is no store event for status changes.
func (c *Coordinator) AnnounceStatus(ctx context.Context, rideID, driverID, status string) {
	payload := contracts.WSRideStatusChanged{
		Type:     contracts.WSTypeRideStatusChanged,
		RideID:   rideID,
		Status:   status,
		DriverID: driverID,
		Envelope: c.envelope(),
	}

	c.registry.Broadcast(ctx, contracts.RideGroup(rideID), contracts.WSTypeRideStatusChanged, payload)
	c.registry.Broadcast(ctx, contracts.GroupAdmins, contracts.WSTypeRideStatusChanged, payload)

	c.mirror(ctx, contracts.WSTypeRideStatusChanged, payload)
}

// driverBrief returns the cached display payload for a driver, refreshing
// from the directory when the entry is older than briefTTL. Lookup failures
// are tolerated: broadcasts go out without driver info rather than late.
func (c *Coordinator) driverBrief(ctx context.Context, driverID string) (contracts.DriverBrief, bool) {
	if driverID == "" {
		return contracts.DriverBrief{}, false
	}

	c.briefMu.Lock()
	cached, ok := c.briefs[driverID]
	c.briefMu.Unlock()
	if ok && time.Since(cached.fetched) < c.briefTTL {
		return cached.brief, true
	}

	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	raw, err := c.rides.GetDriverBrief(lookupCtx, driverID)
	if err != nil {
		c.logger.Debug(ctx, "driver_brief_lookup_failed", "Broadcasting without driver info", map[string]any{
			"driver_id": driverID,
			"error":     err.Error(),
		})
		if ok {
			// stale beats absent
			return cached.brief, true
		}
		return contracts.DriverBrief{}, false
	}

	brief := contracts.DriverBrief{
		DriverID: raw.DriverID,
		Name:     raw.Name,
	}
	if raw.VehicleMake != "" || raw.VehicleModel != "" || raw.VehiclePlate != "" {
		brief.Vehicle = &contracts.VehicleInfo{
			Make:  raw.VehicleMake,
			Model: raw.VehicleModel,
			Plate: raw.VehiclePlate,
		}
	}

	c.briefMu.Lock()
	c.briefs[driverID] = cachedBrief{brief: brief, fetched: time.Now()}
	c.briefMu.Unlock()

	return brief, true
}

// mirror publishes the same payload to the fanout exchange. Broker trouble
// never blocks or fails the WebSocket path.
func (c *Coordinator) mirror(ctx context.Context, eventType string, payload any) {
	if c.mq == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := c.mq.Publish(contracts.ExchangeTrackingFanout, eventType, body); err != nil {
		c.logger.Error(ctx, "broadcast_mirror_failed", "Failed to mirror event to broker", err, map[string]any{
			"event": eventType,
		})
	}
}

func (c *Coordinator) envelope() contracts.Envelope {
	return contracts.Envelope{
		CorrelationID: uuid.NewString(),
		Producer:      producerName,
		SentAt:        time.Now().UTC(),
	}
}
