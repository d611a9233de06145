package service

import (
	"context"
	"fmt"

	"ride-dispatch/internal/domain/statemachine"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/tracking"
)

// GetLocation returns the live record for a ride. An absent or expired
// record is reported as not tracking, which is distinct from the ride not
// existing at all; callers render those differently.
func (service *trackingService) GetLocation(ctx context.Context, actor statemachine.Actor, rideID string) (ports.LocationView, error) {
	own, err := service.rides.GetRideOwnership(ctx, rideID)
	if err != nil {
		return ports.LocationView{}, err
	}
	role, err := user.ParseRole(actor.Role)
	if err != nil || !own.Entitled(role, actor.ID) {
		return ports.LocationView{}, fmt.Errorf("%w: not entitled to this ride", statemachine.ErrNotAuthorized)
	}

	rec, err := service.store.Latest(rideID)
	if err != nil {
		return ports.LocationView{}, err
	}
	return service.view(rec), nil
}

// AllActiveLocations snapshots every currently tracked ride for the admin
// board. Role gating happens at the route.
func (service *trackingService) AllActiveLocations(ctx context.Context) ([]ports.LocationView, error) {
	records := service.store.AllActive()
	out := make([]ports.LocationView, 0, len(records))
	for _, rec := range records {
		out = append(out, service.view(rec))
	}
	return out, nil
}

func (service *trackingService) view(rec tracking.Record) ports.LocationView {
	return ports.LocationView{
		RideID:         rec.Sample.RideID,
		DriverID:       rec.DriverID,
		Latitude:       rec.Sample.Latitude,
		Longitude:      rec.Sample.Longitude,
		CapturedAt:     rec.Sample.CapturedAt,
		StoredAt:       rec.StoredAt,
		AgeSeconds:     rec.Age(service.now()).Seconds(),
		HeadingDegrees: rec.Sample.HeadingDegrees,
		SpeedMps:       rec.Sample.SpeedMps,
		AccuracyMeters: rec.Sample.AccuracyMeters,
	}
}
