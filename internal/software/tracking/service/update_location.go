package service

import (
	"context"
	"fmt"

	"ride-dispatch/internal/domain/statemachine"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/tracking"
)

// UpdateLocation ingests one GPS sample from the ride's assigned driver.
// The store enforces the rate floor and field ranges atomically; this layer
// only establishes that the caller is allowed to report for the ride.
func (service *trackingService) UpdateLocation(ctx context.Context, actor statemachine.Actor, in ports.UpdateLocationInput) (ports.UpdateLocationResult, error) {
	own, err := service.rides.GetRideOwnership(ctx, in.RideID)
	if err != nil {
		return ports.UpdateLocationResult{}, err
	}
	role, err := user.ParseRole(actor.Role)
	if err != nil || !role.IsDriver() || actor.ID != own.AssignedDriverID {
		return ports.UpdateLocationResult{}, fmt.Errorf("%w: only the assigned driver reports location", statemachine.ErrNotAuthorized)
	}

	sample := tracking.Sample{
		RideID:         in.RideID,
		Latitude:       in.Latitude,
		Longitude:      in.Longitude,
		CapturedAt:     in.CapturedAt,
		HeadingDegrees: in.HeadingDegrees,
		SpeedMps:       in.SpeedMps,
		AccuracyMeters: in.AccuracyMeters,
	}
	rec, err := service.store.Accept(in.RideID, actor.ID, sample)
	if err != nil {
		return ports.UpdateLocationResult{}, err
	}

	service.logger.Info(service.logger.WithRideID(ctx, in.RideID), "location_accepted", "Driver location stored", map[string]any{
		"ride_id":   in.RideID,
		"driver_id": actor.ID,
		"lat":       in.Latitude,
		"lng":       in.Longitude,
	})

	return ports.UpdateLocationResult{
		RideID:   in.RideID,
		StoredAt: rec.StoredAt,
	}, nil
}
