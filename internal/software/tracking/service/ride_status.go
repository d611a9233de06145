package service

import (
	"context"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/statemachine"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/tracking"
)

// UpdateRideStatus validates and persists a driver's status transition. A
// transition into a terminal status ends tracking: the live record is
// removed and subscribers get a tracking_stopped alongside the status event.
func (service *trackingService) UpdateRideStatus(ctx context.Context, actor statemachine.Actor, rideID, newStatus string) (ports.UpdateRideStatusResult, error) {
	to, err := ride.ParseStatus(newStatus)
	if err != nil {
		return ports.UpdateRideStatusResult{}, err
	}

	own, err := service.rides.GetRideOwnership(ctx, rideID)
	if err != nil {
		return ports.UpdateRideStatusResult{}, err
	}
	from := own.CurrentStatus

	if err := ride.Validate(from, to, actor, own.AssignedDriverID); err != nil {
		return ports.UpdateRideStatusResult{}, err
	}

	if err := service.rides.ApplyRideStatus(ctx, rideID, from, to); err != nil {
		return ports.UpdateRideStatusResult{}, err
	}

	ctx = service.logger.WithRideID(ctx, rideID)
	service.logger.Info(ctx, "ride_status_changed", "Ride status transition accepted", map[string]any{
		"ride_id": rideID,
		"from":    from.String(),
		"to":      to.String(),
		"actor":   actor.ID,
	})

	if to.Terminal() {
		reason := tracking.StopReasonCompleted
		if to == ride.StatusCancelled {
			reason = tracking.StopReasonCancelled
		}
		service.store.Remove(rideID, reason)
	}

	if service.announcer != nil {
		service.announcer.AnnounceStatus(ctx, rideID, own.AssignedDriverID, to.String())
	}

	return ports.UpdateRideStatusResult{
		RideID: rideID,
		Status: to.String(),
	}, nil
}
