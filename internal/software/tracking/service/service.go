package service

import (
	"context"
	"time"

	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/tracking"
)

// StatusAnnouncer pushes ride status changes to live subscribers. Satisfied
// by the broadcast coordinator.
type StatusAnnouncer interface {
	AnnounceStatus(ctx context.Context, rideID, driverID, status string)
}

// trackingService holds all dependencies required by the tracking service.
type trackingService struct {
	logger    *logger.Logger
	store     *tracking.Store
	rides     ports.RideDirectory
	quotes    ports.QuoteDirectory
	announcer StatusAnnouncer
	now       func() time.Time
}

// NewTrackingService constructs the service with required dependencies.
func NewTrackingService(
	log *logger.Logger,
	store *tracking.Store,
	rides ports.RideDirectory,
	quotes ports.QuoteDirectory,
	announcer StatusAnnouncer,
) ports.TrackingService {
	return &trackingService{
		logger:    log,
		store:     store,
		rides:     rides,
		quotes:    quotes,
		announcer: announcer,
		now:       func() time.Time { return time.Now().UTC() },
	}
}
