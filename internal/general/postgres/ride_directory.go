package postgres

import (
	"context"
	"errors"
	"fmt"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RideDirectory is the pgx-backed view of the booking system of record.
// This core never owns ride rows; it only reads ownership and applies
// already-validated status transitions.
type RideDirectory struct {
	pool *pgxpool.Pool
}

// NewRideDirectory wires a RideDirectory around the shared pool.
func NewRideDirectory(pool *pgxpool.Pool) *RideDirectory {
	return &RideDirectory{pool: pool}
}

var _ ports.RideDirectory = (*RideDirectory)(nil)

// GetRideOwnership fetches the assigned driver, the requester, and the
// current status for a ride.
func (d *RideDirectory) GetRideOwnership(ctx context.Context, rideID string) (ports.RideOwnership, error) {
	const q = `
		SELECT r.id, r.driver_id, r.requester_id, r.status
		FROM rides r
		WHERE r.id = $1`

	var (
		own    ports.RideOwnership
		status string
	)
	err := d.pool.QueryRow(ctx, q, rideID).Scan(&own.RideID, &own.AssignedDriverID, &own.RequesterID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ports.RideOwnership{}, ports.ErrRideNotFound
		}
		return ports.RideOwnership{}, fmt.Errorf("get ride ownership: %w", err)
	}

	own.CurrentStatus, err = ride.ParseStatus(status)
	if err != nil {
		return ports.RideOwnership{}, fmt.Errorf("ride %s has stored status %q: %w", rideID, status, err)
	}
	return own, nil
}

// ApplyRideStatus persists a validated transition with an optimistic
// concurrency check: the update only lands if the row still carries the
// status the validator saw.
func (d *RideDirectory) ApplyRideStatus(ctx context.Context, rideID string, from, to ride.Status) error {
	const q = `
		UPDATE rides
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`

	tag, err := d.pool.Exec(ctx, q, to.String(), rideID, from.String())
	if err != nil {
		return fmt.Errorf("apply ride status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// zero rows: either the ride vanished or someone else moved it first
	var exists bool
	if err := d.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rides WHERE id = $1)`, rideID).Scan(&exists); err != nil {
		return fmt.Errorf("apply ride status recheck: %w", err)
	}
	if !exists {
		return ports.ErrRideNotFound
	}
	return ports.ErrStatusConflict
}

// GetDriverBrief fetches the display payload for a driver.
func (d *RideDirectory) GetDriverBrief(ctx context.Context, driverID string) (ports.DriverBrief, error) {
	const q = `
		SELECT d.id, d.full_name, d.vehicle_make, d.vehicle_model, d.vehicle_plate
		FROM drivers d
		WHERE d.id = $1`

	var b ports.DriverBrief
	err := d.pool.QueryRow(ctx, q, driverID).Scan(&b.DriverID, &b.Name, &b.VehicleMake, &b.VehicleModel, &b.VehiclePlate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ports.DriverBrief{}, ports.ErrDriverNotFound
		}
		return ports.DriverBrief{}, fmt.Errorf("get driver brief: %w", err)
	}
	return b, nil
}
