package postgres

import (
	"context"
	"errors"
	"fmt"

	"ride-dispatch/internal/domain/quote"
	"ride-dispatch/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuoteDirectory is the pgx-backed view of quote records plus the booking
// side effect of acceptance.
type QuoteDirectory struct {
	pool *pgxpool.Pool
}

// NewQuoteDirectory wires a QuoteDirectory around the shared pool.
func NewQuoteDirectory(pool *pgxpool.Pool) *QuoteDirectory {
	return &QuoteDirectory{pool: pool}
}

var _ ports.QuoteDirectory = (*QuoteDirectory)(nil)

// GetQuote fetches the requester identity and current status for a quote.
func (d *QuoteDirectory) GetQuote(ctx context.Context, quoteID string) (ports.QuoteRecord, error) {
	const q = `
		SELECT q.id, q.requester_id, q.status
		FROM quotes q
		WHERE q.id = $1`

	var (
		rec    ports.QuoteRecord
		status string
	)
	err := d.pool.QueryRow(ctx, q, quoteID).Scan(&rec.QuoteID, &rec.RequesterID, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ports.QuoteRecord{}, ports.ErrQuoteNotFound
		}
		return ports.QuoteRecord{}, fmt.Errorf("get quote: %w", err)
	}

	rec.CurrentStatus, err = quote.ParseStatus(status)
	if err != nil {
		return ports.QuoteRecord{}, fmt.Errorf("quote %s has stored status %q: %w", quoteID, status, err)
	}
	return rec, nil
}

// ApplyQuoteStatus persists a validated transition with the same
// optimistic concurrency check as rides.
func (d *QuoteDirectory) ApplyQuoteStatus(ctx context.Context, quoteID string, from, to quote.Status) error {
	const q = `
		UPDATE quotes
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`

	tag, err := d.pool.Exec(ctx, q, to.String(), quoteID, from.String())
	if err != nil {
		return fmt.Errorf("apply quote status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := d.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM quotes WHERE id = $1)`, quoteID).Scan(&exists); err != nil {
		return fmt.Errorf("apply quote status recheck: %w", err)
	}
	if !exists {
		return ports.ErrQuoteNotFound
	}
	return ports.ErrStatusConflict
}

// CreateBookingFromQuote copies the accepted quote into a booking row and
// returns the new booking id.
func (d *QuoteDirectory) CreateBookingFromQuote(ctx context.Context, quoteID string) (string, error) {
	const q = `
		INSERT INTO bookings (quote_id, requester_id, price, pickup_at, created_at)
		SELECT q.id, q.requester_id, q.price, q.proposed_pickup, now()
		FROM quotes q
		WHERE q.id = $1
		RETURNING bookings.id`

	var bookingID string
	if err := d.pool.QueryRow(ctx, q, quoteID).Scan(&bookingID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ports.ErrQuoteNotFound
		}
		return "", fmt.Errorf("create booking from quote: %w", err)
	}
	return bookingID, nil
}
