package service

import (
	"context"

	"ride-dispatch/internal/domain/quote"
	"ride-dispatch/internal/domain/statemachine"
	"ride-dispatch/internal/ports"
)

// applyQuote runs the shared transition path: load, validate against the
// quote machine, persist with the expected source status so racing writers
// conflict instead of double-applying.
func (service *trackingService) applyQuote(ctx context.Context, actor statemachine.Actor, quoteID string, to quote.Status) (ports.QuoteRecord, error) {
	rec, err := service.quotes.GetQuote(ctx, quoteID)
	if err != nil {
		return ports.QuoteRecord{}, err
	}
	if err := quote.Validate(rec.CurrentStatus, to, actor, rec.RequesterID); err != nil {
		return ports.QuoteRecord{}, err
	}
	if err := service.quotes.ApplyQuoteStatus(ctx, quoteID, rec.CurrentStatus, to); err != nil {
		return ports.QuoteRecord{}, err
	}

	service.logger.Info(ctx, "quote_status_changed", "Quote status transition accepted", map[string]any{
		"quote_id": quoteID,
		"from":     rec.CurrentStatus.String(),
		"to":       to.String(),
		"actor":    actor.ID,
	})
	return rec, nil
}

// AcknowledgeQuote marks a submitted quote as seen by dispatch.
func (service *trackingService) AcknowledgeQuote(ctx context.Context, actor statemachine.Actor, quoteID string) (ports.QuoteActionResult, error) {
	if _, err := service.applyQuote(ctx, actor, quoteID, quote.StatusAcknowledged); err != nil {
		return ports.QuoteActionResult{}, err
	}
	return ports.QuoteActionResult{QuoteID: quoteID, Status: quote.StatusAcknowledged.String()}, nil
}

// RespondQuote attaches a priced reply. Field validation runs before the
// transition so a bad price never consumes the one allowed RESPONDED move.
func (service *trackingService) RespondQuote(ctx context.Context, actor statemachine.Actor, quoteID string, in ports.QuoteRespondInput) (ports.QuoteActionResult, error) {
	resp := quote.Response{Price: in.Price, ProposedTime: in.ProposedPickup}
	if err := quote.ValidateResponse(resp, service.now()); err != nil {
		return ports.QuoteActionResult{}, err
	}
	if _, err := service.applyQuote(ctx, actor, quoteID, quote.StatusResponded); err != nil {
		return ports.QuoteActionResult{}, err
	}
	return ports.QuoteActionResult{QuoteID: quoteID, Status: quote.StatusResponded.String()}, nil
}

// AcceptQuote converts a responded quote into a booking. The booking is
// created only after the status transition persisted, so a conflicting
// writer can never cause two bookings for one quote.
func (service *trackingService) AcceptQuote(ctx context.Context, actor statemachine.Actor, quoteID string) (ports.QuoteActionResult, error) {
	if _, err := service.applyQuote(ctx, actor, quoteID, quote.StatusAccepted); err != nil {
		return ports.QuoteActionResult{}, err
	}

	bookingID, err := service.quotes.CreateBookingFromQuote(ctx, quoteID)
	if err != nil {
		service.logger.Error(ctx, "booking_create_failed", "Quote accepted but booking creation failed", err, map[string]any{
			"quote_id": quoteID,
		})
		return ports.QuoteActionResult{}, err
	}

	service.logger.Info(ctx, "booking_created", "Accepted quote converted to booking", map[string]any{
		"quote_id":   quoteID,
		"booking_id": bookingID,
	})
	return ports.QuoteActionResult{QuoteID: quoteID, Status: quote.StatusAccepted.String(), BookingID: bookingID}, nil
}

// RejectQuote declines a quote before any dispatcher work happened.
func (service *trackingService) RejectQuote(ctx context.Context, actor statemachine.Actor, quoteID string) (ports.QuoteActionResult, error) {
	if _, err := service.applyQuote(ctx, actor, quoteID, quote.StatusRejected); err != nil {
		return ports.QuoteActionResult{}, err
	}
	return ports.QuoteActionResult{QuoteID: quoteID, Status: quote.StatusRejected.String()}, nil
}

// CancelQuote withdraws a quote on behalf of its requester or staff.
func (service *trackingService) CancelQuote(ctx context.Context, actor statemachine.Actor, quoteID string) (ports.QuoteActionResult, error) {
	if _, err := service.applyQuote(ctx, actor, quoteID, quote.StatusCancelled); err != nil {
		return ports.QuoteActionResult{}, err
	}
	return ports.QuoteActionResult{QuoteID: quoteID, Status: quote.StatusCancelled.String()}, nil
}
