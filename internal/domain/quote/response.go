package quote

import (
	"errors"
	"fmt"
	"time"
)

// pickupGrace absorbs clock skew between caller and server when validating
// a proposed pickup time.
const pickupGrace = time.Minute

var (
	ErrNonPositivePrice = errors.New("price must be greater than zero")
	ErrPickupInPast     = errors.New("proposed pickup time is in the past")
)

// Response carries the priced reply a dispatcher attaches when moving a
// quote to RESPONDED.
type Response struct {
	Price        float64
	ProposedTime time.Time
}

// ValidateResponse checks the numeric/time fields of a dispatcher response.
// These are validation failures, not transition failures: the caller maps
// them to 400, never to 403/409.
func ValidateResponse(resp Response, now time.Time) error {
	if resp.Price <= 0 {
		return fmt.Errorf("%w: got %v", ErrNonPositivePrice, resp.Price)
	}
	if resp.ProposedTime.Before(now.Add(-pickupGrace)) {
		return fmt.Errorf("%w: %s", ErrPickupInPast, resp.ProposedTime.UTC().Format(time.RFC3339))
	}
	return nil
}
