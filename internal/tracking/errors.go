package tracking

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidSample marks a sample whose fields fall outside valid ranges.
	ErrInvalidSample = errors.New("invalid location sample")
	// ErrRateLimited marks an update arriving before the minimum interval
	// since the last accepted one elapsed.
	ErrRateLimited = errors.New("location update rate limited")
	// ErrNotTracking means no live record exists for the ride. This is a
	// normal state, distinct from "ride does not exist".
	ErrNotTracking = errors.New("ride is not currently tracked")
)

// RateLimitedError tells the caller how long to back off.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("location update rate limited, retry after %s", e.RetryAfter.Round(time.Second))
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
