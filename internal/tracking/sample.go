package tracking

import (
	"fmt"
	"time"
)

// Sample is one GPS reading as reported by a driver. Immutable once built.
// Heading, speed and accuracy are optional; nil means "not reported".
type Sample struct {
	RideID     string
	Latitude   float64
	Longitude  float64
	CapturedAt time.Time // UTC capture time as claimed by the device

	HeadingDegrees *float64 // 0..360
	SpeedMps       *float64 // >= 0
	AccuracyMeters *float64 // >= 0
}

// Validate checks every field range. A sample that fails validation is
// reported to the caller and never stored.
func (s Sample) Validate() error {
	if s.RideID == "" {
		return fmt.Errorf("%w: missing ride id", ErrInvalidSample)
	}
	if s.Latitude < -90 || s.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidSample, s.Latitude)
	}
	if s.Longitude < -180 || s.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidSample, s.Longitude)
	}
	if s.HeadingDegrees != nil && (*s.HeadingDegrees < 0 || *s.HeadingDegrees > 360) {
		return fmt.Errorf("%w: heading %v out of range", ErrInvalidSample, *s.HeadingDegrees)
	}
	if s.SpeedMps != nil && *s.SpeedMps < 0 {
		return fmt.Errorf("%w: speed %v out of range", ErrInvalidSample, *s.SpeedMps)
	}
	if s.AccuracyMeters != nil && *s.AccuracyMeters < 0 {
		return fmt.Errorf("%w: accuracy %v out of range", ErrInvalidSample, *s.AccuracyMeters)
	}
	return nil
}

// Record is the stored "latest known location" for a ride. At most one
// Record exists per ride id; an accepted sample fully replaces it.
type Record struct {
	Sample   Sample
	DriverID string
	StoredAt time.Time
}

// Age returns how long ago the record was stored.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.StoredAt)
}
