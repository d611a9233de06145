package tracking

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/observability"
)

const shardCount = 32

// Options tunes the Store. Zero values fall back to production defaults.
type Options struct {
	MinInterval   time.Duration // hard floor between accepted updates per ride
	Expiry        time.Duration // max record age before it counts as stale
	SweepInterval time.Duration // how often the background sweep runs
	QueueSize     int           // bounded change-notification queue
	Now           func() time.Time
}

func (o *Options) withDefaults() {
	if o.MinInterval <= 0 {
		o.MinInterval = 10 * time.Second
	}
	if o.Expiry <= 0 {
		o.Expiry = time.Hour
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = 3 * time.Minute
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type shard struct {
	mu      sync.RWMutex
	records map[string]Record
}

// Store holds the single latest location record per ride and enforces
// admission control. All methods are safe for concurrent use; different
// ride ids land on different shards and do not contend.
type Store struct {
	opts   Options
	logger *logger.Logger
	shards [shardCount]*shard

	pubMu  sync.Mutex
	closed bool
	events chan Event
}

// NewStore builds a Store with the given options.
func NewStore(opts Options, log *logger.Logger) *Store {
	opts.withDefaults()
	s := &Store{
		opts:   opts,
		logger: log,
		events: make(chan Event, opts.QueueSize),
	}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[string]Record)}
	}
	return s
}

// Events exposes the change-notification stream consumed by the broadcast
// coordinator. The channel is closed by Close.
func (s *Store) Events() <-chan Event {
	return s.events
}

func (s *Store) shardFor(rideID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(rideID))
	return s.shards[h.Sum32()%shardCount]
}

// Accept stores a sample for the ride, replacing any prior record, and
// returns the record as stored. The interval check runs first and shares
// one critical section with the write, so a client hammering the endpoint
// cannot slip two updates inside the floor, and an update landing inside
// the floor is reported as rate limited no matter what its payload holds.
func (s *Store) Accept(rideID, driverID string, sample Sample) (Record, error) {
	now := s.opts.Now()
	sh := s.shardFor(rideID)

	sh.mu.Lock()
	prev, existed := sh.records[rideID]
	if existed {
		if since := now.Sub(prev.StoredAt); since < s.opts.MinInterval {
			sh.mu.Unlock()
			observability.LocationUpdatesRejected.WithLabelValues("rate_limited").Inc()
			return Record{}, &RateLimitedError{RetryAfter: s.opts.MinInterval - since}
		}
	}
	if err := sample.Validate(); err != nil {
		sh.mu.Unlock()
		observability.LocationUpdatesRejected.WithLabelValues("invalid").Inc()
		return Record{}, err
	}
	rec := Record{Sample: sample, DriverID: driverID, StoredAt: now}
	sh.records[rideID] = rec
	sh.mu.Unlock()

	if !existed {
		observability.ActiveTrackedRides.Inc()
	}
	observability.LocationUpdatesAccepted.Inc()

	s.publish(Event{
		Kind:     EventLocationUpdated,
		RideID:   rideID,
		DriverID: driverID,
		Record:   &rec,
		At:       now,
	})
	return rec, nil
}

// Latest returns the current record for a ride. Expiry is enforced lazily:
// a record older than the threshold is reported as not tracking, identical
// to never having been stored. The sweep deletes it later and raises the
// stop notification exactly once.
func (s *Store) Latest(rideID string) (Record, error) {
	now := s.opts.Now()
	sh := s.shardFor(rideID)

	sh.mu.RLock()
	rec, ok := sh.records[rideID]
	sh.mu.RUnlock()

	if !ok || rec.Age(now) > s.opts.Expiry {
		return Record{}, ErrNotTracking
	}
	return rec, nil
}

// AllActive snapshots every non-expired record. The copy is taken shard by
// shard so writers are never blocked for the whole iteration.
func (s *Store) AllActive() []Record {
	now := s.opts.Now()
	out := make([]Record, 0, 64)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, rec := range sh.records {
			if rec.Age(now) <= s.opts.Expiry {
				out = append(out, rec)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

// Remove deletes the record for a ride and always raises a tracking_stopped
// notification with the given reason, even when no record existed.
func (s *Store) Remove(rideID string, reason StopReason) {
	sh := s.shardFor(rideID)

	sh.mu.Lock()
	rec, existed := sh.records[rideID]
	if existed {
		delete(sh.records, rideID)
	}
	sh.mu.Unlock()

	if existed {
		observability.ActiveTrackedRides.Dec()
	}

	s.publish(Event{
		Kind:     EventTrackingStopped,
		RideID:   rideID,
		DriverID: rec.DriverID,
		Reason:   reason,
		At:       s.opts.Now(),
	})
}

// RunSweeper periodically expires stale records until ctx is cancelled,
// then closes the event stream.
func (s *Store) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.pubMu.Lock()
			s.closed = true
			close(s.events)
			s.pubMu.Unlock()
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep removes everything past the expiry threshold. Candidates are
// collected from a read snapshot; age is re-checked under the shard lock
// right before deleting, so an update landing mid-sweep wins.
func (s *Store) sweep(ctx context.Context) {
	now := s.opts.Now()
	expired := 0

	for _, sh := range s.shards {
		sh.mu.RLock()
		var candidates []string
		for rideID, rec := range sh.records {
			if rec.Age(now) > s.opts.Expiry {
				candidates = append(candidates, rideID)
			}
		}
		sh.mu.RUnlock()

		for _, rideID := range candidates {
			sh.mu.Lock()
			rec, ok := sh.records[rideID]
			if !ok || rec.Age(s.opts.Now()) <= s.opts.Expiry {
				sh.mu.Unlock()
				continue
			}
			delete(sh.records, rideID)
			sh.mu.Unlock()

			observability.ActiveTrackedRides.Dec()
			expired++
			s.publish(Event{
				Kind:     EventTrackingStopped,
				RideID:   rideID,
				DriverID: rec.DriverID,
				Reason:   StopReasonExpired,
				At:       s.opts.Now(),
			})
		}
	}

	if expired > 0 && s.logger != nil {
		s.logger.Info(ctx, "tracking_sweep", "Expired stale location records", map[string]any{
			"expired": expired,
		})
	}
}

// publish enqueues an event without ever blocking the caller. When the
// queue is full the oldest pending event is dropped: a fresher location
// supersedes a stale one anyway.
func (s *Store) publish(ev Event) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	if s.closed {
		return
	}

	select {
	case s.events <- ev:
		return
	default:
	}

	select {
	case <-s.events:
		observability.TrackingEventsDropped.Inc()
	default:
	}
	select {
	case s.events <- ev:
	default:
		observability.TrackingEventsDropped.Inc()
	}
}
