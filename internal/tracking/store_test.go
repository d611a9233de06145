package tracking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/tracking"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newStore(clock *fakeClock, opts tracking.Options) *tracking.Store {
	opts.Now = clock.Now
	return tracking.NewStore(opts, logger.New("test"))
}

func sample(rideID string) tracking.Sample {
	return tracking.Sample{
		RideID:     rideID,
		Latitude:   52.37,
		Longitude:  4.89,
		CapturedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func drainOne(t *testing.T, events <-chan tracking.Event) tracking.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event within 1s")
		return tracking.Event{}
	}
}

func TestAcceptEnforcesMinimumInterval(t *testing.T) {
	clock := newFakeClock()
	store := newStore(clock, tracking.Options{MinInterval: 10 * time.Second})

	_, err := store.Accept("r1", "d1", sample("r1"))
	require.NoError(t, err)

	clock.Advance(5 * time.Second)
	_, err = store.Accept("r1", "d1", sample("r1"))
	require.ErrorIs(t, err, tracking.ErrRateLimited)

	var rl *tracking.RateLimitedError
	require.ErrorAs(t, err, &rl)
	require.Equal(t, 5*time.Second, rl.RetryAfter)

	clock.Advance(6 * time.Second) // 11s since the accepted write
	_, err = store.Accept("r1", "d1", sample("r1"))
	require.NoError(t, err)
}

func TestRateLimitTakesPrecedenceOverValidation(t *testing.T) {
	clock := newFakeClock()
	store := newStore(clock, tracking.Options{MinInterval: 10 * time.Second})

	_, err := store.Accept("r1", "d1", sample("r1"))
	require.NoError(t, err)

	// inside the floor a garbage payload is still reported as rate
	// limited, so clients back off instead of retrying immediately
	bad := sample("r1")
	bad.Latitude = 95
	clock.Advance(5 * time.Second)
	_, err = store.Accept("r1", "d1", bad)
	require.ErrorIs(t, err, tracking.ErrRateLimited)
	require.NotErrorIs(t, err, tracking.ErrInvalidSample)

	var rl *tracking.RateLimitedError
	require.ErrorAs(t, err, &rl)
	require.Equal(t, 5*time.Second, rl.RetryAfter)

	// once the floor clears the same payload fails validation again
	clock.Advance(6 * time.Second)
	_, err = store.Accept("r1", "d1", bad)
	require.ErrorIs(t, err, tracking.ErrInvalidSample)
}

func TestAcceptRejectsInvalidSamples(t *testing.T) {
	clock := newFakeClock()
	store := newStore(clock, tracking.Options{})

	bad := sample("r1")
	bad.Latitude = 95
	_, err := store.Accept("r1", "d1", bad)
	require.ErrorIs(t, err, tracking.ErrInvalidSample)

	heading := 400.0
	bad = sample("r1")
	bad.HeadingDegrees = &heading
	_, err = store.Accept("r1", "d1", bad)
	require.ErrorIs(t, err, tracking.ErrInvalidSample)

	// a rejected sample must not count toward the rate floor
	_, err = store.Accept("r1", "d1", sample("r1"))
	require.NoError(t, err)
}

func TestRateLimitIsPerRide(t *testing.T) {
	clock := newFakeClock()
	store := newStore(clock, tracking.Options{MinInterval: 10 * time.Second})

	_, err := store.Accept("r1", "d1", sample("r1"))
	require.NoError(t, err)
	_, err = store.Accept("r2", "d2", sample("r2"))
	require.NoError(t, err)
}

func TestLatestExpiresLazily(t *testing.T) {
	clock := newFakeClock()
	store := newStore(clock, tracking.Options{Expiry: time.Hour})

	rec, err := store.Accept("r1", "d1", sample("r1"))
	require.NoError(t, err)

	got, err := store.Latest("r1")
	require.NoError(t, err)
	require.Equal(t, rec.StoredAt, got.StoredAt)

	clock.Advance(61 * time.Minute)
	_, err = store.Latest("r1")
	require.ErrorIs(t, err, tracking.ErrNotTracking)

	// lazy expiry raises no event; only the accept is on the channel
	ev := drainOne(t, store.Events())
	require.Equal(t, tracking.EventLocationUpdated, ev.Kind)
	select {
	case extra := <-store.Events():
		t.Fatalf("unexpected event %v", extra.Kind)
	default:
	}
}

func TestLatestUnknownRide(t *testing.T) {
	store := newStore(newFakeClock(), tracking.Options{})
	_, err := store.Latest("nope")
	require.ErrorIs(t, err, tracking.ErrNotTracking)
}

func TestAllActiveSkipsExpired(t *testing.T) {
	clock := newFakeClock()
	store := newStore(clock, tracking.Options{Expiry: time.Hour})

	_, err := store.Accept("r1", "d1", sample("r1"))
	require.NoError(t, err)

	clock.Advance(59 * time.Minute)
	_, err = store.Accept("r2", "d2", sample("r2"))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute) // r1 now past expiry, r2 fresh
	active := store.AllActive()
	require.Len(t, active, 1)
	require.Equal(t, "r2", active[0].Sample.RideID)
}

func TestRemoveAlwaysPublishesStop(t *testing.T) {
	clock := newFakeClock()
	store := newStore(clock, tracking.Options{})

	_, err := store.Accept("r1", "d1", sample("r1"))
	require.NoError(t, err)
	drainOne(t, store.Events())

	store.Remove("r1", tracking.StopReasonCompleted)
	ev := drainOne(t, store.Events())
	require.Equal(t, tracking.EventTrackingStopped, ev.Kind)
	require.Equal(t, "r1", ev.RideID)
	require.Equal(t, "d1", ev.DriverID)
	require.Equal(t, tracking.StopReasonCompleted, ev.Reason)

	_, err = store.Latest("r1")
	require.ErrorIs(t, err, tracking.ErrNotTracking)

	// removal is idempotent but the stop event still goes out
	store.Remove("r1", tracking.StopReasonCancelled)
	ev = drainOne(t, store.Events())
	require.Equal(t, tracking.EventTrackingStopped, ev.Kind)
	require.Empty(t, ev.DriverID)
}

func TestEventQueueDropsOldestWhenFull(t *testing.T) {
	clock := newFakeClock()
	store := newStore(clock, tracking.Options{QueueSize: 2})

	for _, rideID := range []string{"r1", "r2", "r3"} {
		_, err := store.Accept(rideID, "d", sample(rideID))
		require.NoError(t, err)
	}

	first := drainOne(t, store.Events())
	require.Equal(t, "r2", first.RideID, "oldest event dropped, not newest")
	second := drainOne(t, store.Events())
	require.Equal(t, "r3", second.RideID)
}

func TestSweepRemovesExpiredAndPublishesOnce(t *testing.T) {
	clock := newFakeClock()
	store := newStore(clock, tracking.Options{
		Expiry:        time.Hour,
		SweepInterval: 10 * time.Millisecond,
	})

	_, err := store.Accept("r1", "d1", sample("r1"))
	require.NoError(t, err)
	drainOne(t, store.Events())

	clock.Advance(2 * time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		store.RunSweeper(ctx)
		close(done)
	}()

	ev := drainOne(t, store.Events())
	require.Equal(t, tracking.EventTrackingStopped, ev.Kind)
	require.Equal(t, "r1", ev.RideID)
	require.Equal(t, tracking.StopReasonExpired, ev.Reason)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}

	// channel closed on shutdown, no second stop event for r1
	for ev := range store.Events() {
		require.NotEqual(t, "r1", ev.RideID)
	}
}

func TestSweepKeepsFreshRecords(t *testing.T) {
	clock := newFakeClock()
	store := newStore(clock, tracking.Options{
		Expiry:        time.Hour,
		SweepInterval: 10 * time.Millisecond,
	})

	_, err := store.Accept("r1", "d1", sample("r1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go store.RunSweeper(ctx)

	time.Sleep(50 * time.Millisecond)
	_, err = store.Latest("r1")
	require.NoError(t, err)
	cancel()
}
