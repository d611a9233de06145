package broadcast_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/tracking"
	"ride-dispatch/internal/tracking/broadcast"
)

type sentEvent struct {
	group     string
	eventType string
	payload   any
}

type stubSender struct {
	mu   sync.Mutex
	sent []sentEvent
}

func (s *stubSender) Broadcast(_ context.Context, group, eventType string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentEvent{group: group, eventType: eventType, payload: payload})
}

func (s *stubSender) groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, ev := range s.sent {
		out = append(out, ev.group)
	}
	return out
}

type stubPublisher struct {
	mu        sync.Mutex
	published []string // routing keys
	err       error
}

func (p *stubPublisher) Publish(_, routingKey string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, routingKey)
	return nil
}

type stubDirectory struct {
	mu      sync.Mutex
	brief   ports.DriverBrief
	err     error
	lookups int
}

func (d *stubDirectory) GetRideOwnership(context.Context, string) (ports.RideOwnership, error) {
	return ports.RideOwnership{}, ports.ErrRideNotFound
}

func (d *stubDirectory) ApplyRideStatus(context.Context, string, ride.Status, ride.Status) error {
	return nil
}

func (d *stubDirectory) GetDriverBrief(context.Context, string) (ports.DriverBrief, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lookups++
	return d.brief, d.err
}

func record(rideID, driverID string) *tracking.Record {
	return &tracking.Record{
		Sample: tracking.Sample{
			RideID:     rideID,
			Latitude:   52.37,
			Longitude:  4.89,
			CapturedAt: time.Now().UTC(),
		},
		DriverID: driverID,
		StoredAt: time.Now().UTC(),
	}
}

func runCoordinator(t *testing.T, events chan tracking.Event, sender *stubSender, dir *stubDirectory, pub *stubPublisher) func() {
	t.Helper()
	coord := broadcast.NewCoordinator(logger.New("test"), events, sender, dir, pub)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = coord.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("coordinator did not stop")
		}
	}
}

func TestLocationEventFansOutToAllGroups(t *testing.T) {
	events := make(chan tracking.Event, 4)
	sender := &stubSender{}
	dir := &stubDirectory{brief: ports.DriverBrief{DriverID: "d1", Name: "Alex"}}
	pub := &stubPublisher{}
	stop := runCoordinator(t, events, sender, dir, pub)
	defer stop()

	events <- tracking.Event{
		Kind:     tracking.EventLocationUpdated,
		RideID:   "r1",
		DriverID: "d1",
		Record:   record("r1", "d1"),
		At:       time.Now().UTC(),
	}

	require.Eventually(t, func() bool { return len(sender.groups()) == 3 }, time.Second, 5*time.Millisecond)
	require.ElementsMatch(t, []string{
		contracts.RideGroup("r1"),
		contracts.DriverGroup("d1"),
		contracts.GroupAdmins,
	}, sender.groups())

	payload, ok := sender.sent[0].payload.(contracts.WSLocationUpdate)
	require.True(t, ok)
	require.Equal(t, "r1", payload.RideID)
	require.NotNil(t, payload.DriverInfo)
	require.Equal(t, "Alex", payload.DriverInfo.Name)
}

func TestStopEventCarriesReason(t *testing.T) {
	events := make(chan tracking.Event, 4)
	sender := &stubSender{}
	stop := runCoordinator(t, events, sender, &stubDirectory{}, &stubPublisher{})
	defer stop()

	events <- tracking.Event{
		Kind:     tracking.EventTrackingStopped,
		RideID:   "r1",
		DriverID: "d1",
		Reason:   tracking.StopReasonExpired,
		At:       time.Now().UTC(),
	}

	require.Eventually(t, func() bool { return len(sender.groups()) == 3 }, time.Second, 5*time.Millisecond)
	payload, ok := sender.sent[0].payload.(contracts.WSTrackingStopped)
	require.True(t, ok)
	require.Equal(t, string(tracking.StopReasonExpired), payload.Reason)
}

func TestDriverBriefIsCached(t *testing.T) {
	events := make(chan tracking.Event, 4)
	sender := &stubSender{}
	dir := &stubDirectory{brief: ports.DriverBrief{DriverID: "d1", Name: "Alex"}}
	stop := runCoordinator(t, events, sender, dir, &stubPublisher{})
	defer stop()

	for range 3 {
		events <- tracking.Event{
			Kind:     tracking.EventLocationUpdated,
			RideID:   "r1",
			DriverID: "d1",
			Record:   record("r1", "d1"),
			At:       time.Now().UTC(),
		}
	}

	require.Eventually(t, func() bool { return len(sender.groups()) == 9 }, time.Second, 5*time.Millisecond)

	dir.mu.Lock()
	defer dir.mu.Unlock()
	require.Equal(t, 1, dir.lookups)
}

func TestBriefLookupFailureDoesNotBlockBroadcast(t *testing.T) {
	events := make(chan tracking.Event, 4)
	sender := &stubSender{}
	dir := &stubDirectory{err: errors.New("db down")}
	stop := runCoordinator(t, events, sender, dir, &stubPublisher{})
	defer stop()

	events <- tracking.Event{
		Kind:     tracking.EventLocationUpdated,
		RideID:   "r1",
		DriverID: "d1",
		Record:   record("r1", "d1"),
		At:       time.Now().UTC(),
	}

	require.Eventually(t, func() bool { return len(sender.groups()) == 3 }, time.Second, 5*time.Millisecond)
	payload := sender.sent[0].payload.(contracts.WSLocationUpdate)
	require.Nil(t, payload.DriverInfo)
}

func TestBrokerFailureDoesNotBlockFanOut(t *testing.T) {
	events := make(chan tracking.Event, 4)
	sender := &stubSender{}
	pub := &stubPublisher{err: errors.New("broker gone")}
	stop := runCoordinator(t, events, sender, &stubDirectory{}, pub)
	defer stop()

	events <- tracking.Event{
		Kind:     tracking.EventLocationUpdated,
		RideID:   "r1",
		DriverID: "d1",
		Record:   record("r1", "d1"),
		At:       time.Now().UTC(),
	}

	require.Eventually(t, func() bool { return len(sender.groups()) == 3 }, time.Second, 5*time.Millisecond)
}

func TestMirrorPublishesToFanout(t *testing.T) {
	events := make(chan tracking.Event, 4)
	sender := &stubSender{}
	pub := &stubPublisher{}
	stop := runCoordinator(t, events, sender, &stubDirectory{}, pub)
	defer stop()

	events <- tracking.Event{
		Kind:     tracking.EventLocationUpdated,
		RideID:   "r1",
		DriverID: "d1",
		Record:   record("r1", "d1"),
		At:       time.Now().UTC(),
	}

	require.Eventually(t, func() bool {
		pub.mu.Lock()
		defer pub.mu.Unlock()
		return len(pub.published) == 1
	}, time.Second, 5*time.Millisecond)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Equal(t, contracts.WSTypeLocationUpdate, pub.published[0])
}

func TestAnnounceStatusReachesRideGroupAndAdmins(t *testing.T) {
	sender := &stubSender{}
	pub := &stubPublisher{}
	coord := broadcast.NewCoordinator(logger.New("test"), nil, sender, &stubDirectory{}, pub)

	coord.AnnounceStatus(context.Background(), "r1", "d1", "COMPLETED")

	require.ElementsMatch(t, []string{
		contracts.RideGroup("r1"),
		contracts.GroupAdmins,
	}, sender.groups())

	payload := sender.sent[0].payload.(contracts.WSRideStatusChanged)
	require.Equal(t, "COMPLETED", payload.Status)
	require.Equal(t, "d1", payload.DriverID)
	require.Equal(t, []string{contracts.WSTypeRideStatusChanged}, pub.published)
}

func TestClosedChannelStopsRun(t *testing.T) {
	events := make(chan tracking.Event)
	coord := broadcast.NewCoordinator(logger.New("test"), events, &stubSender{}, &stubDirectory{}, nil)

	done := make(chan error, 1)
	go func() { done <- coord.Run(context.Background()) }()
	close(events)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}
}
