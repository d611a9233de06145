package websocket_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/websocket"
)

// fakeConn records every frame written to it.
type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
	err    error // returned from WriteMessage when set
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.frames = append(c.frames, buf)
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func waitForFrames(t *testing.T, c *fakeConn, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.frameCount() >= n },
		time.Second, 5*time.Millisecond)
}

func newRegistry() *websocket.Registry {
	return websocket.NewRegistry(logger.New("test"))
}

func TestSubscribeAndBroadcast(t *testing.T) {
	reg := newRegistry()
	conn := &fakeConn{}

	connID := reg.Register("p1", user.RolePassenger, conn)
	require.NoError(t, reg.Subscribe(connID, contracts.RideGroup("r1")))
	require.Equal(t, 1, reg.GroupSize(contracts.RideGroup("r1")))

	reg.Broadcast(context.Background(), contracts.RideGroup("r1"), "location_update",
		map[string]string{"ride_id": "r1"})

	waitForFrames(t, conn, 1)
	var got map[string]string
	require.NoError(t, json.Unmarshal(conn.frames[0], &got))
	require.Equal(t, "r1", got["ride_id"])
}

func TestBroadcastOnlyReachesGroupMembers(t *testing.T) {
	reg := newRegistry()
	member := &fakeConn{}
	outsider := &fakeConn{}

	memberID := reg.Register("p1", user.RolePassenger, member)
	reg.Register("p2", user.RolePassenger, outsider)
	require.NoError(t, reg.Subscribe(memberID, contracts.RideGroup("r1")))

	reg.Broadcast(context.Background(), contracts.RideGroup("r1"), "location_update", map[string]string{})

	waitForFrames(t, member, 1)
	require.Zero(t, outsider.frameCount())
}

func TestStaffAutoJoinsAdmins(t *testing.T) {
	reg := newRegistry()
	staff := &fakeConn{}
	admin := &fakeConn{}
	passenger := &fakeConn{}

	reg.Register("s1", user.RoleStaff, staff)
	reg.Register("a1", user.RoleAdmin, admin)
	reg.Register("p1", user.RolePassenger, passenger)

	require.Equal(t, 2, reg.GroupSize(contracts.GroupAdmins))

	reg.Broadcast(context.Background(), contracts.GroupAdmins, "location_update", map[string]string{})
	waitForFrames(t, staff, 1)
	waitForFrames(t, admin, 1)
	require.Zero(t, passenger.frameCount())
}

func TestDriverGroupsAreStaffOnly(t *testing.T) {
	reg := newRegistry()

	passengerID := reg.Register("p1", user.RolePassenger, &fakeConn{})
	err := reg.Subscribe(passengerID, contracts.DriverGroup("d1"))
	require.ErrorIs(t, err, websocket.ErrNotAuthorized)

	driverID := reg.Register("d1", user.RoleDriver, &fakeConn{})
	err = reg.Subscribe(driverID, contracts.DriverGroup("d1"))
	require.ErrorIs(t, err, websocket.ErrNotAuthorized)

	staffID := reg.Register("s1", user.RoleStaff, &fakeConn{})
	require.NoError(t, reg.Subscribe(staffID, contracts.DriverGroup("d1")))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	reg := newRegistry()
	connID := reg.Register("p1", user.RolePassenger, &fakeConn{})
	require.NoError(t, reg.Subscribe(connID, contracts.RideGroup("r1")))

	reg.Unsubscribe(connID, contracts.RideGroup("r1"))
	reg.Unsubscribe(connID, contracts.RideGroup("r1"))
	reg.Unsubscribe("ghost", contracts.RideGroup("r1"))

	require.Zero(t, reg.GroupSize(contracts.RideGroup("r1")))
}

func TestSubscribeUnknownConnection(t *testing.T) {
	reg := newRegistry()
	err := reg.Subscribe("ghost", contracts.RideGroup("r1"))
	require.ErrorIs(t, err, websocket.ErrUnknownConnection)
}

func TestDisconnectRemovesAllMemberships(t *testing.T) {
	reg := newRegistry()
	conn := &fakeConn{}

	connID := reg.Register("s1", user.RoleStaff, conn)
	require.NoError(t, reg.Subscribe(connID, contracts.RideGroup("r1")))
	require.NoError(t, reg.Subscribe(connID, contracts.DriverGroup("d1")))

	reg.Disconnect(connID)

	require.True(t, conn.closed)
	require.Zero(t, reg.GroupSize(contracts.RideGroup("r1")))
	require.Zero(t, reg.GroupSize(contracts.DriverGroup("d1")))
	require.Zero(t, reg.GroupSize(contracts.GroupAdmins))

	// a later broadcast to its former groups delivers nothing and does not error
	reg.Broadcast(context.Background(), contracts.RideGroup("r1"), "location_update", map[string]string{})
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, conn.frameCount())
}

func TestBroadcastIsolatesFailingConnections(t *testing.T) {
	reg := newRegistry()
	broken := &fakeConn{err: errors.New("write: broken pipe")}
	healthy := &fakeConn{}

	brokenID := reg.Register("p1", user.RolePassenger, broken)
	healthyID := reg.Register("p2", user.RolePassenger, healthy)
	require.NoError(t, reg.Subscribe(brokenID, contracts.RideGroup("r1")))
	require.NoError(t, reg.Subscribe(healthyID, contracts.RideGroup("r1")))

	reg.Broadcast(context.Background(), contracts.RideGroup("r1"), "location_update", map[string]string{})

	waitForFrames(t, healthy, 1)
}

func TestSendToVanishedTargetIsNoOp(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.SendTo("ghost", map[string]string{"type": "noop"}))
}
