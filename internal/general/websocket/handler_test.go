package websocket_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/ports"
)

type wsRidesStub struct{}

func (wsRidesStub) GetRideOwnership(context.Context, string) (ports.RideOwnership, error) {
	return ports.RideOwnership{}, ports.ErrRideNotFound
}

func (wsRidesStub) ApplyRideStatus(context.Context, string, ride.Status, ride.Status) error {
	return nil
}

func (wsRidesStub) GetDriverBrief(context.Context, string) (ports.DriverBrief, error) {
	return ports.DriverBrief{}, ports.ErrDriverNotFound
}

func newWSServer(t *testing.T, mgr *jwt.Manager) *httptest.Server {
	t.Helper()
	log := logger.New("test")
	h := websocket.NewHandler(log, mgr, websocket.NewRegistry(log), wsRidesStub{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", h.Connect)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dialAndAuth(t *testing.T, srv *httptest.Server, mgr *jwt.Manager) *gws.Conn {
	t.Helper()
	token, _, err := mgr.IssueUserToken("s1", user.RoleStaff)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":  "auth",
		"token": "Bearer " + token,
	}))

	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "auth_success", reply["type"])
	return conn
}

func TestConnectAuthHandshake(t *testing.T) {
	mgr := jwt.NewManager("ws-test-secret", time.Hour)
	srv := newWSServer(t, mgr)

	conn := dialAndAuth(t, srv, mgr)
	defer conn.Close()
}

func TestConnectRejectsBadFirstFrame(t *testing.T) {
	mgr := jwt.NewManager("ws-test-secret", time.Hour)
	srv := newWSServer(t, mgr)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type":  "auth",
		"token": "not-a-bearer-token",
	}))

	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var reply map[string]any
	require.NoError(t, json.Unmarshal(payload, &reply))
	require.Equal(t, "error", reply["type"])
}

// A closed connection must release everything it started. The ping loop
// runs on its own goroutine, so churning connections and comparing the
// goroutine count against the pre-dial baseline catches a loop that never
// noticed its connection is gone.
func TestConnectReleasesGoroutinesOnClose(t *testing.T) {
	mgr := jwt.NewManager("ws-test-secret", time.Hour)
	srv := newWSServer(t, mgr)

	baseline := runtime.NumGoroutine()

	for i := 0; i < 5; i++ {
		conn := dialAndAuth(t, srv, mgr)
		require.NoError(t, conn.Close())
	}

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline+2
	}, 3*time.Second, 50*time.Millisecond)
}
