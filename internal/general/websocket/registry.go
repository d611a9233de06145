package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/observability"

	"github.com/google/uuid"
)

const writeTimeout = 5 * time.Second

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNotAuthorized     = errors.New("not authorized")
)

// Conn is the slice of *websocket.Conn the registry writes through.
// Narrowed to an interface so fan-out logic is testable without sockets.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

const textMessage = 1 // websocket.TextMessage

// client is one authenticated subscriber connection.
type client struct {
	id      string
	subject string
	role    user.Role
	conn    Conn

	mu     sync.Mutex // serializes writes to conn
	groups map[string]struct{}
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(textMessage, payload)
}

// Registry tracks live connections and their group memberships, and fans
// events out to groups. All methods are safe for concurrent use.
type Registry struct {
	logger *logger.Logger

	mu      sync.RWMutex
	clients map[string]*client
	groups  map[string]map[string]*client
}

// NewRegistry builds an empty Registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		logger:  log,
		clients: make(map[string]*client),
		groups:  make(map[string]map[string]*client),
	}
}

// Register adds an authenticated connection and returns its connection id.
// Staff and admin identities are auto-joined to the admins group so live
// dashboards need no explicit subscribe call.
func (r *Registry) Register(subject string, role user.Role, conn Conn) string {
	c := &client{
		id:      uuid.NewString(),
		subject: subject,
		role:    role,
		conn:    conn,
		groups:  make(map[string]struct{}),
	}

	r.mu.Lock()
	r.clients[c.id] = c
	if role.IsStaff() {
		r.joinLocked(c, contracts.GroupAdmins)
	}
	r.mu.Unlock()

	observability.ConnectedClients.Inc()
	return c.id
}

// Subscribe joins the connection to a group. Driver groups are restricted
// to staff; ride-group entitlement is the calling endpoint's job and is
// checked before this call is reachable.
func (r *Registry) Subscribe(connID, group string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if strings.HasPrefix(group, contracts.GroupDriverPrefix) && !c.role.IsStaff() {
		return ErrNotAuthorized
	}

	r.joinLocked(c, group)
	return nil
}

// Unsubscribe removes the connection from a group. Idempotent: leaving a
// group never joined is a no-op.
func (r *Registry) Unsubscribe(connID, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clients[connID]
	if !ok {
		return
	}
	r.leaveLocked(c, group)
}

// Disconnect removes the connection from every group it belonged to,
// atomically with respect to concurrent fan-out, and closes the socket.
// Safe to call more than once.
func (r *Registry) Disconnect(connID string) {
	r.mu.Lock()
	c, ok := r.clients[connID]
	if ok {
		for group := range c.groups {
			r.leaveLocked(c, group)
		}
		delete(r.clients, connID)
	}
	r.mu.Unlock()

	if ok {
		_ = c.conn.Close()
		observability.ConnectedClients.Dec()
	}
}

// SendTo delivers a payload to a single connection (never group-broadcast).
// A vanished target is a no-op.
func (r *Registry) SendTo(connID string, payload any) error {
	r.mu.RLock()
	c, ok := r.clients[connID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.write(body)
}

// Broadcast fans a payload out to every member of a group. Members are
// written independently so one slow connection never delays the others,
// and per-member failures are logged and isolated: delivery success is
// never reported back to the producer.
func (r *Registry) Broadcast(ctx context.Context, group, eventType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error(ctx, "broadcast_encode_failed", "Failed to encode broadcast payload", err, map[string]any{
			"group": group,
			"event": eventType,
		})
		return
	}

	r.mu.RLock()
	members := make([]*client, 0, len(r.groups[group]))
	for _, c := range r.groups[group] {
		members = append(members, c)
	}
	r.mu.RUnlock()

	for _, c := range members {
		go func(c *client) {
			if err := c.write(body); err != nil {
				observability.BroadcastFailures.Inc()
				r.logger.Debug(ctx, "broadcast_delivery_failed", "Dropping event for one subscriber", map[string]any{
					"group":   group,
					"event":   eventType,
					"conn_id": c.id,
					"error":   err.Error(),
				})
				return
			}
			observability.BroadcastDeliveries.WithLabelValues(eventType).Inc()
		}(c)
	}
}

// GroupSize reports the current member count of a group.
func (r *Registry) GroupSize(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

// joinLocked and leaveLocked require r.mu held for writing.

func (r *Registry) joinLocked(c *client, group string) {
	g, ok := r.groups[group]
	if !ok {
		g = make(map[string]*client)
		r.groups[group] = g
	}
	g[c.id] = c
	c.groups[group] = struct{}{}
}

func (r *Registry) leaveLocked(c *client, group string) {
	if g, ok := r.groups[group]; ok {
		delete(g, c.id)
		if len(g) == 0 {
			delete(r.groups, group)
		}
	}
	delete(c.groups, group)
}
