package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ride-dispatch/internal/general/contracts"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"

	"github.com/gorilla/websocket"
)

const (
	authDeadline    = 5 * time.Second
	readDeadline    = 60 * time.Second
	pingInterval    = 30 * time.Second
	ctrlTimeout     = 5 * time.Second
	closeAckWindow  = 2 * time.Second
	maxInboundBytes = 1 << 20 // 1 MiB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler upgrades HTTP requests to authenticated subscriber connections
// and routes their subscribe/unsubscribe messages into the Registry.
type Handler struct {
	logger   *logger.Logger
	jwtMgr   *jwt.Manager
	registry *Registry
	rides    ports.RideDirectory
}

// NewHandler wires the WebSocket endpoint.
func NewHandler(log *logger.Logger, jwtMgr *jwt.Manager, registry *Registry, rides ports.RideDirectory) *Handler {
	return &Handler{logger: log, jwtMgr: jwtMgr, registry: registry, rides: rides}
}

// subscribeMessage is the envelope clients send after authenticating.
type subscribeMessage struct {
	Type string `json:"type"`
	Data struct {
		RideID   string `json:"ride_id,omitempty"`
		DriverID string `json:"driver_id,omitempty"`
	} `json:"data"`
}

// Connect handles GET /ws. The first frame must be the auth message; after
// that the connection may subscribe and unsubscribe freely until it closes.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(r.Context(), "websocket_upgrade_failed", "Failed to upgrade to WebSocket", err, nil)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxInboundBytes)
	if err := conn.SetReadDeadline(time.Now().Add(authDeadline)); err != nil {
		h.logger.Error(r.Context(), "ws_set_deadline_failed", "Failed to set initial read deadline", err, nil)
		h.sendError(conn, "internal server error")
		return
	}

	msgType, firstFrame, err := conn.ReadMessage()
	if err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			h.logger.Error(r.Context(), "ws_auth_timeout", "Client disconnected before authentication", err, nil)
		} else {
			h.logger.Error(r.Context(), "ws_auth_read_failed", "Failed to read auth message", err, nil)
		}
		h.sendError(conn, "authentication timeout: please send auth message within 5 seconds")
		return
	}
	if msgType != websocket.TextMessage {
		h.sendError(conn, "auth message must be in text format")
		return
	}

	res, err := jwt.ValidateWSAuth(firstFrame, h.jwtMgr)
	if err != nil {
		h.logger.Error(r.Context(), "ws_auth_failed", "Invalid auth message or token", err, nil)
		h.sendError(conn, "authentication failed: invalid token")
		return
	}

	subject := res.Claims.Subject
	role := res.Claims.Role

	connID := h.registry.Register(subject, role, conn)
	defer h.registry.Disconnect(connID)

	if err := h.sendAuthSuccess(connID); err != nil {
		h.logger.Error(r.Context(), "ws_auth_success_failed", "Failed to send auth success message", err, nil)
		return
	}

	h.logger.Info(r.Context(), "ws_connected", "Subscriber WebSocket connected", map[string]any{
		"conn_id": connID,
		"subject": subject,
		"role":    role.String(),
	})

	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(_ string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	// ping loop; closing the socket on failure unblocks the reader, and
	// done stops the goroutine when the handler returns
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout)); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	// read loop: route subscribe/unsubscribe messages
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error(r.Context(), "ws_unexpected_close", "Subscriber connection closed unexpectedly", err, map[string]any{
					"conn_id": connID,
				})
			} else {
				h.logger.Info(r.Context(), "ws_connection_closed", "Subscriber connection closed", map[string]any{
					"conn_id": connID,
				})
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
					time.Now().Add(closeAckWindow))
			}
			return
		}

		var msg subscribeMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.sendErrorTo(connID, "bad json")
			continue
		}

		switch msg.Type {
		case "subscribe_ride":
			h.handleSubscribeRide(r, connID, res.Claims, msg.Data.RideID)
		case "unsubscribe_ride":
			if msg.Data.RideID != "" {
				h.registry.Unsubscribe(connID, contracts.RideGroup(msg.Data.RideID))
			}
		case "subscribe_driver":
			h.handleSubscribeDriver(r, connID, msg.Data.DriverID)
		case "unsubscribe_driver":
			if msg.Data.DriverID != "" {
				h.registry.Unsubscribe(connID, contracts.DriverGroup(msg.Data.DriverID))
			}
		default:
			h.sendErrorTo(connID, "unknown message type")
		}
	}
}

// handleSubscribeRide enforces the ride entitlement check before the
// registry ever sees the subscription: booking requester, assigned driver,
// or staff.
func (h *Handler) handleSubscribeRide(r *http.Request, connID string, claims *jwt.Claims, rideID string) {
	if rideID == "" {
		h.sendErrorTo(connID, "ride_id is required")
		return
	}

	own, err := h.rides.GetRideOwnership(r.Context(), rideID)
	if err != nil {
		if errors.Is(err, ports.ErrRideNotFound) {
			h.sendErrorTo(connID, "ride not found")
			return
		}
		h.logger.Error(r.Context(), "ws_subscribe_lookup_failed", "Ride ownership lookup failed", err, map[string]any{
			"conn_id": connID,
			"ride_id": rideID,
		})
		h.sendErrorTo(connID, "subscription failed")
		return
	}
	if !own.Entitled(claims.Role, claims.Subject) {
		h.sendErrorTo(connID, "not authorized for this ride")
		return
	}

	group := contracts.RideGroup(rideID)
	if err := h.registry.Subscribe(connID, group); err != nil {
		h.sendErrorTo(connID, "subscription failed")
		return
	}
	h.confirm(connID, group)
}

func (h *Handler) handleSubscribeDriver(r *http.Request, connID, driverID string) {
	if driverID == "" {
		h.sendErrorTo(connID, "driver_id is required")
		return
	}

	group := contracts.DriverGroup(driverID)
	if err := h.registry.Subscribe(connID, group); err != nil {
		if errors.Is(err, ErrNotAuthorized) {
			h.sendErrorTo(connID, "driver subscriptions require staff role")
			return
		}
		h.sendErrorTo(connID, "subscription failed")
		return
	}
	h.confirm(connID, group)
}

// confirm notifies the subscribing connection only, never the group.
func (h *Handler) confirm(connID, group string) {
	_ = h.registry.SendTo(connID, contracts.WSSubscriptionConfirmed{
		Type:  contracts.WSTypeSubscriptionConfirmed,
		Group: group,
		Envelope: contracts.Envelope{
			Producer: "tracking-service",
			SentAt:   time.Now().UTC(),
		},
	})
}

// sendErrorTo writes through the registry so it shares the per-connection
// write lock with concurrent broadcasts.
func (h *Handler) sendErrorTo(connID, message string) {
	_ = h.registry.SendTo(connID, map[string]any{"type": "error", "error": message})
}

// sendError writes directly; only safe before the connection is registered.
func (h *Handler) sendError(conn *websocket.Conn, message string) {
	body, err := json.Marshal(map[string]any{"type": "error", "error": message})
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	_ = conn.WriteMessage(websocket.TextMessage, body)
}

func (h *Handler) sendAuthSuccess(connID string) error {
	return h.registry.SendTo(connID, map[string]any{
		"type":      "auth_success",
		"success":   true,
		"conn_id":   connID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
