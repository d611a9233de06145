package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ride-dispatch/internal/domain/quote"
	"ride-dispatch/internal/domain/ride"
	"ride-dispatch/internal/domain/statemachine"
	"ride-dispatch/internal/domain/user"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/general/websocket"
	"ride-dispatch/internal/ports"
	"ride-dispatch/internal/tracking"
)

// TrackingHTTPHandler adapts HTTP requests to the TrackingService.
type TrackingHTTPHandler struct {
	svc    ports.TrackingService
	logger *logger.Logger
	auth   *jwt.Manager
	ws     *websocket.Handler
}

// NewTrackingHTTPHandler wires an HTTP handler around the TrackingService.
func NewTrackingHTTPHandler(
	svc ports.TrackingService,
	log *logger.Logger,
	auth *jwt.Manager,
	ws *websocket.Handler,
) *TrackingHTTPHandler {
	return &TrackingHTTPHandler{svc: svc, logger: log, auth: auth, ws: ws}
}

// RegisterRoutes mounts tracking and lifecycle endpoints on the provided mux.
func (handler *TrackingHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /rides/{ride_id}/location",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleUpdateLocation),
	)
	mux.HandleFunc("GET /rides/{ride_id}/location",
		jwt.AuthMiddlewareFunc(handler.auth)(handler.handleGetLocation),
	)
	mux.HandleFunc("GET /admin/locations/active",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleStaff, user.RoleAdmin)(handler.handleActiveLocations),
	)
	mux.HandleFunc("POST /rides/{ride_id}/status",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleDriver)(handler.handleUpdateRideStatus),
	)

	mux.HandleFunc("POST /quotes/{quote_id}/acknowledge",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleStaff, user.RoleAdmin)(handler.quoteAction(quoteOpAcknowledge)),
	)
	mux.HandleFunc("POST /quotes/{quote_id}/respond",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleStaff, user.RoleAdmin)(handler.handleRespondQuote),
	)
	mux.HandleFunc("POST /quotes/{quote_id}/reject",
		jwt.AuthMiddlewareFunc(handler.auth, user.RoleStaff, user.RoleAdmin)(handler.quoteAction(quoteOpReject)),
	)
	mux.HandleFunc("POST /quotes/{quote_id}/accept",
		jwt.AuthMiddlewareFunc(handler.auth)(handler.quoteAction(quoteOpAccept)),
	)
	mux.HandleFunc("POST /quotes/{quote_id}/cancel",
		jwt.AuthMiddlewareFunc(handler.auth)(handler.quoteAction(quoteOpCancel)),
	)

	// WebSocket authenticates on the first frame, not via middleware
	mux.HandleFunc("GET /ws", handler.ws.Connect)

	mux.HandleFunc("GET /healthz", handler.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
}

func (handler *TrackingHTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	handler.jsonResponse(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// ----- general helpers -----

// actorFrom builds the transition actor from verified claims.
func actorFrom(claims *jwt.Claims) statemachine.Actor {
	return statemachine.Actor{
		Role: claims.Role.String(),
		ID:   strings.TrimSpace(claims.Subject),
	}
}

type errBody struct {
	Error             string `json:"error"`
	Code              string `json:"code,omitempty"`
	RetryAfterSeconds int    `json:"retry_after_seconds,omitempty"`
}

// serviceError maps domain errors onto HTTP statuses. Authorization denials
// and wrong-source-state conflicts stay distinct so clients can render
// "you can't do that" separately from "someone else already changed this".
func (handler *TrackingHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	var rl *tracking.RateLimitedError
	if errors.As(err, &rl) {
		secs := int(math.Ceil(rl.RetryAfter.Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		handler.logger.Error(ctx, "rate_limited", "Location update below minimum interval", err, nil)
		handler.jsonResponse(ctx, w, http.StatusTooManyRequests, errBody{
			Error:             err.Error(),
			Code:              "rate_limited",
			RetryAfterSeconds: secs,
		})
		return
	}

	switch {
	case errors.Is(err, tracking.ErrInvalidSample),
		errors.Is(err, quote.ErrNonPositivePrice),
		errors.Is(err, quote.ErrPickupInPast),
		errors.Is(err, ride.ErrInvalidStatus),
		errors.Is(err, quote.ErrInvalidStatus),
		errors.Is(err, statemachine.ErrUnknownState):
		handler.codedError(ctx, w, http.StatusBadRequest, err, "validation_failed")
	case errors.Is(err, statemachine.ErrNotAuthorized):
		handler.codedError(ctx, w, http.StatusForbidden, err, "transition_denied")
	case errors.Is(err, statemachine.ErrInvalidTransition),
		errors.Is(err, ports.ErrStatusConflict):
		handler.codedError(ctx, w, http.StatusConflict, err, "transition_invalid")
	case errors.Is(err, tracking.ErrNotTracking):
		handler.codedError(ctx, w, http.StatusNotFound, err, "not_tracking")
	case errors.Is(err, ports.ErrRideNotFound):
		handler.codedError(ctx, w, http.StatusNotFound, err, "ride_not_found")
	case errors.Is(err, ports.ErrQuoteNotFound):
		handler.codedError(ctx, w, http.StatusNotFound, err, "quote_not_found")
	default:
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			handler.httpError(ctx, w, http.StatusInternalServerError, "database error", err)
			return
		}
		handler.httpError(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

func (handler *TrackingHTTPHandler) codedError(ctx context.Context, w http.ResponseWriter, status int, err error, code string) {
	action := "request_failed"
	if status == http.StatusBadRequest {
		action = "validation_failed"
	}
	handler.logger.Error(ctx, action, err.Error(), err, map[string]any{"code": code})
	handler.jsonResponse(ctx, w, status, errBody{Error: err.Error(), Code: code})
}

// jsonResponse takes any type of data and encodes it to the HTTP response.
func (handler *TrackingHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

// httpError sends a JSON error response with a message.
func (handler *TrackingHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusUnsupportedMediaType {
		action = "unsupported_media_type"
	}
	handler.logger.Error(ctx, action, msg, err, nil)
	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *TrackingHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return handler.logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
