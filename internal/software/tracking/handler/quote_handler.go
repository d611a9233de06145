package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"ride-dispatch/internal/domain/statemachine"
	"ride-dispatch/internal/general/jwt"
	"ride-dispatch/internal/ports"
)

type quoteOp string

const (
	quoteOpAcknowledge quoteOp = "acknowledge"
	quoteOpAccept      quoteOp = "accept"
	quoteOpReject      quoteOp = "reject"
	quoteOpCancel      quoteOp = "cancel"
)

// quoteAction builds a handler for the body-less quote mutations. Respond
// carries a payload and has its own handler below.
func (handler *TrackingHTTPHandler) quoteAction(op quoteOp) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := handler.withReqID(r.Context(), r)

		quoteID := strings.TrimSpace(r.PathValue("quote_id"))
		if quoteID == "" {
			handler.httpError(ctx, w, http.StatusBadRequest, "missing quote_id in path", nil)
			return
		}

		claims := jwt.RequireClaims(r)
		if claims == nil {
			handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
			return
		}

		ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		actor := actorFrom(claims)
		var res ports.QuoteActionResult
		var err error
		switch op {
		case quoteOpAcknowledge:
			res, err = handler.svc.AcknowledgeQuote(ctxWithTimeout, actor, quoteID)
		case quoteOpAccept:
			res, err = handler.svc.AcceptQuote(ctxWithTimeout, actor, quoteID)
		case quoteOpReject:
			res, err = handler.svc.RejectQuote(ctxWithTimeout, actor, quoteID)
		case quoteOpCancel:
			res, err = handler.svc.CancelQuote(ctxWithTimeout, actor, quoteID)
		default:
			err = statemachine.ErrInvalidTransition
		}
		if err != nil {
			handler.serviceError(ctxWithTimeout, w, err)
			return
		}

		handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
	}
}

type respondQuoteRequest struct {
	Price          float64   `json:"price"`
	ProposedPickup time.Time `json:"proposed_pickup"`
}

// ----- Handler: POST /quotes/{quote_id}/respond -----

func (handler *TrackingHTTPHandler) handleRespondQuote(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MiB
	defer r.Body.Close()

	quoteID := strings.TrimSpace(r.PathValue("quote_id"))
	if quoteID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "missing quote_id in path", nil)
		return
	}

	claims := jwt.RequireClaims(r)
	if claims == nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", errors.New("no claims"))
		return
	}

	var req respondQuoteRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON body", err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := handler.svc.RespondQuote(ctxWithTimeout, actorFrom(claims), quoteID, ports.QuoteRespondInput{
		Price:          req.Price,
		ProposedPickup: req.ProposedPickup,
	})
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
