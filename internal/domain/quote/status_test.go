package quote_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ride-dispatch/internal/domain/quote"
	"ride-dispatch/internal/domain/statemachine"
)

var (
	requester = statemachine.Actor{Role: "PASSENGER", ID: "p1"}
	staff     = statemachine.Actor{Role: "STAFF", ID: "s1"}
	admin     = statemachine.Actor{Role: "ADMIN", ID: "a1"}
)

func TestQuoteHappyPath(t *testing.T) {
	require.NoError(t, quote.Validate(quote.StatusSubmitted, quote.StatusAcknowledged, staff, "p1"))
	require.NoError(t, quote.Validate(quote.StatusAcknowledged, quote.StatusResponded, staff, "p1"))
	require.NoError(t, quote.Validate(quote.StatusResponded, quote.StatusAccepted, requester, "p1"))
}

func TestQuoteRejectOnlyFromSubmitted(t *testing.T) {
	require.NoError(t, quote.Validate(quote.StatusSubmitted, quote.StatusRejected, staff, "p1"))

	for _, from := range []quote.Status{quote.StatusAcknowledged, quote.StatusResponded} {
		err := quote.Validate(from, quote.StatusRejected, staff, "p1")
		require.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	}
}

func TestQuoteCancelFromAnyNonTerminal(t *testing.T) {
	for _, from := range []quote.Status{
		quote.StatusSubmitted, quote.StatusAcknowledged, quote.StatusResponded,
	} {
		require.NoError(t, quote.Validate(from, quote.StatusCancelled, requester, "p1"))
		require.NoError(t, quote.Validate(from, quote.StatusCancelled, staff, "p1"))
	}

	err := quote.Validate(quote.StatusAccepted, quote.StatusCancelled, staff, "p1")
	require.ErrorIs(t, err, statemachine.ErrInvalidTransition)
}

func TestQuoteCancelByStrangerDenied(t *testing.T) {
	stranger := statemachine.Actor{Role: "PASSENGER", ID: "p2"}
	err := quote.Validate(quote.StatusSubmitted, quote.StatusCancelled, stranger, "p1")
	require.ErrorIs(t, err, statemachine.ErrNotAuthorized)
}

func TestQuoteStaffOnlyOperations(t *testing.T) {
	err := quote.Validate(quote.StatusSubmitted, quote.StatusAcknowledged, requester, "p1")
	require.ErrorIs(t, err, statemachine.ErrNotAuthorized)

	err = quote.Validate(quote.StatusAcknowledged, quote.StatusResponded, requester, "p1")
	require.ErrorIs(t, err, statemachine.ErrNotAuthorized)

	// admin counts as staff
	require.NoError(t, quote.Validate(quote.StatusSubmitted, quote.StatusAcknowledged, admin, "p1"))
}

func TestQuoteAcceptIsRequesterExclusive(t *testing.T) {
	// staff accepting from a responded quote: edge exists, identity wrong
	err := quote.Validate(quote.StatusResponded, quote.StatusAccepted, staff, "p1")
	require.ErrorIs(t, err, statemachine.ErrNotAuthorized)

	err = quote.Validate(quote.StatusResponded, quote.StatusAccepted, admin, "p1")
	require.ErrorIs(t, err, statemachine.ErrNotAuthorized)
}

func TestQuoteGuardRunsBeforeAdjacency(t *testing.T) {
	// staff accept from SUBMITTED: both the actor and the edge are wrong;
	// authorization wins
	err := quote.Validate(quote.StatusSubmitted, quote.StatusAccepted, staff, "p1")
	require.ErrorIs(t, err, statemachine.ErrNotAuthorized)

	// requester accept from SUBMITTED: actor fine, edge missing
	err = quote.Validate(quote.StatusSubmitted, quote.StatusAccepted, requester, "p1")
	require.ErrorIs(t, err, statemachine.ErrInvalidTransition)
}

func TestValidateResponse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ok := quote.Response{Price: 49.5, ProposedTime: now.Add(2 * time.Hour)}
	require.NoError(t, quote.ValidateResponse(ok, now))

	// inside the one-minute skew grace
	skewed := quote.Response{Price: 10, ProposedTime: now.Add(-30 * time.Second)}
	require.NoError(t, quote.ValidateResponse(skewed, now))

	past := quote.Response{Price: 10, ProposedTime: now.Add(-2 * time.Minute)}
	require.ErrorIs(t, quote.ValidateResponse(past, now), quote.ErrPickupInPast)

	free := quote.Response{Price: 0, ProposedTime: now.Add(time.Hour)}
	require.ErrorIs(t, quote.ValidateResponse(free, now), quote.ErrNonPositivePrice)

	negative := quote.Response{Price: -5, ProposedTime: now.Add(time.Hour)}
	require.ErrorIs(t, quote.ValidateResponse(negative, now), quote.ErrNonPositivePrice)
}
