package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketgate/internal/status"
	"ticketgate/models"
)

func TestFreshPayloadRestoresFreshness(t *testing.T) {
	codec, err := NewCodecService("test-secret", time.Hour)
	require.NoError(t, err)
	svc := NewTicketService(nil, codec, nil, nil, nil, "USD")

	ticket := &models.Ticket{
		TicketUID:     "TKT-0123456789ABCDEF0123456789ABCDEF",
		EventID:       "evt123",
		UserID:        "usr456",
		OrderRef:      "ord789",
		AttendeeName:  "Jane Doe",
		AttendeeEmail: "jane@example.com",
	}

	// The code rendered at purchase time, long before the event
	stale, err := codec.Encode(&models.TicketPayload{
		TicketUID:     ticket.TicketUID,
		EventID:       ticket.EventID,
		UserID:        ticket.UserID,
		OrderRef:      ticket.OrderRef,
		AttendeeName:  ticket.AttendeeName,
		AttendeeEmail: ticket.AttendeeEmail,
		IssuedAt:      time.Now().UTC().Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	decoded, err := codec.Decode(stale)
	require.NoError(t, err)
	assert.ErrorIs(t, codec.Verify(decoded), status.ErrStalePayload)

	// Re-fetching the code re-encodes with a current timestamp; the
	// fresh code verifies and still names the same ticket.
	fresh, err := svc.FreshPayload(ticket)
	require.NoError(t, err)

	decoded, err = codec.Decode(fresh)
	require.NoError(t, err)
	assert.NoError(t, codec.Verify(decoded))
	assert.Equal(t, ticket.TicketUID, decoded.TicketUID)
	assert.Equal(t, ticket.EventID, decoded.EventID)
}

func TestDecodeFailureMessage(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{status.ErrStalePayload, "Code is stale; ask the attendee to refresh their ticket"},
		{status.ErrMissingField, "Code is missing required ticket data"},
		{status.ErrDecryptionFailed, "Code could not be decrypted"},
		{status.ErrMalformedPayload, "Code is not a recognizable ticket"},
		{assert.AnError, "Code could not be read"},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, decodeFailureMessage(c.err))
	}
}

func TestAlreadyUsedMessage(t *testing.T) {
	usedAt := time.Date(2026, 8, 1, 19, 30, 0, 0, time.UTC)

	msg := alreadyUsedMessage(&usedAt, "gate-1")
	assert.Contains(t, msg, "gate-1")
	assert.Contains(t, msg, "2026-08-01T19:30:00Z")

	// Without an operator the timestamp still shows
	msg = alreadyUsedMessage(&usedAt, "")
	assert.Contains(t, msg, "2026-08-01T19:30:00Z")
	assert.NotContains(t, msg, " by ")

	// Defensive: a used ticket with no used_at still yields a message
	msg = alreadyUsedMessage(nil, "gate-2")
	assert.Contains(t, msg, "an earlier scan")
	assert.Contains(t, msg, "gate-2")
}

func TestEventElapsed(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	t.Run("ended event", func(t *testing.T) {
		starts := now.Add(-48 * time.Hour)
		ends := now.Add(-24 * time.Hour)
		assert.True(t, eventElapsed(starts, ends, now))
	})

	t.Run("running event", func(t *testing.T) {
		starts := now.Add(-2 * time.Hour)
		ends := now.Add(2 * time.Hour)
		assert.False(t, eventElapsed(starts, ends, now))
	})

	t.Run("future event", func(t *testing.T) {
		starts := now.Add(24 * time.Hour)
		ends := now.Add(30 * time.Hour)
		assert.False(t, eventElapsed(starts, ends, now))
	})

	t.Run("no end date falls back to start plus a day", func(t *testing.T) {
		starts := now.Add(-30 * time.Hour)
		assert.True(t, eventElapsed(starts, time.Time{}, now))

		starts = now.Add(-2 * time.Hour)
		assert.False(t, eventElapsed(starts, time.Time{}, now))
	})

	t.Run("no dates at all", func(t *testing.T) {
		assert.False(t, eventElapsed(time.Time{}, time.Time{}, now))
	})
}
