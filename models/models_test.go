package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketgate/internal/status"
)

func TestParseTier(t *testing.T) {
	validTiers := []string{"early_bird", "second_phase", "last_phase", "vip"}

	for _, tier := range validTiers {
		parsed, err := ParseTier(tier)
		require.NoError(t, err)
		assert.Equal(t, TicketTier(tier), parsed)
	}

	for _, tier := range []string{"", "VIP", "golden_circle", "early bird"} {
		_, err := ParseTier(tier)
		assert.ErrorIs(t, err, status.ErrInvalidTier, "tier %q", tier)
	}
}

func TestTicketStatus_Terminal(t *testing.T) {
	assert.False(t, TicketActive.Terminal())
	assert.True(t, TicketUsed.Terminal())
	assert.True(t, TicketCancelled.Terminal())
	assert.True(t, TicketExpired.Terminal())

	// Unknown states are treated as non-terminal rather than trusted
	assert.False(t, TicketStatus("weird").Terminal())
}

func TestParseChannel(t *testing.T) {
	assert.Equal(t, ChannelScan, ParseChannel("scan"))
	assert.Equal(t, ChannelManual, ParseChannel("manual"))
	assert.Equal(t, ChannelAPI, ParseChannel("api"))

	// Unknown channels default to scan, the common gate device case
	assert.Equal(t, ChannelScan, ParseChannel(""))
	assert.Equal(t, ChannelScan, ParseChannel("carrier-pigeon"))
}

func TestTierAllocation_Remaining(t *testing.T) {
	allocation := TierAllocation{Max: 100, Sold: 40}
	assert.Equal(t, 60, allocation.Remaining())

	allocation.Sold = 100
	assert.Equal(t, 0, allocation.Remaining())

	// Never reports negative even if sold somehow overshot
	allocation.Sold = 104
	assert.Equal(t, 0, allocation.Remaining())
}

func TestValidationResult_JSONSerialization(t *testing.T) {
	usedAt := time.Date(2026, 8, 1, 19, 30, 0, 0, time.UTC)

	result := ValidationResult{
		Valid:    false,
		Status:   ValidationAlreadyUsed,
		Message:  "Ticket already used at 2026-08-01T19:30:00Z by gate-1",
		TicketID: "rec123",
		EventID:  "evt123",
		UsedAt:   &usedAt,
		UsedBy:   "gate-1",
	}

	jsonData, err := json.Marshal(result)
	require.NoError(t, err)

	var unmarshaled ValidationResult
	err = json.Unmarshal(jsonData, &unmarshaled)
	require.NoError(t, err)

	assert.Equal(t, result.Valid, unmarshaled.Valid)
	assert.Equal(t, result.Status, unmarshaled.Status)
	assert.Equal(t, result.Message, unmarshaled.Message)
	assert.Equal(t, result.TicketID, unmarshaled.TicketID)
	assert.Equal(t, result.UsedBy, unmarshaled.UsedBy)
	require.NotNil(t, unmarshaled.UsedAt)
	assert.WithinDuration(t, *result.UsedAt, *unmarshaled.UsedAt, time.Second)
}

func TestTicket_JSONHidesPayload(t *testing.T) {
	ticket := Ticket{
		ID:        "rec123",
		TicketUID: "TKT-0123",
		Payload:   "00112233.deadbeef",
		Status:    TicketActive,
		CreatedAt: time.Now(),
	}

	jsonData, err := json.Marshal(ticket)
	require.NoError(t, err)

	// The encrypted payload never leaves through the JSON API; clients
	// get it only as a rendered code image.
	assert.NotContains(t, string(jsonData), "deadbeef")
	assert.Contains(t, string(jsonData), "TKT-0123")
}
