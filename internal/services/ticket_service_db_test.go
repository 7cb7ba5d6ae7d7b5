package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketgate/internal/status"
	"ticketgate/models"

	_ "ticketgate/migrations"
)

type ticketFixture struct {
	app       *tests.TestApp
	codec     *CodecService
	inventory *InventoryService
	audit     *AuditService
	tickets   *TicketService
	eventID   string
	userID    string
}

// setupTicketFixture boots a throwaway app with the collection migrations
// applied and seeds one event with a single vip allocation of maxSeats.
func setupTicketFixture(t *testing.T, maxSeats int) *ticketFixture {
	t.Helper()

	app, err := tests.NewTestApp()
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	codec, err := NewCodecService("test-secret", 24*time.Hour)
	require.NoError(t, err)

	inventory := NewInventoryService(app)
	audit := NewAuditService(app)
	tickets := NewTicketService(app, codec, inventory, audit, nil, "USD")

	users, err := app.FindCollectionByNameOrId("users")
	require.NoError(t, err)
	user := core.NewRecord(users)
	user.Set("email", "buyer@example.com")
	user.Set("password", "secret-password")
	require.NoError(t, app.Save(user))

	events, err := app.FindCollectionByNameOrId("events")
	require.NoError(t, err)
	ends, err := types.ParseDateTime(time.Now().Add(72 * time.Hour))
	require.NoError(t, err)
	event := core.NewRecord(events)
	event.Set("name", "Summer Gala")
	event.Set("venue", "City Hall")
	event.Set("starts_at", types.NowDateTime())
	event.Set("ends_at", ends)
	require.NoError(t, app.Save(event))

	allocations, err := app.FindCollectionByNameOrId("tier_allocations")
	require.NoError(t, err)
	allocation := core.NewRecord(allocations)
	allocation.Set("event", event.Id)
	allocation.Set("tier", string(models.TierVIP))
	allocation.Set("max", maxSeats)
	allocation.Set("sold", 0)
	allocation.Set("price", 100.0)
	allocation.Set("currency", "USD")
	allocation.Set("active", true)
	require.NoError(t, app.Save(allocation))

	return &ticketFixture{
		app:       app,
		codec:     codec,
		inventory: inventory,
		audit:     audit,
		tickets:   tickets,
		eventID:   event.Id,
		userID:    user.Id,
	}
}

func (f *ticketFixture) issue(expiresAt *time.Time) (*models.Ticket, error) {
	return f.tickets.Issue(context.Background(), IssueParams{
		EventID:       f.eventID,
		UserID:        f.userID,
		OrderRef:      "ord-1001",
		Tier:          models.TierVIP,
		AttendeeName:  "Jane Doe",
		AttendeeEmail: "jane@example.com",
		ExpiresAt:     expiresAt,
	})
}

func TestTicketService_IssueNeverOversells(t *testing.T) {
	const seats = 3
	f := setupTicketFixture(t, seats)

	// One more buyer than seats, all at once. The conditional counter
	// update decides the race: exactly seats reservations win.
	errs := make(chan error, seats+1)
	var wg sync.WaitGroup
	for i := 0; i < seats+1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.issue(nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var issued, exhausted int
	for err := range errs {
		if err == nil {
			issued++
			continue
		}
		require.ErrorIs(t, err, status.ErrTierExhausted)
		exhausted++
	}
	assert.Equal(t, seats, issued)
	assert.Equal(t, 1, exhausted)

	allocation, err := f.inventory.GetAllocation(f.eventID, models.TierVIP)
	require.NoError(t, err)
	assert.Equal(t, seats, allocation.Sold)
	assert.Equal(t, 0, allocation.Remaining())

	rows, err := f.app.FindRecordsByFilter("tickets", "event = {:event}", "", 0, 0, dbx.Params{"event": f.eventID})
	require.NoError(t, err)
	assert.Len(t, rows, seats)
}

func TestTicketService_IssueRollsBackReservationOnFailure(t *testing.T) {
	f := setupTicketFixture(t, 5)

	// An unencodable payload fails after the seat was already reserved;
	// the transaction must give the seat back.
	_, err := f.tickets.Issue(context.Background(), IssueParams{
		EventID:      f.eventID,
		UserID:       f.userID,
		OrderRef:     "ord-1001",
		Tier:         models.TierVIP,
		AttendeeName: "Jane Doe",
	})
	assert.ErrorIs(t, err, status.ErrMissingField)

	allocation, err := f.inventory.GetAllocation(f.eventID, models.TierVIP)
	require.NoError(t, err)
	assert.Equal(t, 0, allocation.Sold)

	rows, err := f.app.FindRecordsByFilter("tickets", "event = {:event}", "", 0, 0, dbx.Params{"event": f.eventID})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTicketService_MarkUsedExactlyOnce(t *testing.T) {
	f := setupTicketFixture(t, 5)
	ctx := context.Background()

	ticket, err := f.issue(nil)
	require.NoError(t, err)

	used, err := f.tickets.MarkUsed(ctx, ticket.TicketUID, "gate-1")
	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, used.Status)
	assert.Equal(t, "gate-1", used.UsedBy)
	require.NotNil(t, used.UsedAt)

	// The second gate loses: no success, and the first scan's stamp
	// survives untouched.
	_, err = f.tickets.MarkUsed(ctx, ticket.TicketUID, "gate-2")
	assert.ErrorIs(t, err, status.ErrTicketNotActive)

	after, err := f.tickets.Get(ticket.TicketUID)
	require.NoError(t, err)
	assert.Equal(t, "gate-1", after.UsedBy)
	require.NotNil(t, after.UsedAt)
	assert.True(t, after.UsedAt.Equal(*used.UsedAt))
}

func TestTicketService_TerminalStatesAreImmutable(t *testing.T) {
	f := setupTicketFixture(t, 5)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)

	consumed, err := f.issue(&past)
	require.NoError(t, err)
	_, err = f.tickets.MarkUsed(ctx, consumed.TicketUID, "gate-1")
	require.NoError(t, err)

	overdue, err := f.issue(&past)
	require.NoError(t, err)

	// Only the still-active overdue ticket is swept; the used one keeps
	// its state even though its expiry is just as far in the past.
	swept, err := f.tickets.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, swept)

	after, err := f.tickets.Get(consumed.TicketUID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketUsed, after.Status)

	after, err = f.tickets.Get(overdue.TicketUID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketExpired, after.Status)

	_, err = f.tickets.Cancel(ctx, overdue.TicketUID)
	assert.ErrorIs(t, err, status.ErrTicketNotActive)

	_, err = f.tickets.MarkUsed(ctx, overdue.TicketUID, "gate-1")
	assert.ErrorIs(t, err, status.ErrTicketNotActive)

	_, err = f.tickets.Cancel(ctx, consumed.TicketUID)
	assert.ErrorIs(t, err, status.ErrTicketNotActive)
}

func TestTicketService_ValidateAuditsEveryAttempt(t *testing.T) {
	f := setupTicketFixture(t, 5)
	ctx := context.Background()

	ticket, err := f.issue(nil)
	require.NoError(t, err)

	orphan, err := f.codec.Encode(&models.TicketPayload{
		TicketUID:     "TKT-00000000000000000000000000000000",
		EventID:       f.eventID,
		UserID:        f.userID,
		OrderRef:      "ord-9999",
		AttendeeName:  "Jane Doe",
		AttendeeEmail: "jane@example.com",
		IssuedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	res, err := f.tickets.Validate(ctx, "not-a-ticket", "gate-1", models.ChannelScan)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationInvalid, res.Status)

	res, err = f.tickets.Validate(ctx, orphan, "gate-1", models.ChannelScan)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationNotFound, res.Status)

	res, err = f.tickets.Validate(ctx, ticket.Payload, "gate-1", models.ChannelScan)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, models.ValidationValid, res.Status)

	// Previewing did not consume the ticket
	after, err := f.tickets.Get(ticket.TicketUID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketActive, after.Status)

	_, err = f.tickets.MarkUsed(ctx, ticket.TicketUID, "gate-1")
	require.NoError(t, err)

	res, err = f.tickets.Validate(ctx, ticket.Payload, "gate-2", models.ChannelScan)
	require.NoError(t, err)
	assert.Equal(t, models.ValidationAlreadyUsed, res.Status)

	// Four validations, four audit rows, whatever branch each one took
	rows, err := f.app.FindRecordsByFilter("validation_attempts", "id != ''", "created", 0, 0)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	outcomes := map[string]int{}
	for _, row := range rows {
		outcomes[row.GetString("result")]++
	}
	assert.Equal(t, map[string]int{
		"invalid":      1,
		"not_found":    1,
		"valid":        1,
		"already_used": 1,
	}, outcomes)
}
