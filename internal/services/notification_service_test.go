package services

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketgate/models"
)

func testTicket() *models.Ticket {
	return &models.Ticket{
		ID:            "rec123",
		TicketUID:     "TKT-0123456789ABCDEF0123456789ABCDEF",
		EventID:       "evt123",
		Tier:          models.TierVIP,
		Price:         decimal.NewFromFloat(100),
		Currency:      "USD",
		AttendeeName:  "Jane Doe",
		AttendeeEmail: "jane@example.com",
		Payload:       "00112233445566778899aabb.deadbeefcafe",
		Status:        models.TicketActive,
	}
}

func TestTicketEmailTemplate(t *testing.T) {
	ticket := testTicket()
	event := EventInfo{
		Name:     "Summer Gala",
		Venue:    "City Hall",
		StartsAt: time.Date(2026, 9, 12, 20, 0, 0, 0, time.UTC),
	}

	var body bytes.Buffer
	err := ticketEmailTmpl.Execute(&body, map[string]string{
		"AttendeeName": ticket.AttendeeName,
		"EventName":    event.Name,
		"Venue":        event.Venue,
		"StartsAt":     event.StartsAt.Format("Monday, 2 Jan 2006 15:04"),
		"Tier":         string(ticket.Tier),
		"Price":        ticket.Price.StringFixed(2),
		"Currency":     ticket.Currency,
		"TicketUID":    ticket.TicketUID,
	})
	require.NoError(t, err)

	html := body.String()
	assert.Contains(t, html, "Jane Doe")
	assert.Contains(t, html, "Summer Gala")
	assert.Contains(t, html, "City Hall")
	assert.Contains(t, html, "100.00 USD")
	assert.Contains(t, html, ticket.TicketUID)
	assert.Contains(t, html, `cid:ticket-qr`)

	// The raw encoded payload must never appear in the email body; the
	// attendee only ever gets the rendered image.
	assert.NotContains(t, html, ticket.Payload)
}

func TestNotificationService_SendTicketRejectsIncompleteInput(t *testing.T) {
	notify := NewNotificationService("test-key", "Ticket Desk", "tickets@example.com")
	event := EventInfo{Name: "Summer Gala"}
	png := []byte{0x89, 'P', 'N', 'G'}

	t.Run("missing attendee email", func(t *testing.T) {
		ticket := testTicket()
		ticket.AttendeeEmail = ""
		err := notify.SendTicket(context.Background(), ticket, event, png)
		assert.Error(t, err)
	})

	t.Run("missing rendered code", func(t *testing.T) {
		err := notify.SendTicket(context.Background(), testTicket(), event, nil)
		assert.Error(t, err)
	})
}
