package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/mailersend/mailersend-go"

	"ticketgate/models"
	"ticketgate/utils"
)

// EventInfo is the display data the dispatcher needs about an event.
type EventInfo struct {
	Name     string
	Venue    string
	StartsAt time.Time
}

// NotificationService emails the issued ticket to the attendee. It only
// ever receives the ticket DTO, event display data and the rendered code
// image; the raw payload and the codec key never reach this boundary.
type NotificationService struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	breaker *utils.CircuitBreaker
}

func NewNotificationService(apiKey, fromName, fromEmail string) *NotificationService {
	return &NotificationService{
		client: mailersend.NewMailersend(apiKey),
		from: mailersend.From{
			Name:  fromName,
			Email: fromEmail,
		},
		breaker: utils.NewCircuitBreaker("mailersend"),
	}
}

var ticketEmailTmpl = template.Must(template.New("ticket_email").Parse(`
<h2>Your ticket for {{.EventName}}</h2>
<p>Hi {{.AttendeeName}},</p>
<p>
	You're in! Present the code below at the entrance.
</p>
<ul>
	<li><strong>Event:</strong> {{.EventName}}</li>
	<li><strong>Venue:</strong> {{.Venue}}</li>
	<li><strong>Date:</strong> {{.StartsAt}}</li>
	<li><strong>Tier:</strong> {{.Tier}}</li>
	<li><strong>Price:</strong> {{.Price}} {{.Currency}}</li>
	<li><strong>Ticket:</strong> {{.TicketUID}}</li>
</ul>
<p><img src="cid:ticket-qr" alt="ticket code" width="256" height="256"/></p>
<p>This code is personal; anyone holding it can claim your admission.</p>
`))

// SendTicket emails the ticket with the rendered code attached inline.
// The mail transport sits behind a circuit breaker so a degraded provider
// fails fast instead of piling up goroutines at issue time.
func (s *NotificationService) SendTicket(ctx context.Context, ticket *models.Ticket, event EventInfo, codePNG []byte) error {
	if ticket.AttendeeEmail == "" {
		return fmt.Errorf("notify: ticket %s has no attendee email", ticket.ID)
	}
	if len(codePNG) == 0 {
		return fmt.Errorf("notify: ticket %s has no rendered code", ticket.ID)
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
	if err != nil {
		return fmt.Errorf("notify: render email: %w", err)
	}

	message := s.client.Email.NewMessage()
	message.SetFrom(s.from)
	message.SetRecipients([]mailersend.Recipient{
		{
			Name:  ticket.AttendeeName,
			Email: ticket.AttendeeEmail,
		},
	})
	message.SetSubject(fmt.Sprintf("Your ticket for %s", event.Name))
	message.SetHTML(body.String())
	message.SetText(fmt.Sprintf(
		"Your %s ticket for %s (%s) is attached. Ticket: %s",
		ticket.Tier, event.Name, event.StartsAt.Format("2 Jan 2006 15:04"), ticket.TicketUID,
	))
	message.AddAttachment(mailersend.Attachment{
		Content:     base64.StdEncoding.EncodeToString(codePNG),
		Filename:    "ticket.png",
		ID:          "ticket-qr",
		Disposition: mailersend.DispositionInline,
	})

	return s.breaker.Do(ctx, func() error {
		res, err := s.client.Email.Send(ctx, message)
		if err != nil {
			return fmt.Errorf("notify: send: %w", err)
		}
		slog.Info("notify: ticket email sent",
			"ticket", ticket.ID,
			"message_id", res.Header.Get("X-Message-Id"),
		)
		return nil
	})
}
