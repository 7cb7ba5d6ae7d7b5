package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	pubnub "github.com/pubnub/go"
	"github.com/shopspring/decimal"

	"ticketgate/internal/status"
	"ticketgate/models"
	"ticketgate/monitoring"
	"ticketgate/utils"
)

// TicketService owns the ticket lifecycle: issuance, validation and
// consumption. It is the only writer of ticket state transitions.
type TicketService struct {
	app       core.App
	codec     *CodecService
	inventory *InventoryService
	audit     *AuditService
	pn        *pubnub.PubNub
	currency  string
	now       func() time.Time
}

func NewTicketService(app core.App, codec *CodecService, inventory *InventoryService, audit *AuditService, pn *pubnub.PubNub, defaultCurrency string) *TicketService {
	return &TicketService{
		app:       app,
		codec:     codec,
		inventory: inventory,
		audit:     audit,
		pn:        pn,
		currency:  defaultCurrency,
		now:       time.Now,
	}
}

type IssueParams struct {
	EventID       string
	UserID        string
	OrderRef      string
	Tier          models.TicketTier
	AttendeeName  string
	AttendeeEmail string
	AttendeePhone string
	Price         decimal.Decimal
	Currency      string
	ExpiresAt     *time.Time
}

// Issue reserves capacity and creates the ticket inside one transaction:
// either the sold counter moves and a matching ticket row exists, or
// neither happened. Capacity failures from the ledger are surfaced
// verbatim so the checkout flow can tell "sold out" from a system error.
func (s *TicketService) Issue(ctx context.Context, p IssueParams) (*models.Ticket, error) {
	if _, err := models.ParseTier(string(p.Tier)); err != nil {
		return nil, err
	}

	uid, err := utils.NewTicketUID()
	if err != nil {
		return nil, fmt.Errorf("ticket: generate uid: %w", err)
	}

	var ticket *models.Ticket
	err = s.app.RunInTransaction(func(txApp core.App) error {
		allocation, err := s.inventory.Reserve(txApp, p.EventID, p.Tier)
		if err != nil {
			return err
		}

		price := p.Price
		if price.IsZero() {
			price = allocation.Price
		}
		currency := p.Currency
		if currency == "" {
			currency = allocation.Currency
		}
		if currency == "" {
			currency = s.currency
		}

		payload := &models.TicketPayload{
			TicketUID:     uid,
			EventID:       p.EventID,
			UserID:        p.UserID,
			OrderRef:      p.OrderRef,
			AttendeeName:  p.AttendeeName,
			AttendeeEmail: p.AttendeeEmail,
			IssuedAt:      s.now().UTC(),
		}

		encoded, err := s.codec.Encode(payload)
		if err != nil {
			return err
		}

		collection, err := txApp.FindCollectionByNameOrId("tickets")
		if err != nil {
			return fmt.Errorf("ticket: find collection: %w", err)
		}

		record := core.NewRecord(collection)
		record.Set("ticket_uid", uid)
		record.Set("event", p.EventID)
		record.Set("user", p.UserID)
		record.Set("order_ref", p.OrderRef)
		record.Set("tier", string(p.Tier))
		record.Set("price", price.InexactFloat64())
		record.Set("currency", currency)
		record.Set("attendee_name", p.AttendeeName)
		record.Set("attendee_email", p.AttendeeEmail)
		record.Set("attendee_phone", p.AttendeePhone)
		record.Set("payload", encoded)
		record.Set("status", string(models.TicketActive))
		if p.ExpiresAt != nil {
			expires, err := types.ParseDateTime(p.ExpiresAt.UTC())
			if err != nil {
				return fmt.Errorf("ticket: expiry: %w", err)
			}
			record.Set("expires_at", expires)
		}

		if err := txApp.Save(record); err != nil {
			return fmt.Errorf("ticket: save: %w", err)
		}

		ticket = models.TicketFromRecord(record)
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.TrackIssued(p.EventID, string(p.Tier))
	return ticket, nil
}

// FreshPayload re-encodes the ticket's identity with a current issuance
// timestamp, giving a re-rendered code a full freshness window without
// touching ticket state. The code still resolves to the same ticket, so
// a ticket bought long before its event stays scannable as long as the
// holder can re-fetch the code.
func (s *TicketService) FreshPayload(ticket *models.Ticket) (string, error) {
	return s.codec.Encode(&models.TicketPayload{
		TicketUID:     ticket.TicketUID,
		EventID:       ticket.EventID,
		UserID:        ticket.UserID,
		OrderRef:      ticket.OrderRef,
		AttendeeName:  ticket.AttendeeName,
		AttendeeEmail: ticket.AttendeeEmail,
		IssuedAt:      s.now().UTC(),
	})
}

// Validate checks a scanned code without consuming it; previewing a
// ticket at the gate must not flip its state. Every call, whatever branch
// it takes, appends exactly one audit record before returning.
func (s *TicketService) Validate(ctx context.Context, encoded, validatorID string, channel models.ValidationChannel) (*models.ValidationResult, error) {
	finish := func(res *models.ValidationResult, ticketRef string) *models.ValidationResult {
		s.audit.Record(ticketRef, channel, validatorID, res.Status, res.Message)
		monitoring.TrackValidation(string(channel), string(res.Status))
		s.publishGateEvent(res, validatorID)
		return res
	}

	payload, err := s.codec.Decode(encoded)
	if err != nil {
		return finish(&models.ValidationResult{
			Valid:   false,
			Status:  models.ValidationInvalid,
			Message: decodeFailureMessage(err),
		}, ""), nil
	}

	if err := s.codec.Verify(payload); err != nil {
		return finish(&models.ValidationResult{
			Valid:    false,
			Status:   models.ValidationInvalid,
			Message:  decodeFailureMessage(err),
			TicketID: payload.TicketUID,
		}, payload.TicketUID), nil
	}

	record, err := s.findTicket(payload.TicketUID)
	if err != nil {
		if errors.Is(err, status.ErrTicketNotFound) {
			return finish(&models.ValidationResult{
				Valid:   false,
				Status:  models.ValidationNotFound,
				Message: "No ticket exists for this code",
			}, payload.TicketUID), nil
		}
		s.audit.Record(payload.TicketUID, channel, validatorID, models.ValidationInvalid, "system error during lookup")
		return nil, err
	}

	ticket := models.TicketFromRecord(record)

	// The payload is immutable once issued; a mismatch between its event
	// reference and the stored record means the code was grafted onto a
	// different ticket.
	if ticket.EventID != payload.EventID || ticket.TicketUID != payload.TicketUID {
		return finish(&models.ValidationResult{
			Valid:    false,
			Status:   models.ValidationInvalid,
			Message:  "Code does not match the ticket record",
			TicketID: ticket.ID,
			EventID:  ticket.EventID,
		}, ticket.ID), nil
	}

	res := &models.ValidationResult{
		TicketID: ticket.ID,
		EventID:  ticket.EventID,
	}

	switch ticket.Status {
	case models.TicketUsed:
		res.Status = models.ValidationAlreadyUsed
		res.UsedAt = ticket.UsedAt
		res.UsedBy = ticket.UsedBy
		res.Message = alreadyUsedMessage(ticket.UsedAt, ticket.UsedBy)
		return finish(res, ticket.ID), nil
	case models.TicketCancelled:
		res.Status = models.ValidationCancelled
		res.Message = "Ticket was cancelled"
		return finish(res, ticket.ID), nil
	case models.TicketExpired:
		res.Status = models.ValidationExpired
		res.Message = "Ticket has expired"
		return finish(res, ticket.ID), nil
	case models.TicketActive:
		// fall through to the date checks below
	default:
		res.Status = models.ValidationInvalid
		res.Message = "Ticket is in an unknown state"
		return finish(res, ticket.ID), nil
	}

	now := s.now()

	if ticket.ExpiresAt != nil && ticket.ExpiresAt.Before(now) {
		res.Status = models.ValidationExpired
		res.Message = "Ticket has expired"
		return finish(res, ticket.ID), nil
	}

	// A still-active ticket for a finished event is rejected even though
	// its row was never swept to expired.
	event, err := s.app.FindRecordById("events", ticket.EventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			res.Status = models.ValidationInvalid
			res.Message = "Event for this ticket no longer exists"
			return finish(res, ticket.ID), nil
		}
		s.audit.Record(ticket.ID, channel, validatorID, models.ValidationInvalid, "system error during event lookup")
		return nil, err
	}
	if eventElapsed(event.GetDateTime("starts_at").Time(), event.GetDateTime("ends_at").Time(), now) {
		res.Status = models.ValidationExpired
		res.Message = "Event has already ended"
		return finish(res, ticket.ID), nil
	}

	res.Valid = true
	res.Status = models.ValidationValid
	res.Message = fmt.Sprintf("Valid %s ticket for %s", ticket.Tier, ticket.AttendeeName)
	return finish(res, ticket.ID), nil
}

// MarkUsed is the consumption step and the only way a ticket transitions
// active -> used. The conditional update makes it exactly-once: of two
// simultaneous gate scans one wins, the other gets ErrTicketNotActive and
// the original used_at is never overwritten.
func (s *TicketService) MarkUsed(ctx context.Context, ticketRef, usedBy string) (*models.Ticket, error) {
	now := types.NowDateTime()

	res, err := s.app.NonconcurrentDB().NewQuery(
		"UPDATE tickets SET status = 'used', used_at = {:now}, used_by = {:by}"+
			" WHERE (id = {:ref} OR ticket_uid = {:ref}) AND status = 'active'",
	).Bind(dbx.Params{"now": now.String(), "by": usedBy, "ref": ticketRef}).Execute()
	if err != nil {
		return nil, fmt.Errorf("ticket: mark used: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("ticket: mark used: %w", err)
	}
	if affected == 0 {
		if _, err := s.findTicket(ticketRef); err != nil {
			return nil, err
		}
		return nil, status.ErrTicketNotActive
	}

	record, err := s.findTicket(ticketRef)
	if err != nil {
		return nil, err
	}

	ticket := models.TicketFromRecord(record)
	monitoring.TrackConsumed(ticket.EventID, string(ticket.Tier))
	return ticket, nil
}

// Cancel transitions active -> cancelled with the same compare-and-swap
// discipline as MarkUsed. Used by the refund path.
func (s *TicketService) Cancel(ctx context.Context, ticketRef string) (*models.Ticket, error) {
	res, err := s.app.NonconcurrentDB().NewQuery(
		"UPDATE tickets SET status = 'cancelled' WHERE (id = {:ref} OR ticket_uid = {:ref}) AND status = 'active'",
	).Bind(dbx.Params{"ref": ticketRef}).Execute()
	if err != nil {
		return nil, fmt.Errorf("ticket: cancel: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("ticket: cancel: %w", err)
	}
	if affected == 0 {
		if _, err := s.findTicket(ticketRef); err != nil {
			return nil, err
		}
		return nil, status.ErrTicketNotActive
	}

	record, err := s.findTicket(ticketRef)
	if err != nil {
		return nil, err
	}

	return models.TicketFromRecord(record), nil
}

// ExpireOverdue sweeps active tickets whose own expiry has elapsed.
// Terminal rows are untouched: the status guard keeps the sweep from ever
// rewriting a used or cancelled ticket.
func (s *TicketService) ExpireOverdue(ctx context.Context) (int64, error) {
	now := types.NowDateTime()

	res, err := s.app.NonconcurrentDB().NewQuery(
		"UPDATE tickets SET status = 'expired' WHERE status = 'active' AND expires_at != '' AND expires_at < {:now}",
	).Bind(dbx.Params{"now": now.String()}).Execute()
	if err != nil {
		return 0, fmt.Errorf("ticket: expire sweep: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("ticket: expire sweep: %w", err)
	}

	return affected, nil
}

// RunExpirySweeper runs ExpireOverdue on a fixed interval until the
// context is cancelled.
func (s *TicketService) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := s.ExpireOverdue(ctx)
			if err != nil {
				slog.Error("ticket: expiry sweep failed", "error", err)
				continue
			}
			if swept > 0 {
				slog.Info("ticket: expired overdue tickets", "count", swept)
			}
		}
	}
}

func (s *TicketService) ListForEvent(eventID string) ([]*models.Ticket, error) {
	return s.list("event = {:val}", eventID)
}

func (s *TicketService) ListForUser(userID string) ([]*models.Ticket, error) {
	return s.list("user = {:val}", userID)
}

// Get returns a single ticket by record id or ticket uid.
func (s *TicketService) Get(ticketRef string) (*models.Ticket, error) {
	record, err := s.findTicket(ticketRef)
	if err != nil {
		return nil, err
	}
	return models.TicketFromRecord(record), nil
}

func (s *TicketService) list(filter, value string) ([]*models.Ticket, error) {
	records, err := s.app.FindRecordsByFilter(
		"tickets",
		filter,
		"-created",
		0,
		0,
		dbx.Params{"val": value},
	)
	if err != nil {
		return nil, fmt.Errorf("ticket: list: %w", err)
	}

	tickets := make([]*models.Ticket, 0, len(records))
	for _, record := range records {
		tickets = append(tickets, models.TicketFromRecord(record))
	}

	return tickets, nil
}

func (s *TicketService) findTicket(ref string) (*core.Record, error) {
	record, err := s.app.FindFirstRecordByFilter(
		"tickets",
		"id = {:ref} || ticket_uid = {:ref}",
		dbx.Params{"ref": ref},
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, status.ErrTicketNotFound
		}
		return nil, fmt.Errorf("ticket: find: %w", err)
	}
	return record, nil
}

// publishGateEvent pushes the outcome to the event's staff channel so
// gate dashboards update in real time. Best effort only.
func (s *TicketService) publishGateEvent(res *models.ValidationResult, validatorID string) {
	if s.pn == nil || res.EventID == "" {
		return
	}

	s.pn.Publish().
		Channel(fmt.Sprintf("gate-%s", res.EventID)).
		Message(map[string]any{
			"type":      "validation",
			"status":    string(res.Status),
			"ticket_id": res.TicketID,
			"validator": validatorID,
		}).
		Execute()
}

func decodeFailureMessage(err error) string {
	switch {
	case errors.Is(err, status.ErrStalePayload):
		return "Code is stale; ask the attendee to refresh their ticket"
	case errors.Is(err, status.ErrMissingField):
		return "Code is missing required ticket data"
	case errors.Is(err, status.ErrDecryptionFailed):
		return "Code could not be decrypted"
	case errors.Is(err, status.ErrMalformedPayload):
		return "Code is not a recognizable ticket"
	default:
		return "Code could not be read"
	}
}

func alreadyUsedMessage(usedAt *time.Time, usedBy string) string {
	when := "an earlier scan"
	if usedAt != nil {
		when = usedAt.Format(time.RFC3339)
	}
	if usedBy == "" {
		return fmt.Sprintf("Ticket already used at %s", when)
	}
	return fmt.Sprintf("Ticket already used at %s by %s", when, usedBy)
}

// eventElapsed reports whether the event's dates have fully passed. An
// event without an end date counts as elapsed a day after it starts.
func eventElapsed(startsAt, endsAt time.Time, now time.Time) bool {
	if !endsAt.IsZero() {
		return endsAt.Before(now)
	}
	if !startsAt.IsZero() {
		return startsAt.Add(24 * time.Hour).Before(now)
	}
	return false
}
