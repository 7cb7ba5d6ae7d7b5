package models

import (
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"ticketgate/internal/status"
)

// TicketTier is the closed set of ticket classes an event can sell.
type TicketTier string

const (
	TierEarlyBird   TicketTier = "early_bird"
	TierSecondPhase TicketTier = "second_phase"
	TierLastPhase   TicketTier = "last_phase"
	TierVIP         TicketTier = "vip"
)

func ParseTier(s string) (TicketTier, error) {
	switch TicketTier(s) {
	case TierEarlyBird, TierSecondPhase, TierLastPhase, TierVIP:
		return TicketTier(s), nil
	default:
		return "", status.ErrInvalidTier
	}
}

// TicketStatus is the ticket lifecycle state. The only legal transitions
// are active -> used, active -> cancelled and active -> expired.
type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketUsed      TicketStatus = "used"
	TicketCancelled TicketStatus = "cancelled"
	TicketExpired   TicketStatus = "expired"
)

// Terminal reports whether no further transition is allowed.
func (s TicketStatus) Terminal() bool {
	switch s {
	case TicketUsed, TicketCancelled, TicketExpired:
		return true
	case TicketActive:
		return false
	default:
		return false
	}
}

type Ticket struct {
	ID            string          `json:"id"`
	TicketUID     string          `json:"ticket_uid"`
	EventID       string          `json:"event_id"`
	UserID        string          `json:"user_id"`
	OrderRef      string          `json:"order_ref"`
	Tier          TicketTier      `json:"tier"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	AttendeeName  string          `json:"attendee_name"`
	AttendeeEmail string          `json:"attendee_email"`
	AttendeePhone string          `json:"attendee_phone"`
	Payload       string          `json:"-"`
	Status        TicketStatus    `json:"status"`
	UsedAt        *time.Time      `json:"used_at,omitempty"`
	UsedBy        string          `json:"used_by,omitempty"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func TicketFromRecord(r *core.Record) *Ticket {
	t := &Ticket{
		ID:            r.Id,
		TicketUID:     r.GetString("ticket_uid"),
		EventID:       r.GetString("event"),
		UserID:        r.GetString("user"),
		OrderRef:      r.GetString("order_ref"),
		Tier:          TicketTier(r.GetString("tier")),
		Price:         decimal.NewFromFloat(r.GetFloat("price")),
		Currency:      r.GetString("currency"),
		AttendeeName:  r.GetString("attendee_name"),
		AttendeeEmail: r.GetString("attendee_email"),
		AttendeePhone: r.GetString("attendee_phone"),
		Payload:       r.GetString("payload"),
		Status:        TicketStatus(r.GetString("status")),
		UsedBy:        r.GetString("used_by"),
		CreatedAt:     r.GetDateTime("created").Time(),
	}

	if usedAt := r.GetDateTime("used_at"); !usedAt.IsZero() {
		ts := usedAt.Time()
		t.UsedAt = &ts
	}
	if expiresAt := r.GetDateTime("expires_at"); !expiresAt.IsZero() {
		ts := expiresAt.Time()
		t.ExpiresAt = &ts
	}

	return t
}

type TierAllocation struct {
	ID       string          `json:"id"`
	EventID  string          `json:"event_id"`
	Tier     TicketTier      `json:"tier"`
	Max      int             `json:"max"`
	Sold     int             `json:"sold"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
	Active   bool            `json:"active"`
}

// Remaining never reports below zero even if a migration seeded sold > max.
func (a *TierAllocation) Remaining() int {
	if a.Sold >= a.Max {
		return 0
	}
	return a.Max - a.Sold
}

func AllocationFromRecord(r *core.Record) *TierAllocation {
	return &TierAllocation{
		ID:       r.Id,
		EventID:  r.GetString("event"),
		Tier:     TicketTier(r.GetString("tier")),
		Max:      r.GetInt("max"),
		Sold:     r.GetInt("sold"),
		Price:    decimal.NewFromFloat(r.GetFloat("price")),
		Currency: r.GetString("currency"),
		Active:   r.GetBool("active"),
	}
}

type ValidationAttempt struct {
	ID        string            `json:"id"`
	TicketRef string            `json:"ticket_ref"`
	Channel   ValidationChannel `json:"channel"`
	Validator string            `json:"validator"`
	Result    ValidationStatus  `json:"result"`
	Notes     string            `json:"notes,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func AttemptFromRecord(r *core.Record) *ValidationAttempt {
	return &ValidationAttempt{
		ID:        r.Id,
		TicketRef: r.GetString("ticket_ref"),
		Channel:   ValidationChannel(r.GetString("channel")),
		Validator: r.GetString("validator"),
		Result:    ValidationStatus(r.GetString("result")),
		Notes:     r.GetString("notes"),
		CreatedAt: r.GetDateTime("created").Time(),
	}
}
