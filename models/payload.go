package models

import "time"

// TicketPayload is the identity data embedded in a scannable code. It is
// always transported encrypted; only the codec sees it in the clear.
type TicketPayload struct {
	TicketUID     string    `json:"ticket_uid"`
	EventID       string    `json:"event_id"`
	UserID        string    `json:"user_id"`
	OrderRef      string    `json:"order_ref"`
	AttendeeName  string    `json:"attendee_name"`
	AttendeeEmail string    `json:"attendee_email"`
	IssuedAt      time.Time `json:"issued_at"`
}

// ValidationChannel records how a validation attempt reached the system.
type ValidationChannel string

const (
	ChannelScan   ValidationChannel = "scan"
	ChannelManual ValidationChannel = "manual"
	ChannelAPI    ValidationChannel = "api"
)

func ParseChannel(s string) ValidationChannel {
	switch ValidationChannel(s) {
	case ChannelScan, ChannelManual, ChannelAPI:
		return ValidationChannel(s)
	default:
		return ChannelScan
	}
}

// ValidationStatus is the outcome of a single validation attempt.
type ValidationStatus string

const (
	ValidationValid       ValidationStatus = "valid"
	ValidationInvalid     ValidationStatus = "invalid"
	ValidationNotFound    ValidationStatus = "not_found"
	ValidationAlreadyUsed ValidationStatus = "already_used"
	ValidationCancelled   ValidationStatus = "cancelled"
	ValidationExpired     ValidationStatus = "expired"
)

// ValidationResult is what door staff see for a scanned code. Message is
// always displayable verbatim; for already_used it carries the original
// scan's operator and timestamp so disputes can be settled at the gate.
type ValidationResult struct {
	Valid    bool             `json:"is_valid"`
	Status   ValidationStatus `json:"status"`
	Message  string           `json:"message"`
	TicketID string           `json:"ticket_id,omitempty"`
	EventID  string           `json:"event_id,omitempty"`
	UsedAt   *time.Time       `json:"used_at,omitempty"`
	UsedBy   string           `json:"used_by,omitempty"`
}
