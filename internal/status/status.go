package status

import "errors"

// Codec failures. Decode keeps these distinct so the scan endpoint can
// report why a code was rejected without ever crashing on bad input.
var (
	ErrMalformedPayload = errors.New("codec: malformed encoded payload")
	ErrDecryptionFailed = errors.New("codec: decryption failed")
	ErrStalePayload     = errors.New("codec: payload timestamp outside freshness window")
	ErrMissingField     = errors.New("codec: required payload field missing")
)

// Capacity failures returned from issuance.
var (
	ErrTierNotFound  = errors.New("inventory: tier allocation not found")
	ErrTierInactive  = errors.New("inventory: tier allocation inactive")
	ErrTierExhausted = errors.New("inventory: tier allocation exhausted")
)

// Ticket state failures.
var (
	ErrTicketNotFound  = errors.New("ticket: not found")
	ErrTicketNotActive = errors.New("ticket: not in active state")
	ErrInvalidTier     = errors.New("ticket: unknown tier")
)
