package services

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"ticketgate/internal/status"
	"ticketgate/models"
)

// keyDerivationSalt is not a secret; it only domain-separates the derived
// key from other uses of the same configured secret.
const keyDerivationSalt = "ticketgate/payload-codec/v1"

// CodecService encrypts and decrypts the ticket payload embedded in
// scannable codes. Encoded form: hex(nonce) + "." + hex(ciphertext),
// AES-256-GCM with a fresh random nonce per call, so the same payload
// never encodes to the same string twice.
type CodecService struct {
	aead   cipher.AEAD
	maxAge time.Duration
	now    func() time.Time
}

func NewCodecService(secret string, maxAge time.Duration) (*CodecService, error) {
	if secret == "" {
		return nil, fmt.Errorf("codec: empty ticket secret")
	}

	key := pbkdf2.Key([]byte(secret), []byte(keyDerivationSalt), 4096, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("codec: init cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("codec: init gcm: %w", err)
	}

	return &CodecService{
		aead:   aead,
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

// Encode serializes and encrypts the payload. Payloads with missing
// identity fields are rejected before they can be issued.
func (s *CodecService) Encode(p *models.TicketPayload) (string, error) {
	if err := requireFields(p); err != nil {
		return "", err
	}

	plain, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("codec: marshal payload: %w", err)
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("codec: nonce: %w", err)
	}

	ciphertext := s.aead.Seal(nil, nonce, plain, nil)

	return hex.EncodeToString(nonce) + "." + hex.EncodeToString(ciphertext), nil
}

// Decode is purely structural: it splits, decrypts and deserializes.
// Field presence and freshness are checked separately by Verify so a
// stale-but-intact payload can still be distinguished from garbage.
func (s *CodecService) Decode(encoded string) (*models.TicketPayload, error) {
	parts := strings.SplitN(encoded, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, status.ErrMalformedPayload
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != s.aead.NonceSize() {
		return nil, status.ErrMalformedPayload
	}

	ciphertext, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, status.ErrMalformedPayload
	}

	plain, err := s.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, status.ErrDecryptionFailed
	}

	var payload models.TicketPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, status.ErrMalformedPayload
	}

	return &payload, nil
}

// Verify checks that a decoded payload is complete and that its issuance
// timestamp is still inside the freshness window. The window bounds how
// long a leaked code stays meaningful; it is independent of the ticket
// record's own expiry.
func (s *CodecService) Verify(p *models.TicketPayload) error {
	if err := requireFields(p); err != nil {
		return err
	}

	age := s.now().Sub(p.IssuedAt)
	if age > s.maxAge || age < -s.maxAge {
		return status.ErrStalePayload
	}

	return nil
}

func requireFields(p *models.TicketPayload) error {
	if p.TicketUID == "" || p.EventID == "" || p.UserID == "" ||
		p.OrderRef == "" || p.AttendeeName == "" || p.AttendeeEmail == "" ||
		p.IssuedAt.IsZero() {
		return status.ErrMissingField
	}
	return nil
}
