package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// GenerateCode returns n random bytes as an upper-case hex string.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// NewTicketUID generates the externally visible ticket identifier.
// 16 random bytes keep it unguessable; the prefix makes stray identifiers
// easy to spot in logs and support requests.
func NewTicketUID() (string, error) {
	code, err := GenerateCode(16)
	if err != nil {
		return "", err
	}
	return "TKT-" + code, nil
}
