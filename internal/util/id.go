package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewID returns a UUID string for entity primary keys.
func NewID() string {
	return uuid.NewString()
}

// NewLinkToken returns a 32-character token for linking a messaging
// account to a platform user.
func NewLinkToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
