package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// RandomHex returns n random bytes hex-encoded (2n characters).
func RandomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails if the OS entropy source is broken
		panic(err)
	}
	return hex.EncodeToString(buf)
}

// NewEventReferenceID generates the opaque correlation token attached to an
// order. 32 bytes of entropy; collisions are not checked.
func NewEventReferenceID() string {
	return RandomHex(32)
}

// NewTicketID generates the externally visible ticket identifier.
func NewTicketID() string {
	return RandomHex(16)
}
