// Package id generates request identifiers.
package id

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/gofrs/uuid/v5"
)

// New returns a random v4 UUID string. If the UUID generator fails it falls
// back to 16 random hex bytes, then to a fixed marker.
func New() string {
	u, err := uuid.NewV4()
	if err == nil {
		return u.String()
	}
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "req-fallback-id"
	}
	return hex.EncodeToString(b[:])
}

// Valid reports whether s is usable as a client-supplied request id.
func Valid(s string) bool {
	if s == "" || len(s) > 128 {
		return false
	}
	for _, r := range s {
		if r < 0x21 || r > 0x7e {
			return false
		}
	}
	return true
}
