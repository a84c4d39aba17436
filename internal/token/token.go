// Package token generates and hashes opaque bearer strings: refresh tokens,
// email-verification tokens and password-reset tokens. Raw tokens leave the
// process exactly once, at issue time; everything persisted is a sha256 hex
// digest.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const rawSize = 32

// NewRaw returns a fresh opaque token: 32 random bytes, base64url without
// padding. The only failure mode is the platform entropy source.
func NewRaw() (string, error) {
	var raw [rawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Hash returns the lowercase sha256 hex digest of a raw token. Lookups
// compare digests, so the handling code never needs constant-time care for
// the raw strings themselves.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
