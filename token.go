package authkit

import "github.com/playcricket/authkit/internal/token"

func newRawToken() (string, error) { return token.NewRaw() }

func hashToken(raw string) string { return token.Hash(raw) }
