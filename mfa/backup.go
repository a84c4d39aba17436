package mfa

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// GenerateBackupCodes returns count fresh codes in XXXX-XXXX form, uppercase
// hex. The raw codes are shown to the user exactly once; callers store only
// the output of [HashBackupCode].
func GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var raw [4]byte
		if _, err := rand.Read(raw[:]); err != nil {
			return nil, err
		}
		s := strings.ToUpper(hex.EncodeToString(raw[:]))
		codes = append(codes, s[:4]+"-"+s[4:])
	}
	return codes, nil
}

// HashBackupCode hashes one code for storage. The dash is cosmetic and
// stripped first, so a user may enter the code with or without it.
func HashBackupCode(code string) string {
	normalized := strings.ToUpper(strings.ReplaceAll(code, "-", ""))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// MatchBackupCode returns the stored hash the code matches, or "" when none
// does. Comparison is constant-time per entry.
func MatchBackupCode(code string, hashed []string) string {
	want := HashBackupCode(code)
	matched := ""
	for _, h := range hashed {
		if subtle.ConstantTimeCompare([]byte(want), []byte(h)) == 1 {
			matched = h
		}
	}
	return matched
}
