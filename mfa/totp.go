// Package mfa implements the second authentication factor: RFC 6238 TOTP
// codes and single-use backup codes for device loss.
package mfa

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const totpSecretBytes = 20

// Config carries TOTP policy. Digits is 6 or 8; Skew is how many periods on
// either side of now are accepted, covering clock drift between the server
// and the authenticator app.
type Config struct {
	Issuer string
	Digits int
	Period int
	Skew   int
}

// TOTP generates and verifies time-based codes. Immutable, safe for
// concurrent use.
type TOTP struct {
	config Config
}

func NewTOTP(cfg Config) (*TOTP, error) {
	if cfg.Digits != 6 && cfg.Digits != 8 {
		return nil, errors.New("mfa: digits must be 6 or 8")
	}
	if cfg.Period <= 0 {
		return nil, errors.New("mfa: period must be positive")
	}
	if cfg.Skew < 0 || cfg.Skew > 2 {
		return nil, errors.New("mfa: skew must be 0 to 2")
	}
	return &TOTP{config: cfg}, nil
}

// GenerateSecret returns a fresh 160-bit secret as unpadded base32, the
// encoding authenticator apps expect in provisioning URIs.
func (t *TOTP) GenerateSecret() (string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	return enc.EncodeToString(raw), nil
}

// ProvisionURI builds the otpauth:// URI the client renders as a QR code.
func (t *TOTP) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(t.config.Issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", t.config.Issuer)
	v.Set("period", strconv.Itoa(t.config.Period))
	v.Set("digits", strconv.Itoa(t.config.Digits))
	v.Set("algorithm", "SHA1")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// VerifyCode checks a code against the secret at the given time, accepting
// the configured skew window. A code of the wrong length or with non-digit
// characters fails without touching the secret.
func (t *TOTP) VerifyCode(secretBase32, code string, now time.Time) (bool, error) {
	if len(code) != t.config.Digits || !isNumeric(code) {
		return false, nil
	}

	enc := base32.StdEncoding.WithPadding(base32.NoPadding)
	secret, err := enc.DecodeString(secretBase32)
	if err != nil || len(secret) == 0 {
		return false, errors.New("mfa: invalid totp secret")
	}

	baseCounter := now.Unix() / int64(t.config.Period)
	for step := -t.config.Skew; step <= t.config.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated := hotpCode(secret, counter, t.config.Digits)
		if subtle.ConstantTimeCompare([]byte(generated), []byte(code)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

func hotpCode(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha1.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
