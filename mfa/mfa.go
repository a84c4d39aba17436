package mfa

import "time"

// Method names the factor that satisfied verification.
type Method string

const (
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup_code"
)

// Result is the outcome of [Verifier.Verify]. ConsumedHash is set only for
// backup-code matches; the caller must evict it from the stored list before
// treating the login as complete, or the code stays replayable.
type Result struct {
	Valid        bool
	Method       Method
	ConsumedHash string
}

// Verifier checks a submitted proof against both factors: a TOTP code first,
// then the backup-code list.
type Verifier struct {
	totp *TOTP
}

func NewVerifier(cfg Config) (*Verifier, error) {
	t, err := NewTOTP(cfg)
	if err != nil {
		return nil, err
	}
	return &Verifier{totp: t}, nil
}

// TOTP exposes the underlying code generator for enrollment flows.
func (v *Verifier) TOTP() *TOTP {
	return v.totp
}

// Verify tries the code as a TOTP proof, then as a backup code. An input
// that looks like a TOTP code (correct length, all digits) but fails the
// window check still falls through to the backup list, since short hex
// backup codes can never collide with the digit format anyway.
func (v *Verifier) Verify(secretBase32 string, hashedBackupCodes []string, code string, now time.Time) (Result, error) {
	ok, err := v.totp.VerifyCode(secretBase32, code, now)
	if err != nil {
		return Result{}, err
	}
	if ok {
		return Result{Valid: true, Method: MethodTOTP}, nil
	}

	if h := MatchBackupCode(code, hashedBackupCodes); h != "" {
		return Result{Valid: true, Method: MethodBackupCode, ConsumedHash: h}, nil
	}

	return Result{}, nil
}
