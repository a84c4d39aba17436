package authkit

import (
	"bytes"
	"errors"
	"time"
)

// Config carries every tunable of the authentication core. It is built
// explicitly at startup and injected into [New]; nothing reads ambient
// global state, so tests can run with distinct secrets per instance.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	TOTP     TOTPConfig
	Lockout  LockoutConfig
	Tokens   OneTimeTokenConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// JWTConfig configures the token codec. AccessSecret and RefreshSecret must
// differ so an access token can never verify as a refresh token.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// PasswordConfig fixes the argon2id cost parameters and the registration
// strength bar. Changing the cost parameters never invalidates stored
// hashes; it only makes NeedsUpgrade report true for them.
type PasswordConfig struct {
	Memory         uint32 // KiB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
	MinScore       int // 0-4, minimum accepted strength score
}

// TOTPConfig configures the MFA engine.
type TOTPConfig struct {
	Issuer          string
	Digits          int
	Period          int
	Skew            int // accepted adjacent 30s steps on each side
	BackupCodeCount int
}

// LockoutConfig controls the failed-login counter.
type LockoutConfig struct {
	MaxFailedLogins int
	Duration        time.Duration
}

// OneTimeTokenConfig sets expiries for single-use email-verification and
// password-reset tokens.
type OneTimeTokenConfig struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultRoleCode is assigned at registration when no role is requested or
// the requested code is unknown.
const DefaultRoleCode = "VIEWER"

// DefaultConfig returns the production defaults: 15-minute access tokens,
// 30-day refresh tokens, OWASP argon2id parameters (64 MiB, t=3, p=4),
// 5-attempt/30-minute lockout, 24h verification and 1h reset tokens.
// Secrets are left empty and must be set by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
			Issuer:     "playcricket-api",
			Audience:   "playcricket-web",
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           3,
			Parallelism:    4,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			MinScore:       1,
		},
		TOTP: TOTPConfig{
			Issuer:          "PlayCricket",
			Digits:          6,
			Period:          30,
			Skew:            1,
			BackupCodeCount: 10,
		},
		Lockout: LockoutConfig{
			MaxFailedLogins: 5,
			Duration:        30 * time.Minute,
		},
		Tokens: OneTimeTokenConfig{
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for the mistakes that would silently
// weaken the security model.
func (c *Config) Validate() error {
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("JWT AccessSecret must be at least 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT RefreshSecret must be at least 32 bytes")
	}
	if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
		return errors.New("JWT access and refresh secrets must be different")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT TTLs must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return errors.New("access TTL must be shorter than refresh TTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT leeway out of range")
	}
	if c.Lockout.MaxFailedLogins <= 0 {
		return errors.New("lockout MaxFailedLogins must be positive")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("lockout Duration must be positive")
	}
	if c.Tokens.VerificationTTL <= 0 || c.Tokens.ResetTTL <= 0 {
		return errors.New("one-time token TTLs must be positive")
	}
	if c.Password.MinScore < 0 || c.Password.MinScore > 4 {
		return errors.New("password MinScore must be in 0..4")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be positive")
	}
	if c.TOTP.Skew < 0 {
		return errors.New("TOTP Skew must not be negative")
	}
	if c.TOTP.BackupCodeCount <= 0 {
		return errors.New("TOTP BackupCodeCount must be positive")
	}
	return nil
}
