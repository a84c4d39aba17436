package authkit

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// EnvConfig is the environment-variable surface for deployments that wire
// the service from the process environment rather than code. Secrets arrive
// as plain strings here and are converted to the byte slices [Config] wants.
type EnvConfig struct {
	AccessSecret  string        `env:"AUTH_JWT_ACCESS_SECRET" env-required:"true"`
	RefreshSecret string        `env:"AUTH_JWT_REFRESH_SECRET" env-required:"true"`
	AccessTTL     time.Duration `env:"AUTH_JWT_ACCESS_TTL" env-default:"15m"`
	RefreshTTL    time.Duration `env:"AUTH_JWT_REFRESH_TTL" env-default:"720h"`
	Issuer        string        `env:"AUTH_JWT_ISSUER" env-default:"playcricket-api"`
	Audience      string        `env:"AUTH_JWT_AUDIENCE" env-default:"playcricket-web"`

	ArgonMemoryKB    uint32 `env:"AUTH_ARGON_MEMORY_KB" env-default:"65536"`
	ArgonTime        uint32 `env:"AUTH_ARGON_TIME" env-default:"3"`
	ArgonParallelism uint8  `env:"AUTH_ARGON_PARALLELISM" env-default:"4"`
	MinPasswordScore int    `env:"AUTH_MIN_PASSWORD_SCORE" env-default:"1"`

	TOTPIssuer      string `env:"AUTH_TOTP_ISSUER" env-default:"PlayCricket"`
	BackupCodeCount int    `env:"AUTH_BACKUP_CODE_COUNT" env-default:"10"`

	MaxFailedLogins int           `env:"AUTH_MAX_FAILED_LOGINS" env-default:"5"`
	LockoutDuration time.Duration `env:"AUTH_LOCKOUT_DURATION" env-default:"30m"`

	VerificationTTL time.Duration `env:"AUTH_VERIFICATION_TTL" env-default:"24h"`
	ResetTTL        time.Duration `env:"AUTH_RESET_TTL" env-default:"1h"`

	AuditEnabled    bool `env:"AUTH_AUDIT_ENABLED" env-default:"true"`
	AuditBufferSize int  `env:"AUTH_AUDIT_BUFFER" env-default:"256"`
	MetricsEnabled  bool `env:"AUTH_METRICS_ENABLED" env-default:"true"`
}

// LoadConfigFromEnv reads EnvConfig from the process environment and folds
// it over [DefaultConfig]. The result is validated.
func LoadConfigFromEnv() (Config, error) {
	var env EnvConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return Config{}, fmt.Errorf("authkit: read env: %w", err)
	}
	return env.apply()
}

func (e EnvConfig) apply() (Config, error) {
	cfg := DefaultConfig()

	cfg.JWT.AccessSecret = []byte(e.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(e.RefreshSecret)
	cfg.JWT.AccessTTL = e.AccessTTL
	cfg.JWT.RefreshTTL = e.RefreshTTL
	cfg.JWT.Issuer = e.Issuer
	cfg.JWT.Audience = e.Audience

	cfg.Password.Memory = e.ArgonMemoryKB
	cfg.Password.Time = e.ArgonTime
	cfg.Password.Parallelism = e.ArgonParallelism
	cfg.Password.MinScore = e.MinPasswordScore

	cfg.TOTP.Issuer = e.TOTPIssuer
	cfg.TOTP.BackupCodeCount = e.BackupCodeCount

	cfg.Lockout.MaxFailedLogins = e.MaxFailedLogins
	cfg.Lockout.Duration = e.LockoutDuration

	cfg.Tokens.VerificationTTL = e.VerificationTTL
	cfg.Tokens.ResetTTL = e.ResetTTL

	cfg.Audit.Enabled = e.AuditEnabled
	cfg.Audit.BufferSize = e.AuditBufferSize
	cfg.Metrics.Enabled = e.MetricsEnabled

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("authkit: %w", err)
	}
	return cfg, nil
}
