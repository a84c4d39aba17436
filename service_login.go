package authkit

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// LoginInput is the payload for [Service.Login]. MFACode carries either a
// TOTP code or a backup code and is required only for MFA-enabled accounts.
type LoginInput struct {
	Email    string
	Password string
	MFACode  string
}

// Login runs the full authentication state machine: account lookup, lockout
// gate, verification gate, password check with failed-attempt counting, the
// MFA step, transparent hash upgrade and token issuance.
//
// An unknown email and a wrong password both come back as
// [ErrInvalidCredentials]; only the audit trail records which it was.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	start := time.Now()
	defer func() {
		s.metrics.Observe(MetricLoginLatency, time.Since(start))
	}()

	now := time.Now().UTC()

	user, err := s.users.GetByEmail(ctx, foldEmail(in.Email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.Inc(MetricLoginFailure)
			s.emitAudit(ctx, ActionLoginFailed, nil, "auth", "", map[string]string{
				"email":  foldEmail(in.Email),
				"reason": "user_not_found",
			}, AuditStatusFailure)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.Status == StatusLocked {
		if user.LockedUntil != nil && user.LockedUntil.After(now) {
			s.metrics.Inc(MetricLoginFailure)
			remaining := int(time.Until(*user.LockedUntil).Minutes())
			return nil, lockedError(remaining)
		}
		// Lockout expired; unlock in place and carry on.
		user.Status = StatusActive
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
	}

	if user.Status == StatusPending {
		s.metrics.Inc(MetricLoginFailure)
		return nil, ErrEmailNotVerified
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		user.FailedLoginAttempts++
		if user.FailedLoginAttempts >= s.config.Lockout.MaxFailedLogins {
			user.Status = StatusLocked
			lockedUntil := now.Add(s.config.Lockout.Duration)
			user.LockedUntil = &lockedUntil
			s.metrics.Inc(MetricAccountLocked)
		}
		user.UpdatedAt = now
		if err := s.users.Update(ctx, user); err != nil {
			return nil, err
		}

		s.metrics.Inc(MetricLoginFailure)
		s.emitAudit(ctx, ActionLoginFailed, &user.ID, "auth", "", map[string]string{
			"email":    user.Email,
			"reason":   "invalid_password",
			"attempts": strconv.Itoa(user.FailedLoginAttempts),
		}, AuditStatusFailure)
		return nil, ErrInvalidCredentials
	}

	if user.MFAEnabled {
		if in.MFACode == "" {
			s.metrics.Inc(MetricMFARequired)
			return nil, ErrMFARequired
		}

		result, err := s.mfa.Verify(user.MFASecret, user.BackupCodes, in.MFACode, now)
		if err != nil {
			// An undecodable stored secret must not leak as a raw error; the
			// caller sees the same failure as a wrong code.
			s.metrics.Inc(MetricMFAFailure)
			s.emitAudit(ctx, ActionMFAFailed, &user.ID, "auth", "", map[string]string{
				"email":  user.Email,
				"reason": "secret_unreadable",
			}, AuditStatusFailure)
			return nil, ErrInvalidMFACode
		}
		if !result.Valid {
			s.metrics.Inc(MetricMFAFailure)
			s.emitAudit(ctx, ActionMFAFailed, &user.ID, "auth", "", map[string]string{
				"email": user.Email,
			}, AuditStatusFailure)
			return nil, ErrInvalidMFACode
		}
		s.metrics.Inc(MetricMFASuccess)

		// A consumed backup code must be gone before tokens are issued.
		if result.ConsumedHash != "" {
			s.metrics.Inc(MetricBackupCodeUsed)
			kept := user.BackupCodes[:0]
			for _, h := range user.BackupCodes {
				if h != result.ConsumedHash {
					kept = append(kept, h)
				}
			}
			user.BackupCodes = kept
		}
	}

	if up, err := s.hasher.NeedsUpgrade(user.PasswordHash); err == nil && up {
		rehashed, err := s.hasher.Hash(in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = rehashed
		user.PasswordVersion++
		s.metrics.Inc(MetricPasswordRehash)
	}

	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	lastLogin := now
	user.LastLoginAt = &lastLogin
	user.LastLoginIP = clientIP(ctx)
	user.UpdatedAt = now

	pair, record, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricLoginSuccess)
	s.emitAudit(ctx, ActionLoginSuccess, &user.ID, "auth", "", map[string]string{
		"email":    user.Email,
		"mfa_used": strconv.FormatBool(user.MFAEnabled),
		"device":   record.DeviceName,
	}, AuditStatusSuccess)

	return &LoginResult{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}
