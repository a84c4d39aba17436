package authkit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/playcricket/authkit/password"
)

// RequestPasswordReset issues a reset token for the account behind email.
// It reports success whether or not the address is registered; the returned
// token is empty when no mail should be sent. Issuing a new token retires
// any earlier unconsumed one.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, foldEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.emitAudit(ctx, ActionPasswordResetRequested, nil, "auth", "", map[string]string{
				"email":  foldEmail(email),
				"result": "user_not_found",
			}, AuditStatusInfo)
			return "", nil
		}
		return "", err
	}

	if _, err := s.oneTime.InvalidateForUser(ctx, TokenKindPasswordReset, user.ID); err != nil {
		return "", err
	}
	raw, err := s.issueOneTimeToken(ctx, user.ID, TokenKindPasswordReset, s.config.Tokens.ResetTTL)
	if err != nil {
		return "", err
	}

	s.metrics.Inc(MetricResetRequested)
	s.emitAudit(ctx, ActionPasswordResetRequested, &user.ID, "auth", "", map[string]string{
		"email": user.Email,
	}, AuditStatusSuccess)
	return raw, nil
}

// ResetPassword consumes a reset token, installs the new credential and
// revokes every active session. The password version bump invalidates all
// outstanding access and refresh tokens that survive the revocation sweep.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	strength := password.CheckStrength(newPassword)
	if !strength.Valid {
		return weakPasswordError(strength.Errors)
	}
	if strength.Score < s.config.Password.MinScore {
		return weakPasswordError(append(strength.Warnings, strength.Feedback))
	}

	rec, err := s.oneTime.GetByHash(ctx, TokenKindPasswordReset, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.Inc(MetricResetFailure)
			return ErrInvalidToken
		}
		return err
	}
	now := time.Now().UTC()
	if !rec.Valid(now) {
		s.metrics.Inc(MetricResetFailure)
		return ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.PasswordVersion++
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	if user.Status == StatusLocked {
		user.Status = StatusActive
	}
	user.UpdatedAt = now

	if err := s.oneTime.MarkUsed(ctx, rec.ID); err != nil {
		return err
	}
	revoked, err := s.tokens.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.metrics.Inc(MetricResetSuccess)
	s.emitAudit(ctx, ActionPasswordReset, &user.ID, "auth", "", map[string]string{
		"email":            user.Email,
		"sessions_revoked": strconv.Itoa(revoked),
	}, AuditStatusSuccess)
	return nil
}

// ChangePassword replaces the credential of a logged-in user. The current
// password must verify and the new one must clear the strength bar. Like a
// reset, all refresh tokens die and the password version moves, so the caller
// must log in again.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return ErrInvalidPassword
	}

	strength := password.CheckStrength(newPassword)
	if !strength.Valid {
		return weakPasswordError(strength.Errors)
	}
	if strength.Score < s.config.Password.MinScore {
		return weakPasswordError(append(strength.Warnings, strength.Feedback))
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.PasswordVersion++
	user.UpdatedAt = time.Now().UTC()

	revoked, err := s.tokens.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.metrics.Inc(MetricResetSuccess)
	s.emitAudit(ctx, ActionPasswordReset, &user.ID, "auth", "", map[string]string{
		"email":            user.Email,
		"via":              "change_password",
		"sessions_revoked": strconv.Itoa(revoked),
	}, AuditStatusSuccess)
	return nil
}

// CheckPasswordStrength scores a candidate password without touching any
// account, for signup forms that want live feedback.
func (s *Service) CheckPasswordStrength(candidate string) password.StrengthResult {
	return password.CheckStrength(candidate)
}
