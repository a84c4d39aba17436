package authkit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/playcricket/authkit/mfa"
)

// SetupMFA generates enrollment material: a fresh TOTP secret, the
// provisioning URI for the QR code, and a set of raw backup codes. Nothing
// is persisted; the account stays MFA-free until [Service.EnableMFA]
// verifies a proof code against the same secret.
func (s *Service) SetupMFA(ctx context.Context, userID int64) (*MFASetup, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	secret, err := s.mfa.TOTP().GenerateSecret()
	if err != nil {
		return nil, err
	}
	codes, err := mfa.GenerateBackupCodes(s.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, err
	}

	return &MFASetup{
		Secret:      secret,
		URI:         s.mfa.TOTP().ProvisionURI(secret, user.Email),
		BackupCodes: codes,
	}, nil
}

// EnableMFA turns MFA on after the user proves possession of the secret
// with a current TOTP code. Backup codes from setup are stored hashed.
func (s *Service) EnableMFA(ctx context.Context, userID int64, secret, proofCode string, backupCodes []string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	ok, err := s.mfa.TOTP().VerifyCode(secret, proofCode, time.Now().UTC())
	if err != nil {
		return ErrInvalidMFACode
	}
	if !ok {
		s.metrics.Inc(MetricMFAFailure)
		return ErrInvalidMFACode
	}

	hashed := make([]string, len(backupCodes))
	for i, c := range backupCodes {
		hashed[i] = mfa.HashBackupCode(c)
	}

	user.MFAEnabled = true
	user.MFASecret = secret
	user.BackupCodes = hashed
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.emitAudit(ctx, ActionMFAEnabled, &user.ID, "user", strconv.FormatInt(user.ID, 10), nil, AuditStatusSuccess)
	return nil
}

// DisableMFA turns MFA off. It demands the account password, not an MFA
// code, so a user who lost their authenticator can still leave with their
// password and a backup code session.
func (s *Service) DisableMFA(ctx context.Context, userID int64, currentPassword string) error {
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

	user.MFAEnabled = false
	user.MFASecret = ""
	user.BackupCodes = nil
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.emitAudit(ctx, ActionMFADisabled, &user.ID, "user", strconv.FormatInt(user.ID, 10), nil, AuditStatusSuccess)
	return nil
}

// RegenerateBackupCodes replaces the stored backup-code set. The password
// check keeps a hijacked session from quietly minting recovery codes.
func (s *Service) RegenerateBackupCodes(ctx context.Context, userID int64, currentPassword string) ([]string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.MFAEnabled {
		return nil, ErrInvalidMFACode
	}
	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return nil, ErrInvalidPassword
	}

	codes, err := mfa.GenerateBackupCodes(s.config.TOTP.BackupCodeCount)
	if err != nil {
		return nil, err
	}
	hashed := make([]string, len(codes))
	for i, c := range codes {
		hashed[i] = mfa.HashBackupCode(c)
	}

	user.BackupCodes = hashed
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricBackupCodesRegenerated)
	s.emitAudit(ctx, ActionBackupCodesRegenerated, &user.ID, "user", strconv.FormatInt(user.ID, 10), nil, AuditStatusSuccess)
	return codes, nil
}
