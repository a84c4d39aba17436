package authkit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/playcricket/authkit/password"
)

// RegisterInput is the payload for [Service.Register]. Role is optional; an
// empty or unknown code falls back to the default role.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
	Role     string
}

// Register creates a pending account with the default role and returns the
// raw email-verification token for out-of-band delivery. The account cannot
// log in until [Service.VerifyEmail] consumes that token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	email := foldEmail(in.Email)
	if email == "" {
		return nil, ErrInvalidCredentials
	}

	strength := password.CheckStrength(in.Password)
	if !strength.Valid {
		return nil, weakPasswordError(strength.Errors)
	}
	if strength.Score < s.config.Password.MinScore {
		return nil, weakPasswordError(append(strength.Warnings, strength.Feedback))
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		s.metrics.Inc(MetricRegisterDuplicate)
		return nil, ErrEmailExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &User{
		Email:           email,
		Name:            strings.TrimSpace(in.Name),
		Phone:           strings.TrimSpace(in.Phone),
		PasswordHash:    hash,
		PasswordAlgo:    "argon2id",
		PasswordVersion: 1,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	roleCode := strings.TrimSpace(in.Role)
	if roleCode == "" {
		roleCode = DefaultRoleCode
	}
	role, err := s.roles.GetByCode(ctx, roleCode)
	if errors.Is(err, ErrNotFound) && roleCode != DefaultRoleCode {
		// Unknown requested role falls back to the default.
		role, err = s.roles.GetByCode(ctx, DefaultRoleCode)
	}
	if err != nil {
		return nil, err
	}
	if err := s.userRoles.Assign(ctx, &UserRole{
		UserID:     user.ID,
		RoleID:     role.ID,
		AssignedAt: now,
	}); err != nil {
		return nil, err
	}
	user.Roles = []string{role.Code}

	raw, err := s.issueOneTimeToken(ctx, user.ID, TokenKindEmailVerification, s.config.Tokens.VerificationTTL)
	if err != nil {
		return nil, err
	}

	s.metrics.Inc(MetricRegisterSuccess)
	s.emitAudit(ctx, ActionUserRegistered, &user.ID, "user", "", map[string]string{
		"email": user.Email,
		"role":  role.Code,
	}, AuditStatusSuccess)

	return &RegisterResult{User: user, VerificationToken: raw}, nil
}

// VerifyEmail consumes a verification token, marks the address verified and
// activates a pending account.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	rec, err := s.oneTime.GetByHash(ctx, TokenKindEmailVerification, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.Inc(MetricVerificationFailure)
			return ErrInvalidToken
		}
		return err
	}
	if !rec.Valid(time.Now().UTC()) {
		s.metrics.Inc(MetricVerificationFailure)
		return ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, rec.UserID)
	if err != nil {
		return err
	}

	if err := s.oneTime.MarkUsed(ctx, rec.ID); err != nil {
		return err
	}

	user.IsEmailVerified = true
	if user.Status == StatusPending {
		user.Status = StatusActive
	}
	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}

	s.metrics.Inc(MetricEmailVerified)
	s.emitAudit(ctx, ActionEmailVerified, &user.ID, "user", "", map[string]string{
		"email": user.Email,
	}, AuditStatusSuccess)
	return nil
}

// ResendVerification reissues a verification token. To keep registered
// addresses unguessable it reports success regardless; the returned token is
// empty when no mail should be sent.
func (s *Service) ResendVerification(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetByEmail(ctx, foldEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	if user.IsEmailVerified {
		return "", nil
	}

	if _, err := s.oneTime.InvalidateForUser(ctx, TokenKindEmailVerification, user.ID); err != nil {
		return "", err
	}
	raw, err := s.issueOneTimeToken(ctx, user.ID, TokenKindEmailVerification, s.config.Tokens.VerificationTTL)
	if err != nil {
		return "", err
	}

	s.metrics.Inc(MetricVerificationResent)
	s.emitAudit(ctx, ActionVerificationResent, &user.ID, "user", "", map[string]string{
		"email": user.Email,
	}, AuditStatusInfo)
	return raw, nil
}

func (s *Service) issueOneTimeToken(ctx context.Context, userID int64, kind OneTimeTokenKind, ttl time.Duration) (string, error) {
	raw, err := newRawToken()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	if err := s.oneTime.Create(ctx, &OneTimeToken{
		UserID:    userID,
		Kind:      kind,
		TokenHash: hashToken(raw),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}); err != nil {
		return "", err
	}
	return raw, nil
}

func foldEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
