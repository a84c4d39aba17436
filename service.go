package authkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/playcricket/authkit/internal/audit"
	"github.com/playcricket/authkit/jwt"
	"github.com/playcricket/authkit/mfa"
	"github.com/playcricket/authkit/password"
)

// Service is the authentication engine. It owns credential hashing, token
// issuance and rotation, MFA, lockout and the audit trail, and talks to
// persistence only through the interfaces in [Stores].
//
// All methods are safe for concurrent use. Atomicity of the rotation race
// lives in RefreshTokenStore.Rotate; everything else tolerates interleaving.
type Service struct {
	config Config

	users      UserStore
	roles      RoleStore
	userRoles  UserRoleStore
	tokens     RefreshTokenStore
	oneTime    OneTimeTokenStore
	auditStore AuditStore

	hasher  *password.Hasher
	mfa     *mfa.Verifier
	jwt     *jwt.Manager
	audit   *audit.Dispatcher
	metrics *Metrics
}

// New builds a Service. sink receives audit events; when nil and
// stores.Audit is set, events are persisted through the store instead.
func New(cfg Config, stores Stores, sink AuditSink) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("authkit: %w", err)
	}
	if stores.Users == nil || stores.Roles == nil || stores.UserRoles == nil ||
		stores.RefreshTokens == nil || stores.OneTimeTokens == nil {
		return nil, errors.New("authkit: all persistence stores are required")
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, fmt.Errorf("authkit: %w", err)
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, fmt.Errorf("authkit: %w", err)
	}

	verifier, err := mfa.NewVerifier(mfa.Config{
		Issuer: cfg.TOTP.Issuer,
		Digits: cfg.TOTP.Digits,
		Period: cfg.TOTP.Period,
		Skew:   cfg.TOTP.Skew,
	})
	if err != nil {
		return nil, fmt.Errorf("authkit: %w", err)
	}

	if sink == nil && stores.Audit != nil {
		sink = audit.NewStoreSink(stores.Audit)
	}

	return &Service{
		config:     cfg,
		users:      stores.Users,
		roles:      stores.Roles,
		userRoles:  stores.UserRoles,
		tokens:     stores.RefreshTokens,
		oneTime:    stores.OneTimeTokens,
		auditStore: stores.Audit,
		hasher:     hasher,
		mfa:        verifier,
		jwt:        jwtManager,
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sink),
		metrics: NewMetrics(cfg.Metrics),
	}, nil
}

// Close drains the audit dispatcher. Call it on shutdown so buffered events
// reach the sink.
func (s *Service) Close() {
	s.audit.Close()
}

// MetricsSnapshot returns a copy of the counter state.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	return s.metrics.Snapshot()
}

// Metrics exposes the live counter set for exporters.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// AuditDropped reports how many audit events were shed under backpressure.
func (s *Service) AuditDropped() uint64 {
	return s.audit.Dropped()
}

// Identity is the result of access-token authentication.
type Identity struct {
	User   *User
	Claims *jwt.Claims
}

// Authenticate verifies an access token and fences it against credential
// changes: a token minted before the user's last password change carries a
// stale password version and is rejected even though its signature and
// expiry are fine.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Identity, error) {
	claims, err := s.jwt.VerifyAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}

	if claims.PasswordVersion != user.PasswordVersion {
		return nil, ErrPasswordChanged
	}
	if user.Status != StatusActive {
		return nil, ErrAccountNotActive
	}

	return &Identity{User: user, Claims: claims}, nil
}

func (s *Service) tokenInput(u *User) jwt.TokenInput {
	return jwt.TokenInput{
		UserID:          u.ID,
		Email:           u.Email,
		Roles:           u.Roles,
		PasswordVersion: u.PasswordVersion,
	}
}

func (s *Service) emitAudit(ctx context.Context, action string, userID *int64, resource, resourceID string, details map[string]string, status string) {
	s.audit.Emit(ctx, audit.Event{
		Timestamp:  time.Now().UTC(),
		Action:     action,
		UserID:     userID,
		Resource:   resource,
		ResourceID: resourceID,
		Details:    details,
		IP:         clientIP(ctx),
		UserAgent:  userAgent(ctx),
		Status:     status,
	})
}

// issueTokens mints an access/refresh pair and persists the session record
// for the refresh half.
func (s *Service) issueTokens(ctx context.Context, u *User) (TokenPair, *RefreshToken, error) {
	access, err := s.jwt.CreateAccess(s.tokenInput(u))
	if err != nil {
		return TokenPair{}, nil, err
	}
	refresh, jti, expiresAt, err := s.jwt.CreateRefresh(s.tokenInput(u))
	if err != nil {
		return TokenPair{}, nil, err
	}

	ua := userAgent(ctx)
	record := &RefreshToken{
		UserID:     u.ID,
		TokenHash:  hashToken(refresh),
		JTI:        jti,
		UserAgent:  ua,
		IPAddress:  clientIP(ctx),
		DeviceName: deviceName(ua),
		ExpiresAt:  expiresAt,
		CreatedAt:  time.Now().UTC(),
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, record, nil
}
