// Package jwt signs and verifies the access and refresh tokens issued at
// login. The two token kinds are signed with distinct HS256 secrets and carry
// an explicit type claim, so an access token can never be replayed through
// the refresh path or vice versa.
package jwt

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token kind values carried in the "type" claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Verification errors. Callers branch on these with errors.Is; the wrapped
// library error keeps the underlying cause for logs.
var (
	ErrInvalidToken = errors.New("jwt: invalid token")
	ErrExpiredToken = errors.New("jwt: token expired")
	ErrWrongKind    = errors.New("jwt: wrong token kind")
)

// Config holds the signing material and claim policy for a [Manager].
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Claims is the payload of both token kinds. Subject carries the user ID in
// decimal; PasswordVersion fences tokens minted before a credential change.
type Claims struct {
	Email           string   `json:"email,omitempty"`
	Roles           []string `json:"roles,omitempty"`
	PasswordVersion int      `json:"ver"`
	Kind            string   `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
	}
	return id, nil
}

// Manager mints and verifies token pairs. It is immutable after construction
// and safe for concurrent use.
type Manager struct {
	config Config
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < 32 || len(cfg.RefreshSecret) < 32 {
		return nil, errors.New("jwt: secrets must be at least 32 bytes")
	}
	if bytes.Equal(cfg.AccessSecret, cfg.RefreshSecret) {
		return nil, errors.New("jwt: access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("jwt: invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("jwt: invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// TokenInput is the identity material stamped into a token.
type TokenInput struct {
	UserID          int64
	Email           string
	Roles           []string
	PasswordVersion int
}

// CreateAccess mints a short-lived access token with a fresh jti.
func (m *Manager) CreateAccess(in TokenInput) (string, error) {
	token, _, _, err := m.create(KindAccess, in, m.config.AccessTTL, m.config.AccessSecret)
	return token, err
}

// CreateRefresh mints a refresh token and returns its jti and expiry for the
// session record that tracks it.
func (m *Manager) CreateRefresh(in TokenInput) (token, jti string, expiresAt time.Time, err error) {
	return m.create(KindRefresh, in, m.config.RefreshTTL, m.config.RefreshSecret)
}

func (m *Manager) create(kind string, in TokenInput, ttl time.Duration, secret []byte) (string, string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	jti := uuid.NewString()

	claims := Claims{
		Email:           in.Email,
		Roles:           in.Roles,
		PasswordVersion: in.PasswordVersion,
		Kind:            kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(in.UserID, 10),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, exp, nil
}

// VerifyAccess verifies an access token's signature, time claims, issuer,
// audience and kind.
func (m *Manager) VerifyAccess(token string) (*Claims, error) {
	return m.verify(token, KindAccess, m.config.AccessSecret)
}

// VerifyRefresh verifies a refresh token against the refresh secret. A valid
// signature is necessary but not sufficient for rotation; the caller still
// checks the stored session record.
func (m *Manager) VerifyRefresh(token string) (*Claims, error) {
	return m.verify(token, KindRefresh, m.config.RefreshSecret)
}

func (m *Manager) verify(tokenStr, kind string, secret []byte) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpiredToken, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongKind, claims.Kind, kind)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", ErrInvalidToken)
	}
	return claims, nil
}

// Peek decodes claims without verifying the signature or time claims. It
// exists for diagnostics on rejected tokens and must never gate access.
func (m *Manager) Peek(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}
