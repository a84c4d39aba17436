package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{
		AccessSecret:  []byte("0123456789abcdef0123456789abcdef"),
		RefreshSecret: []byte("fedcba9876543210fedcba9876543210"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    30 * 24 * time.Hour,
		Issuer:        "playcricket-api",
		Audience:      "playcricket-web",
	}
}

func testInput() TokenInput {
	return TokenInput{
		UserID:          42,
		Email:           "batter@example.com",
		Roles:           []string{"PLAYER", "SCORER"},
		PasswordVersion: 3,
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(testConfig())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestAccessRoundTrip(t *testing.T) {
	m := newTestManager(t)

	token, err := m.CreateAccess(testInput())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	claims, err := m.VerifyAccess(token)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}

	uid, err := claims.UserID()
	if err != nil {
		t.Fatalf("UserID: %v", err)
	}
	if uid != 42 {
		t.Fatalf("user id = %d, want 42", uid)
	}
	if claims.Email != "batter@example.com" {
		t.Fatalf("email = %q", claims.Email)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "PLAYER" {
		t.Fatalf("roles = %v", claims.Roles)
	}
	if claims.PasswordVersion != 3 {
		t.Fatalf("password version = %d, want 3", claims.PasswordVersion)
	}
	if claims.Kind != KindAccess {
		t.Fatalf("kind = %q, want access", claims.Kind)
	}
	if claims.ID == "" {
		t.Fatalf("missing jti")
	}
}

func TestRefreshCarriesJTIAndExpiry(t *testing.T) {
	m := newTestManager(t)

	token, jti, exp, err := m.CreateRefresh(testInput())
	if err != nil {
		t.Fatalf("CreateRefresh: %v", err)
	}
	if jti == "" {
		t.Fatalf("empty jti")
	}
	if time.Until(exp) < 29*24*time.Hour {
		t.Fatalf("expiry too close: %v", exp)
	}

	claims, err := m.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if claims.ID != jti {
		t.Fatalf("claims jti %q != returned jti %q", claims.ID, jti)
	}
}

func TestKindConfusionRejected(t *testing.T) {
	m := newTestManager(t)

	access, err := m.CreateAccess(testInput())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	refresh, _, _, err := m.CreateRefresh(testInput())
	if err != nil {
		t.Fatalf("CreateRefresh: %v", err)
	}

	// Signed with different secrets, so the cross-verification fails at the
	// signature before it ever reaches the kind check.
	if _, err := m.VerifyRefresh(access); err == nil {
		t.Fatalf("access token accepted through refresh path")
	}
	if _, err := m.VerifyAccess(refresh); err == nil {
		t.Fatalf("refresh token accepted through access path")
	}
}

func TestKindClaimCheckedUnderSharedKindSecret(t *testing.T) {
	// Same secret deliberately routed to both paths through separate
	// managers, to prove the type claim alone blocks confusion.
	cfg := testConfig()
	swapped := cfg
	swapped.AccessSecret, swapped.RefreshSecret = cfg.RefreshSecret, cfg.AccessSecret

	m1, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m2, err := NewManager(swapped)
	if err != nil {
		t.Fatalf("NewManager swapped: %v", err)
	}

	access, err := m1.CreateAccess(testInput())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	_, err = m2.VerifyRefresh(access)
	if !errors.Is(err, ErrWrongKind) {
		t.Fatalf("expected ErrWrongKind, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTTL = time.Nanosecond
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := m.CreateAccess(testInput())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	_, err = m.VerifyAccess(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	m := newTestManager(t)

	token, err := m.CreateAccess(testInput())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape")
	}
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	if _, err := m.VerifyAccess(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestWrongIssuerRejected(t *testing.T) {
	cfg := testConfig()
	cfg.Issuer = "someone-else"
	other, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	token, err := other.CreateAccess(testInput())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	m := newTestManager(t)
	if _, err := m.VerifyAccess(token); err == nil {
		t.Fatalf("token with wrong issuer accepted")
	}
}

func TestPeekDecodesWithoutVerification(t *testing.T) {
	m := newTestManager(t)

	token, err := m.CreateAccess(testInput())
	if err != nil {
		t.Fatalf("CreateAccess: %v", err)
	}

	parts := strings.Split(token, ".")
	broken := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	claims, err := m.Peek(broken)
	if err != nil {
		t.Fatalf("Peek on tampered token: %v", err)
	}
	if claims.Email != "batter@example.com" {
		t.Fatalf("peeked email = %q", claims.Email)
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	if _, err := NewManager(cfg); err == nil {
		t.Fatalf("identical secrets accepted")
	}

	cfg = testConfig()
	cfg.AccessSecret = []byte("short")
	if _, err := NewManager(cfg); err == nil {
		t.Fatalf("short secret accepted")
	}

	cfg = testConfig()
	cfg.Leeway = 5 * time.Minute
	if _, err := NewManager(cfg); err == nil {
		t.Fatalf("oversized leeway accepted")
	}
}
