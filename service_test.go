package authkit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	authkit "github.com/playcricket/authkit"
	"github.com/playcricket/authkit/store/memstore"
)

func testConfig() authkit.Config {
	cfg := authkit.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("test-access-secret-0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("test-refresh-secret-0123456789abcdef")
	// Cheap argon2id parameters keep the suite fast.
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestService(t *testing.T) (*authkit.Service, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	store.SeedRoles(memstore.DefaultRoles)

	svc, err := authkit.New(testConfig(), store.Stores(), nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc, store
}

const testPassword = "Str0ng!Passw0rd"

// registerActive registers an account and walks it through email
// verification so it can log in.
func registerActive(t *testing.T, svc *authkit.Service, email string) *authkit.User {
	t.Helper()

	res, err := svc.Register(context.Background(), authkit.RegisterInput{
		Email:    email,
		Password: testPassword,
		Name:     "Test Batter",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := svc.VerifyEmail(context.Background(), res.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	return res.User
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, authkit.RegisterInput{
		Email:    "Opener@Example.COM",
		Password: testPassword,
		Name:     "Opening Batter",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if res.User.Email != "opener@example.com" {
		t.Fatalf("expected folded email, got %q", res.User.Email)
	}
	if res.User.Status != authkit.StatusPending {
		t.Fatalf("expected pending status, got %q", res.User.Status)
	}
	if !res.User.HasRole("VIEWER") {
		t.Fatalf("expected default VIEWER role, got %v", res.User.Roles)
	}
	if res.VerificationToken == "" {
		t.Fatal("expected a verification token")
	}

	// Pending accounts cannot log in.
	_, err = svc.Login(ctx, authkit.LoginInput{Email: "opener@example.com", Password: testPassword})
	if !errors.Is(err, authkit.ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}

	if err := svc.VerifyEmail(ctx, res.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}
	// A verification token is single use.
	if err := svc.VerifyEmail(ctx, res.VerificationToken); !errors.Is(err, authkit.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on reuse, got %v", err)
	}

	login, err := svc.Login(ctx, authkit.LoginInput{Email: "opener@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if login.AccessToken == "" || login.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if login.User.Status != authkit.StatusActive {
		t.Fatalf("expected active status after verification, got %q", login.User.Status)
	}

	id, err := svc.Authenticate(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if id.User.ID != login.User.ID {
		t.Fatalf("authenticated as user %d, want %d", id.User.ID, login.User.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	registerActive(t, svc, "keeper@example.com")

	_, err := svc.Register(ctx, authkit.RegisterInput{
		Email:    "KEEPER@example.com",
		Password: testPassword,
	})
	if !errors.Is(err, authkit.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
}

func TestRegisterRoleSelection(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, authkit.RegisterInput{
		Email:    "scorer@example.com",
		Password: testPassword,
		Role:     "SCORER",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !res.User.HasRole("SCORER") {
		t.Fatalf("expected SCORER role, got %v", res.User.Roles)
	}

	// Unknown codes fall back to the default role instead of failing.
	res, err = svc.Register(ctx, authkit.RegisterInput{
		Email:    "captain@example.com",
		Password: testPassword,
		Role:     "CAPTAIN",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !res.User.HasRole("VIEWER") {
		t.Fatalf("expected VIEWER fallback, got %v", res.User.Roles)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), authkit.RegisterInput{
		Email:    "weak@example.com",
		Password: "short1!",
	})
	if !errors.Is(err, authkit.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestLoginUnknownEmailAndWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	registerActive(t, svc, "bowler@example.com")

	_, err := svc.Login(ctx, authkit.LoginInput{Email: "nobody@example.com", Password: testPassword})
	if !errors.Is(err, authkit.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	_, err = svc.Login(ctx, authkit.LoginInput{Email: "bowler@example.com", Password: "Wrong!Passw0rd99"})
	if !errors.Is(err, authkit.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	registerActive(t, svc, "allrounder@example.com")

	for i := 0; i < 5; i++ {
		_, err := svc.Login(ctx, authkit.LoginInput{Email: "allrounder@example.com", Password: "Wrong!Passw0rd99"})
		if !errors.Is(err, authkit.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	// The correct password no longer helps while the lock holds.
	_, err := svc.Login(ctx, authkit.LoginInput{Email: "allrounder@example.com", Password: testPassword})
	if !errors.Is(err, authkit.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	if got := svc.MetricsSnapshot().Counters[authkit.MetricAccountLocked]; got != 1 {
		t.Fatalf("expected 1 lockout recorded, got %d", got)
	}

	// Expire the lock and the next correct login goes through and resets
	// the counters.
	users := store.Stores().Users
	user, err := users.GetByEmail(ctx, "allrounder@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	user.LockedUntil = &past
	if err := users.Update(ctx, user); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	login, err := svc.Login(ctx, authkit.LoginInput{Email: "allrounder@example.com", Password: testPassword})
	if err != nil {
		t.Fatalf("Login after lock expiry failed: %v", err)
	}
	if login.User.FailedLoginAttempts != 0 {
		t.Fatalf("expected failed attempts reset, got %d", login.User.FailedLoginAttempts)
	}
	if login.User.Status != authkit.StatusActive {
		t.Fatalf("expected active status, got %q", login.User.Status)
	}
}

func TestResendVerificationRetiresOldToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, authkit.RegisterInput{
		Email:    "spinner@example.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	fresh, err := svc.ResendVerification(ctx, "spinner@example.com")
	if err != nil {
		t.Fatalf("ResendVerification failed: %v", err)
	}
	if fresh == "" {
		t.Fatal("expected a fresh token")
	}

	if err := svc.VerifyEmail(ctx, res.VerificationToken); !errors.Is(err, authkit.ErrInvalidToken) {
		t.Fatalf("expected the original token to be retired, got %v", err)
	}
	if err := svc.VerifyEmail(ctx, fresh); err != nil {
		t.Fatalf("VerifyEmail with fresh token failed: %v", err)
	}

	// Unknown addresses report success with no token.
	tok, err := svc.ResendVerification(ctx, "ghost@example.com")
	if err != nil || tok != "" {
		t.Fatalf("expected silent success for unknown address, got token=%q err=%v", tok, err)
	}
}

func TestAuditTrailRecordsLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user := registerActive(t, svc, "wicketkeeper@example.com")
	if _, err := svc.Login(ctx, authkit.LoginInput{Email: "wicketkeeper@example.com", Password: testPassword}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// Close drains the async dispatcher into the store.
	svc.Close()

	events, err := svc.AuditEvents(ctx, authkit.AuditQuery{
		UserID: &user.ID,
		Action: authkit.ActionLoginSuccess,
	})
	if err != nil {
		t.Fatalf("AuditEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 login event, got %d", len(events))
	}
	if events[0].Status != authkit.AuditStatusSuccess {
		t.Fatalf("expected success status, got %q", events[0].Status)
	}
	if events[0].Details["email"] != "wicketkeeper@example.com" {
		t.Fatalf("unexpected event details: %v", events[0].Details)
	}
}
