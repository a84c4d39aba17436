package authkit_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"
	"time"

	authkit "github.com/playcricket/authkit"
)

// totpCode computes the RFC 6238 code for a base32 secret so tests can act
// as the authenticator app.
func totpCode(t *testing.T, secretBase32 string, now time.Time) string {
	t.Helper()

	secret, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(secretBase32)
	if err != nil {
		t.Fatalf("bad test secret: %v", err)
	}

	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(now.Unix()/30))
	mac := hmac.New(sha1.New, secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)
	return fmt.Sprintf("%06d", bin%1000000)
}

func enableMFA(t *testing.T, svc *authkit.Service, userID int64) *authkit.MFASetup {
	t.Helper()

	setup, err := svc.SetupMFA(context.Background(), userID)
	if err != nil {
		t.Fatalf("SetupMFA failed: %v", err)
	}
	proof := totpCode(t, setup.Secret, time.Now().UTC())
	if err := svc.EnableMFA(context.Background(), userID, setup.Secret, proof, setup.BackupCodes); err != nil {
		t.Fatalf("EnableMFA failed: %v", err)
	}
	return setup
}

func TestMFALoginFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user := registerActive(t, svc, "mfa1@example.com")
	setup := enableMFA(t, svc, user.ID)

	// Password alone now only gets you the MFA challenge.
	_, err := svc.Login(ctx, authkit.LoginInput{Email: "mfa1@example.com", Password: testPassword})
	if !errors.Is(err, authkit.ErrMFARequired) {
		t.Fatalf("expected ErrMFARequired, got %v", err)
	}

	_, err = svc.Login(ctx, authkit.LoginInput{Email: "mfa1@example.com", Password: testPassword, MFACode: "000000"})
	if !errors.Is(err, authkit.ErrInvalidMFACode) {
		t.Fatalf("expected ErrInvalidMFACode, got %v", err)
	}

	code := totpCode(t, setup.Secret, time.Now().UTC())
	login, err := svc.Login(ctx, authkit.LoginInput{Email: "mfa1@example.com", Password: testPassword, MFACode: code})
	if err != nil {
		t.Fatalf("Login with TOTP failed: %v", err)
	}
	if login.AccessToken == "" {
		t.Fatal("expected tokens after MFA login")
	}
}

func TestBackupCodeIsSingleUse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user := registerActive(t, svc, "mfa2@example.com")
	setup := enableMFA(t, svc, user.ID)

	backup := setup.BackupCodes[0]
	if _, err := svc.Login(ctx, authkit.LoginInput{Email: "mfa2@example.com", Password: testPassword, MFACode: backup}); err != nil {
		t.Fatalf("Login with backup code failed: %v", err)
	}
	if got := svc.MetricsSnapshot().Counters[authkit.MetricBackupCodeUsed]; got != 1 {
		t.Fatalf("expected 1 backup code use recorded, got %d", got)
	}

	// The consumed code is gone; a sibling still works.
	if _, err := svc.Login(ctx, authkit.LoginInput{Email: "mfa2@example.com", Password: testPassword, MFACode: backup}); !errors.Is(err, authkit.ErrInvalidMFACode) {
		t.Fatalf("expected consumed backup code rejected, got %v", err)
	}
	if _, err := svc.Login(ctx, authkit.LoginInput{Email: "mfa2@example.com", Password: testPassword, MFACode: setup.BackupCodes[1]}); err != nil {
		t.Fatalf("Login with second backup code failed: %v", err)
	}
}

func TestEnableMFARequiresProof(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user := registerActive(t, svc, "mfa3@example.com")
	setup, err := svc.SetupMFA(ctx, user.ID)
	if err != nil {
		t.Fatalf("SetupMFA failed: %v", err)
	}

	if err := svc.EnableMFA(ctx, user.ID, setup.Secret, "000000", setup.BackupCodes); !errors.Is(err, authkit.ErrInvalidMFACode) {
		t.Fatalf("expected ErrInvalidMFACode, got %v", err)
	}

	// Setup alone changed nothing; password login still works code-free.
	if _, err := svc.Login(ctx, authkit.LoginInput{Email: "mfa3@example.com", Password: testPassword}); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
}

func TestDisableMFA(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user := registerActive(t, svc, "mfa4@example.com")
	enableMFA(t, svc, user.ID)

	if err := svc.DisableMFA(ctx, user.ID, "Wrong!Passw0rd99"); !errors.Is(err, authkit.ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
	if err := svc.DisableMFA(ctx, user.ID, testPassword); err != nil {
		t.Fatalf("DisableMFA failed: %v", err)
	}

	if _, err := svc.Login(ctx, authkit.LoginInput{Email: "mfa4@example.com", Password: testPassword}); err != nil {
		t.Fatalf("Login after disable failed: %v", err)
	}
}

func TestRegenerateBackupCodes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user := registerActive(t, svc, "mfa5@example.com")
	setup := enableMFA(t, svc, user.ID)

	fresh, err := svc.RegenerateBackupCodes(ctx, user.ID, testPassword)
	if err != nil {
		t.Fatalf("RegenerateBackupCodes failed: %v", err)
	}
	if len(fresh) == 0 {
		t.Fatal("expected new backup codes")
	}

	// Old set is dead, new set works.
	if _, err := svc.Login(ctx, authkit.LoginInput{Email: "mfa5@example.com", Password: testPassword, MFACode: setup.BackupCodes[0]}); !errors.Is(err, authkit.ErrInvalidMFACode) {
		t.Fatalf("expected old backup code rejected, got %v", err)
	}
	if _, err := svc.Login(ctx, authkit.LoginInput{Email: "mfa5@example.com", Password: testPassword, MFACode: fresh[0]}); err != nil {
		t.Fatalf("Login with regenerated code failed: %v", err)
	}
}

func TestLoginWithUnreadableMFASecret(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	registered := registerActive(t, svc, "mfa6@example.com")
	user, err := store.Stores().Users.GetByID(ctx, registered.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	user.MFAEnabled = true
	user.MFASecret = "!!!not-base32!!!"
	if err := store.Stores().Users.Update(ctx, user); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	// A stored secret that no longer decodes must surface as a failed code,
	// never as a raw decoding error.
	_, err = svc.Login(ctx, authkit.LoginInput{
		Email:    "mfa6@example.com",
		Password: testPassword,
		MFACode:  "123456",
	})
	if !errors.Is(err, authkit.ErrInvalidMFACode) {
		t.Fatalf("expected ErrInvalidMFACode for an unreadable secret, got %v", err)
	}
}
