package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	authkit "github.com/playcricket/authkit"
)

func TestUserCreateGetUpdateDelete(t *testing.T) {
	stores := New().Stores()
	ctx := context.Background()

	u := &authkit.User{
		Email:        "batter@example.com",
		PasswordHash: "x",
		Status:       authkit.StatusPending,
	}
	if err := stores.Users.Create(ctx, u); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if u.ID == 0 {
		t.Fatal("expected an assigned ID")
	}
	if err := stores.Users.Create(ctx, &authkit.User{Email: "Batter@example.com"}); !errors.Is(err, authkit.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}

	got, err := stores.Users.GetByEmail(ctx, "batter@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	got.Status = authkit.StatusActive
	if err := stores.Users.Update(ctx, got); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err = stores.Users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != authkit.StatusActive {
		t.Fatalf("expected updated status, got %q", got.Status)
	}

	if err := stores.Users.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := stores.Users.GetByID(ctx, u.ID); !errors.Is(err, authkit.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestRoleSeedingAndMembership(t *testing.T) {
	store := New()
	store.SeedRoles(DefaultRoles)
	store.SeedRoles(DefaultRoles) // idempotent
	stores := store.Stores()
	ctx := context.Background()

	roles, err := stores.Roles.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(roles) != len(DefaultRoles) {
		t.Fatalf("expected %d roles, got %d", len(DefaultRoles), len(roles))
	}

	viewer, err := stores.Roles.GetByCode(ctx, "VIEWER")
	if err != nil {
		t.Fatalf("GetByCode failed: %v", err)
	}

	u := &authkit.User{Email: "member@example.com"}
	if err := stores.Users.Create(ctx, u); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := stores.UserRoles.Assign(ctx, &authkit.UserRole{UserID: u.ID, RoleID: viewer.ID, AssignedAt: time.Now()}); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	// Membership is visible through the user read path.
	got, err := stores.Users.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if !got.HasRole("VIEWER") {
		t.Fatalf("expected VIEWER membership, got %v", got.Roles)
	}

	n, err := stores.UserRoles.CountByUser(ctx, u.ID)
	if err != nil || n != 1 {
		t.Fatalf("expected count 1, got %d err=%v", n, err)
	}
	if err := stores.UserRoles.Remove(ctx, u.ID, viewer.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := stores.UserRoles.Remove(ctx, u.ID, viewer.ID); !errors.Is(err, authkit.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat removal, got %v", err)
	}
}

func newToken(userID int64, hash, jti string) *authkit.RefreshToken {
	return &authkit.RefreshToken{
		UserID:    userID,
		TokenHash: hash,
		JTI:       jti,
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
}

func TestRotateLinksChainOnce(t *testing.T) {
	stores := New().Stores()
	ctx := context.Background()

	first := newToken(1, "h1", "j1")
	if err := stores.RefreshTokens.Create(ctx, first); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	second := newToken(1, "h2", "j2")
	if err := stores.RefreshTokens.Rotate(ctx, 1, first.ID, second); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}

	// The losing side of the race sees ErrTokenRotated.
	third := newToken(1, "h3", "j3")
	if err := stores.RefreshTokens.Rotate(ctx, 1, first.ID, third); !errors.Is(err, authkit.ErrTokenRotated) {
		t.Fatalf("expected ErrTokenRotated, got %v", err)
	}

	old, err := stores.RefreshTokens.GetByID(ctx, 1, first.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if old.RevokedAt == nil || old.ReplacedBy == nil || *old.ReplacedBy != second.ID {
		t.Fatalf("expected old record revoked and linked to %d, got %+v", second.ID, old)
	}

	rotated, err := stores.RefreshTokens.GetRotatedByJTI(ctx, 1, "j1")
	if err != nil {
		t.Fatalf("GetRotatedByJTI failed: %v", err)
	}
	if rotated.ID != first.ID {
		t.Fatalf("expected record %d, got %d", first.ID, rotated.ID)
	}

	prev, err := stores.RefreshTokens.FindPredecessor(ctx, 1, second.ID)
	if err != nil {
		t.Fatalf("FindPredecessor failed: %v", err)
	}
	if prev.ID != first.ID {
		t.Fatalf("expected predecessor %d, got %d", first.ID, prev.ID)
	}
}

func TestTokensScopedToUser(t *testing.T) {
	stores := New().Stores()
	ctx := context.Background()

	tok := newToken(1, "h1", "j1")
	if err := stores.RefreshTokens.Create(ctx, tok); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if _, err := stores.RefreshTokens.GetByID(ctx, 2, tok.ID); !errors.Is(err, authkit.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign user, got %v", err)
	}
	if err := stores.RefreshTokens.Revoke(ctx, 2, tok.ID); !errors.Is(err, authkit.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign revoke, got %v", err)
	}
}

func TestRevokeAllAndListActive(t *testing.T) {
	stores := New().Stores()
	ctx := context.Background()

	for i, h := range []string{"h1", "h2", "h3"} {
		tok := newToken(7, h, "j"+h)
		tok.CreatedAt = time.Now().Add(time.Duration(i) * time.Second)
		if err := stores.RefreshTokens.Create(ctx, tok); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	active, err := stores.RefreshTokens.ListActiveByUser(ctx, 7)
	if err != nil {
		t.Fatalf("ListActiveByUser failed: %v", err)
	}
	if len(active) != 3 {
		t.Fatalf("expected 3 active tokens, got %d", len(active))
	}
	if active[0].TokenHash != "h3" {
		t.Fatalf("expected newest first, got %q", active[0].TokenHash)
	}

	n, err := stores.RefreshTokens.RevokeAllForUser(ctx, 7)
	if err != nil || n != 3 {
		t.Fatalf("expected 3 revoked, got %d err=%v", n, err)
	}
	active, err = stores.RefreshTokens.ListActiveByUser(ctx, 7)
	if err != nil || len(active) != 0 {
		t.Fatalf("expected no active tokens, got %d err=%v", len(active), err)
	}
}

func TestOneTimeTokenLifecycle(t *testing.T) {
	stores := New().Stores()
	ctx := context.Background()

	tok := &authkit.OneTimeToken{
		UserID:    3,
		Kind:      authkit.TokenKindPasswordReset,
		TokenHash: "h1",
		ExpiresAt: time.Now().Add(time.Hour),
		CreatedAt: time.Now(),
	}
	if err := stores.OneTimeTokens.Create(ctx, tok); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Kind is part of the lookup key.
	if _, err := stores.OneTimeTokens.GetByHash(ctx, authkit.TokenKindEmailVerification, "h1"); !errors.Is(err, authkit.ErrNotFound) {
		t.Fatalf("expected ErrNotFound across kinds, got %v", err)
	}

	got, err := stores.OneTimeTokens.GetByHash(ctx, authkit.TokenKindPasswordReset, "h1")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if !got.Valid(time.Now()) {
		t.Fatal("expected token valid")
	}

	n, err := stores.OneTimeTokens.InvalidateForUser(ctx, authkit.TokenKindPasswordReset, 3)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 invalidated, got %d err=%v", n, err)
	}
	got, err = stores.OneTimeTokens.GetByHash(ctx, authkit.TokenKindPasswordReset, "h1")
	if err != nil {
		t.Fatalf("GetByHash failed: %v", err)
	}
	if got.UsedAt == nil {
		t.Fatal("expected token marked used")
	}
}
