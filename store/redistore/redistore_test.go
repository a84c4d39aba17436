package redistore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authkit "github.com/playcricket/authkit"
)

func newStoreTest(t *testing.T) (*Store, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := New(rdb, "auth")
	return store, func() {
		rdb.Close()
		mr.Close()
	}
}

func testRecord(userID int64, hash, jti string) *authkit.RefreshToken {
	now := time.Now().UTC()
	return &authkit.RefreshToken{
		UserID:     userID,
		TokenHash:  hash,
		JTI:        jti,
		UserAgent:  "Mozilla/5.0 Chrome/120",
		IPAddress:  "203.0.113.9",
		DeviceName: "Chrome Browser",
		ExpiresAt:  now.Add(time.Hour),
		CreatedAt:  now,
	}
}

func TestCreateAndLookups(t *testing.T) {
	store, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	rec := testRecord(7, "hash-a", "jti-a")
	if err := store.Create(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == 0 {
		t.Fatalf("no id assigned")
	}

	got, err := store.GetByID(ctx, 7, rec.ID)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if got.TokenHash != "hash-a" || got.JTI != "jti-a" || got.DeviceName != "Chrome Browser" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.RevokedAt != nil || got.ReplacedBy != nil {
		t.Fatalf("fresh record not live: %+v", got)
	}

	if _, err := store.GetByHash(ctx, 7, "hash-a"); err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if _, err := store.GetByHash(ctx, 7, "no-such-hash"); !errors.Is(err, authkit.ErrNotFound) {
		t.Fatalf("missing hash: got %v", err)
	}
	if _, err := store.GetByHash(ctx, 8, "hash-a"); !errors.Is(err, authkit.ErrNotFound) {
		t.Fatalf("foreign user sees record: got %v", err)
	}

	// An unrotated record is not reuse evidence.
	if _, err := store.GetRotatedByJTI(ctx, 7, "jti-a"); !errors.Is(err, authkit.ErrNotFound) {
		t.Fatalf("live record returned by rotated-jti probe: got %v", err)
	}
}

func TestRotateLinksChainOnce(t *testing.T) {
	store, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	oldRec := testRecord(7, "hash-old", "jti-old")
	if err := store.Create(ctx, oldRec); err != nil {
		t.Fatalf("create: %v", err)
	}

	next := testRecord(7, "hash-new", "jti-new")
	if err := store.Rotate(ctx, 7, oldRec.ID, next); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if next.ID == 0 {
		t.Fatalf("successor id not assigned")
	}

	rotated, err := store.GetByID(ctx, 7, oldRec.ID)
	if err != nil {
		t.Fatalf("get rotated: %v", err)
	}
	if rotated.RevokedAt == nil {
		t.Fatalf("old record not revoked after rotation")
	}
	if rotated.ReplacedBy == nil || *rotated.ReplacedBy != next.ID {
		t.Fatalf("old record not linked to successor: %+v", rotated)
	}

	if _, err := store.GetRotatedByJTI(ctx, 7, "jti-old"); err != nil {
		t.Fatalf("rotated-jti probe: %v", err)
	}

	pred, err := store.FindPredecessor(ctx, 7, next.ID)
	if err != nil {
		t.Fatalf("find predecessor: %v", err)
	}
	if pred.ID != oldRec.ID {
		t.Fatalf("predecessor = %d, want %d", pred.ID, oldRec.ID)
	}

	// Second rotation of the same record loses.
	again := testRecord(7, "hash-again", "jti-again")
	if err := store.Rotate(ctx, 7, oldRec.ID, again); !errors.Is(err, authkit.ErrTokenRotated) {
		t.Fatalf("double rotate: got %v, want ErrTokenRotated", err)
	}

	if err := store.Rotate(ctx, 7, 9999, testRecord(7, "h", "j")); !errors.Is(err, authkit.ErrNotFound) {
		t.Fatalf("rotate missing record: got %v", err)
	}
}

func TestRevokeAndList(t *testing.T) {
	store, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	a := testRecord(7, "hash-a", "jti-a")
	b := testRecord(7, "hash-b", "jti-b")
	other := testRecord(8, "hash-c", "jti-c")
	for _, rec := range []*authkit.RefreshToken{a, b, other} {
		if err := store.Create(ctx, rec); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	active, err := store.ListActiveByUser(ctx, 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active = %d, want 2", len(active))
	}

	if err := store.Revoke(ctx, 7, a.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	// Idempotent.
	if err := store.Revoke(ctx, 7, a.ID); err != nil {
		t.Fatalf("revoke twice: %v", err)
	}

	active, err = store.ListActiveByUser(ctx, 7)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].ID != b.ID {
		t.Fatalf("unexpected active set: %+v", active)
	}

	n, err := store.RevokeAllForUser(ctx, 7)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 1 {
		t.Fatalf("revoke all count = %d, want 1", n)
	}

	// User 8 untouched.
	active, err = store.ListActiveByUser(ctx, 8)
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("other user's sessions disturbed: %+v", active)
	}
}
