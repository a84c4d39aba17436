package memstore

import (
	"context"
	"sort"
	"time"

	authkit "github.com/playcricket/authkit"
	"github.com/playcricket/authkit/internal/audit"
)

type refreshTokenStore struct{ s *Store }

func (v *refreshTokenStore) Create(_ context.Context, t *authkit.RefreshToken) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.insertTokenLocked(t)
	return nil
}

func (s *Store) insertTokenLocked(t *authkit.RefreshToken) {
	s.nextTokenID++
	t.ID = s.nextTokenID
	cp := *t
	s.tokens[t.ID] = &cp
}

func (v *refreshTokenStore) GetByID(_ context.Context, userID, id int64) (*authkit.RefreshToken, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.tokens[id]
	if !ok || t.UserID != userID {
		return nil, authkit.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (v *refreshTokenStore) GetByHash(_ context.Context, userID int64, tokenHash string) (*authkit.RefreshToken, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, t := range v.s.tokens {
		if t.UserID == userID && t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, authkit.ErrNotFound
}

func (v *refreshTokenStore) GetRotatedByJTI(_ context.Context, userID int64, jti string) (*authkit.RefreshToken, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, t := range v.s.tokens {
		if t.UserID == userID && t.JTI == jti && t.ReplacedBy != nil {
			cp := *t
			return &cp, nil
		}
	}
	return nil, authkit.ErrNotFound
}

func (v *refreshTokenStore) FindPredecessor(_ context.Context, userID, id int64) (*authkit.RefreshToken, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, t := range v.s.tokens {
		if t.UserID == userID && t.ReplacedBy != nil && *t.ReplacedBy == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, authkit.ErrNotFound
}

// Rotate re-checks under the mutex that the old record is still live,
// inserts the successor and links the chain. A racing caller that got here
// first leaves the record replaced, and the loser sees
// [authkit.ErrTokenRotated].
func (v *refreshTokenStore) Rotate(_ context.Context, userID, oldID int64, next *authkit.RefreshToken) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	old, ok := v.s.tokens[oldID]
	if !ok || old.UserID != userID {
		return authkit.ErrNotFound
	}
	if old.RevokedAt != nil || old.ReplacedBy != nil {
		return authkit.ErrTokenRotated
	}

	v.s.insertTokenLocked(next)

	now := time.Now().UTC()
	old.RevokedAt = &now
	replacedBy := next.ID
	old.ReplacedBy = &replacedBy
	return nil
}

func (v *refreshTokenStore) Revoke(_ context.Context, userID, id int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.tokens[id]
	if !ok || t.UserID != userID {
		return authkit.ErrNotFound
	}
	if t.RevokedAt == nil {
		now := time.Now().UTC()
		t.RevokedAt = &now
	}
	return nil
}

func (v *refreshTokenStore) RevokeAllForUser(_ context.Context, userID int64) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for _, t := range v.s.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			n++
		}
	}
	return n, nil
}

func (v *refreshTokenStore) ListActiveByUser(_ context.Context, userID int64) ([]authkit.RefreshToken, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	now := time.Now().UTC()
	var out []authkit.RefreshToken
	for _, t := range v.s.tokens {
		if t.UserID == userID && t.RevokedAt == nil && now.Before(t.ExpiresAt) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type oneTimeTokenStore struct{ s *Store }

func (v *oneTimeTokenStore) Create(_ context.Context, t *authkit.OneTimeToken) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.nextOneTimeID++
	t.ID = v.s.nextOneTimeID
	cp := *t
	v.s.oneTime[t.ID] = &cp
	return nil
}

func (v *oneTimeTokenStore) GetByHash(_ context.Context, kind authkit.OneTimeTokenKind, tokenHash string) (*authkit.OneTimeToken, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	for _, t := range v.s.oneTime {
		if t.Kind == kind && t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, authkit.ErrNotFound
}

func (v *oneTimeTokenStore) MarkUsed(_ context.Context, id int64) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	t, ok := v.s.oneTime[id]
	if !ok {
		return authkit.ErrNotFound
	}
	if t.UsedAt == nil {
		now := time.Now().UTC()
		t.UsedAt = &now
	}
	return nil
}

func (v *oneTimeTokenStore) InvalidateForUser(_ context.Context, kind authkit.OneTimeTokenKind, userID int64) (int, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	now := time.Now().UTC()
	n := 0
	for _, t := range v.s.oneTime {
		if t.UserID == userID && t.Kind == kind && t.UsedAt == nil {
			t.UsedAt = &now
			n++
		}
	}
	return n, nil
}

type auditStore struct{ s *Store }

func (v *auditStore) Append(_ context.Context, event audit.Event) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	v.s.events = append(v.s.events, event)
	return nil
}

func (v *auditStore) List(_ context.Context, q authkit.AuditQuery) ([]audit.Event, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	var out []audit.Event
	for _, e := range v.s.events {
		if q.UserID != nil && (e.UserID == nil || *e.UserID != *q.UserID) {
			continue
		}
		if q.Action != "" && e.Action != q.Action {
			continue
		}
		if q.Resource != "" && e.Resource != q.Resource {
			continue
		}
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		if q.IP != "" && e.IP != q.IP {
			continue
		}
		if !q.From.IsZero() && e.Timestamp.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && e.Timestamp.After(q.To) {
			continue
		}
		out = append(out, e)
	}

	if q.Offset > 0 {
		if q.Offset >= len(out) {
			return nil, nil
		}
		out = out[q.Offset:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
