package authkit

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// familyWalkLimit bounds the rotation-chain walk so a corrupted store can
// never wedge revocation in an endless loop.
const familyWalkLimit = 1024

// Refresh rotates a refresh token: the presented token is retired and a new
// access/refresh pair is issued in its place. Presenting a token that was
// already rotated is treated as theft evidence; the whole rotation family is
// revoked and [ErrTokenReuseDetected] is returned.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*TokenPair, error) {
	claims, err := s.jwt.VerifyRefresh(rawRefresh)
	if err != nil {
		s.metrics.Inc(MetricRefreshFailure)
		return nil, ErrInvalidRefreshToken
	}
	userID, err := claims.UserID()
	if err != nil {
		s.metrics.Inc(MetricRefreshFailure)
		return nil, ErrInvalidRefreshToken
	}

	now := time.Now().UTC()

	rec, err := s.tokens.GetByHash(ctx, userID, hashToken(rawRefresh))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The signature checked out but no record matches the hash. If a
			// rotated record carries this jti, the bearer is replaying a
			// retired token.
			if rotated, probeErr := s.tokens.GetRotatedByJTI(ctx, userID, claims.ID); probeErr == nil {
				return nil, s.handleReuse(ctx, userID, rotated)
			}
			s.metrics.Inc(MetricRefreshFailure)
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	if rec.ReplacedBy != nil {
		// The record was rotated; the bearer is replaying a retired token.
		return nil, s.handleReuse(ctx, userID, rec)
	}
	if rec.RevokedAt != nil {
		// Revoked without rotation: logout or an explicit session sweep. That
		// is not theft evidence, just a dead token.
		s.metrics.Inc(MetricRefreshFailure)
		return nil, ErrInvalidRefreshToken
	}
	if !now.Before(rec.ExpiresAt) {
		s.metrics.Inc(MetricRefreshFailure)
		return nil, ErrInvalidRefreshToken
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.Inc(MetricRefreshFailure)
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	if user.Status != StatusActive {
		s.metrics.Inc(MetricRefreshFailure)
		return nil, ErrAccountNotActive
	}
	if claims.PasswordVersion != user.PasswordVersion {
		s.metrics.Inc(MetricRefreshFailure)
		return nil, ErrPasswordChanged
	}

	pair, next, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Rotate(ctx, userID, rec.ID, next); err != nil {
		if errors.Is(err, ErrTokenRotated) {
			// Lost the rotation race: someone else rotated this record
			// between our read and our write. One of the two bearers is not
			// the legitimate client.
			return nil, s.handleReuse(ctx, userID, rec)
		}
		return nil, err
	}

	s.metrics.Inc(MetricRefreshSuccess)
	return &pair, nil
}

// handleReuse revokes every token in the rotation family of rec and records
// the incident. It always returns [ErrTokenReuseDetected].
func (s *Service) handleReuse(ctx context.Context, userID int64, rec *RefreshToken) error {
	// The caller's copy may predate the rotation that made this a reuse; a
	// fresh read carries the replaced_by link the family walk follows.
	if fresh, err := s.tokens.GetByID(ctx, userID, rec.ID); err == nil {
		rec = fresh
	}

	revoked := s.revokeFamily(ctx, userID, rec)

	s.metrics.Inc(MetricReuseDetected)
	s.emitAudit(ctx, ActionTokenReuseDetected, &userID, "auth", strconv.FormatInt(rec.ID, 10), map[string]string{
		"jti":             rec.JTI,
		"tokens_revoked":  strconv.Itoa(revoked),
		"detection_point": "refresh",
	}, AuditStatusSecurityAlert)

	return ErrTokenReuseDetected
}

// revokeFamily walks the rotation chain in both directions from rec and
// revokes every member. It returns how many records it revoked.
func (s *Service) revokeFamily(ctx context.Context, userID int64, rec *RefreshToken) int {
	revoked := 0
	revokeOne := func(t *RefreshToken) {
		if t.RevokedAt == nil {
			if err := s.tokens.Revoke(ctx, userID, t.ID); err == nil {
				revoked++
			}
		}
	}

	revokeOne(rec)

	// Forward: each record names its successor.
	cur := rec
	for hops := 0; hops < familyWalkLimit && cur.ReplacedBy != nil; hops++ {
		next, err := s.tokens.GetByID(ctx, userID, *cur.ReplacedBy)
		if err != nil {
			break
		}
		revokeOne(next)
		cur = next
	}

	// Backward: find whoever names us as successor.
	cur = rec
	for hops := 0; hops < familyWalkLimit; hops++ {
		prev, err := s.tokens.FindPredecessor(ctx, userID, cur.ID)
		if err != nil {
			break
		}
		revokeOne(prev)
		cur = prev
	}

	return revoked
}

// Logout revokes the presented refresh token. A missing or foreign token is
// not an error; logout is idempotent.
func (s *Service) Logout(ctx context.Context, userID int64, rawRefresh string) error {
	if rawRefresh != "" {
		rec, err := s.tokens.GetByHash(ctx, userID, hashToken(rawRefresh))
		if err == nil && rec.RevokedAt == nil {
			if err := s.tokens.Revoke(ctx, userID, rec.ID); err != nil {
				return err
			}
		} else if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}

	s.metrics.Inc(MetricLogout)
	s.emitAudit(ctx, ActionLogout, &userID, "auth", "", nil, AuditStatusSuccess)
	return nil
}
