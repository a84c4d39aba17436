package authkit

import (
	"context"
	"errors"
	"strconv"
)

// ListSessions returns the user's active sessions, one per live refresh
// token, newest first as the store orders them.
func (s *Service) ListSessions(ctx context.Context, userID int64) ([]SessionInfo, error) {
	records, err := s.tokens.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions := make([]SessionInfo, 0, len(records))
	for _, r := range records {
		sessions = append(sessions, SessionInfo{
			ID:         r.ID,
			DeviceName: r.DeviceName,
			UserAgent:  r.UserAgent,
			IPAddress:  r.IPAddress,
			CreatedAt:  r.CreatedAt,
			ExpiresAt:  r.ExpiresAt,
		})
	}
	return sessions, nil
}

// RevokeSession logs out one device. The userID scoping means a caller can
// only revoke their own sessions.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID int64) error {
	rec, err := s.tokens.GetByID(ctx, userID, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if rec.RevokedAt == nil {
		if err := s.tokens.Revoke(ctx, userID, rec.ID); err != nil {
			return err
		}
	}

	s.metrics.Inc(MetricSessionRevoked)
	s.emitAudit(ctx, ActionSessionRevoked, &userID, "auth", "", map[string]string{
		"token_id": strconv.FormatInt(sessionID, 10),
	}, AuditStatusSuccess)
	return nil
}

// RevokeAllSessions logs the user out everywhere and returns how many
// sessions died.
func (s *Service) RevokeAllSessions(ctx context.Context, userID int64) (int, error) {
	count, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	s.metrics.Inc(MetricSessionsRevokedAll)
	s.emitAudit(ctx, ActionAllSessionsRevoked, &userID, "auth", "", map[string]string{
		"count": strconv.Itoa(count),
	}, AuditStatusSuccess)
	return count, nil
}
