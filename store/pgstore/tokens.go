package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"

	authkit "github.com/playcricket/authkit"
	"github.com/playcricket/authkit/internal/audit"
)

type refreshTokenStore struct{ p *Storage }

const refreshTokenColumns = `id, user_id, token_hash, jti, coalesce(user_agent, ''),
	coalesce(ip_address, ''), coalesce(device_name, ''), expires_at, revoked_at, replaced_by, created_at`

func scanRefreshToken(row pgx.Row) (*authkit.RefreshToken, error) {
	var t authkit.RefreshToken
	err := row.Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.JTI, &t.UserAgent,
		&t.IPAddress, &t.DeviceName, &t.ExpiresAt, &t.RevokedAt, &t.ReplacedBy, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authkit.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (v *refreshTokenStore) insert(ctx context.Context, q pgxQuerier, t *authkit.RefreshToken) error {
	return q.QueryRow(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, jti, user_agent, ip_address,
			device_name, expires_at, revoked_at, replaced_by, created_at)
		 VALUES ($1,$2,$3,nullif($4,''),nullif($5,''),nullif($6,''),$7,$8,$9,$10)
		 RETURNING id`,
		t.UserID, t.TokenHash, t.JTI, t.UserAgent, t.IPAddress,
		t.DeviceName, t.ExpiresAt, t.RevokedAt, t.ReplacedBy, t.CreatedAt,
	).Scan(&t.ID)
}

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (v *refreshTokenStore) Create(ctx context.Context, t *authkit.RefreshToken) error {
	const op = "pgstore.refreshTokens.Create"

	if err := v.insert(ctx, v.p.db, t); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (v *refreshTokenStore) GetByID(ctx context.Context, userID, id int64) (*authkit.RefreshToken, error) {
	const op = "pgstore.refreshTokens.GetByID"

	row := v.p.db.QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE id = $1 AND user_id = $2`, id, userID)
	t, err := scanRefreshToken(row)
	if err != nil {
		if errors.Is(err, authkit.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func (v *refreshTokenStore) GetByHash(ctx context.Context, userID int64, tokenHash string) (*authkit.RefreshToken, error) {
	const op = "pgstore.refreshTokens.GetByHash"

	row := v.p.db.QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE user_id = $1 AND token_hash = $2`,
		userID, tokenHash)
	t, err := scanRefreshToken(row)
	if err != nil {
		if errors.Is(err, authkit.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func (v *refreshTokenStore) GetRotatedByJTI(ctx context.Context, userID int64, jti string) (*authkit.RefreshToken, error) {
	const op = "pgstore.refreshTokens.GetRotatedByJTI"

	row := v.p.db.QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens
		 WHERE user_id = $1 AND jti = $2 AND replaced_by IS NOT NULL`,
		userID, jti)
	t, err := scanRefreshToken(row)
	if err != nil {
		if errors.Is(err, authkit.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func (v *refreshTokenStore) FindPredecessor(ctx context.Context, userID, id int64) (*authkit.RefreshToken, error) {
	const op = "pgstore.refreshTokens.FindPredecessor"

	row := v.p.db.QueryRow(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens
		 WHERE user_id = $1 AND replaced_by = $2`,
		userID, id)
	t, err := scanRefreshToken(row)
	if err != nil {
		if errors.Is(err, authkit.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

// Rotate inserts the replacement record and then flips the old row with a
// conditional UPDATE. Zero rows affected means a concurrent caller already
// rotated or revoked it, so the transaction rolls back and the loser sees
// [authkit.ErrTokenRotated].
func (v *refreshTokenStore) Rotate(ctx context.Context, userID, oldID int64, next *authkit.RefreshToken) error {
	const op = "pgstore.refreshTokens.Rotate"

	tx, err := v.p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer tx.Rollback(ctx)

	if err := v.insert(ctx, tx, next); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $3, replaced_by = $4
		 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL AND replaced_by IS NULL`,
		oldID, userID, time.Now().UTC(), next.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE id = $1 AND user_id = $2)`,
			oldID, userID).Scan(&exists); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !exists {
			return authkit.ErrNotFound
		}
		return authkit.ErrTokenRotated
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (v *refreshTokenStore) Revoke(ctx context.Context, userID, id int64) error {
	const op = "pgstore.refreshTokens.Revoke"

	tag, err := v.p.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $3
		 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		id, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := v.p.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE id = $1 AND user_id = $2)`,
			id, userID).Scan(&exists); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !exists {
			return authkit.ErrNotFound
		}
	}
	return nil
}

func (v *refreshTokenStore) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	const op = "pgstore.refreshTokens.RevokeAllForUser"

	tag, err := v.p.db.Exec(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2
		 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2`,
		userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(tag.RowsAffected()), nil
}

func (v *refreshTokenStore) ListActiveByUser(ctx context.Context, userID int64) ([]authkit.RefreshToken, error) {
	const op = "pgstore.refreshTokens.ListActiveByUser"

	rows, err := v.p.db.Query(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens
		 WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		 ORDER BY created_at DESC`,
		userID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []authkit.RefreshToken
	for rows.Next() {
		var t authkit.RefreshToken
		err := rows.Scan(
			&t.ID, &t.UserID, &t.TokenHash, &t.JTI, &t.UserAgent,
			&t.IPAddress, &t.DeviceName, &t.ExpiresAt, &t.RevokedAt, &t.ReplacedBy, &t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}
	return out, nil
}

type oneTimeTokenStore struct{ p *Storage }

func (v *oneTimeTokenStore) Create(ctx context.Context, t *authkit.OneTimeToken) error {
	const op = "pgstore.oneTimeTokens.Create"

	err := v.p.db.QueryRow(ctx,
		`INSERT INTO one_time_tokens (user_id, kind, token_hash, expires_at, used_at, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		t.UserID, t.Kind, t.TokenHash, t.ExpiresAt, t.UsedAt, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (v *oneTimeTokenStore) GetByHash(ctx context.Context, kind authkit.OneTimeTokenKind, tokenHash string) (*authkit.OneTimeToken, error) {
	const op = "pgstore.oneTimeTokens.GetByHash"

	var t authkit.OneTimeToken
	err := v.p.db.QueryRow(ctx,
		`SELECT id, user_id, kind, token_hash, expires_at, used_at, created_at
		 FROM one_time_tokens WHERE kind = $1 AND token_hash = $2`,
		kind, tokenHash,
	).Scan(&t.ID, &t.UserID, &t.Kind, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authkit.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &t, nil
}

func (v *oneTimeTokenStore) MarkUsed(ctx context.Context, id int64) error {
	const op = "pgstore.oneTimeTokens.MarkUsed"

	tag, err := v.p.db.Exec(ctx,
		`UPDATE one_time_tokens SET used_at = $2 WHERE id = $1 AND used_at IS NULL`,
		id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := v.p.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM one_time_tokens WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !exists {
			return authkit.ErrNotFound
		}
	}
	return nil
}

func (v *oneTimeTokenStore) InvalidateForUser(ctx context.Context, kind authkit.OneTimeTokenKind, userID int64) (int, error) {
	const op = "pgstore.oneTimeTokens.InvalidateForUser"

	tag, err := v.p.db.Exec(ctx,
		`UPDATE one_time_tokens SET used_at = $3
		 WHERE user_id = $1 AND kind = $2 AND used_at IS NULL`,
		userID, kind, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(tag.RowsAffected()), nil
}

type auditStore struct{ p *Storage }

func (v *auditStore) Append(ctx context.Context, event audit.Event) error {
	const op = "pgstore.audit.Append"

	var details []byte
	if len(event.Details) > 0 {
		b, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		details = b
	}

	_, err := v.p.db.Exec(ctx,
		`INSERT INTO audit_log (ts, action, user_id, resource, resource_id, details, ip_address, user_agent, status)
		 VALUES ($1,$2,$3,nullif($4,''),nullif($5,''),$6,nullif($7,''),nullif($8,''),$9)`,
		event.Timestamp, event.Action, event.UserID, event.Resource, event.ResourceID,
		details, event.IP, event.UserAgent, event.Status,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (v *auditStore) List(ctx context.Context, q authkit.AuditQuery) ([]audit.Event, error) {
	const op = "pgstore.audit.List"

	var (
		where []string
		args  []interface{}
	)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.UserID != nil {
		where = append(where, "user_id = "+arg(*q.UserID))
	}
	if q.Action != "" {
		where = append(where, "action = "+arg(q.Action))
	}
	if q.Resource != "" {
		where = append(where, "resource = "+arg(q.Resource))
	}
	if q.Status != "" {
		where = append(where, "status = "+arg(q.Status))
	}
	if q.IP != "" {
		where = append(where, "ip_address = "+arg(q.IP))
	}
	if !q.From.IsZero() {
		where = append(where, "ts >= "+arg(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "ts <= "+arg(q.To))
	}

	query := `SELECT ts, action, user_id, coalesce(resource, ''), coalesce(resource_id, ''),
		details, coalesce(ip_address, ''), coalesce(user_agent, ''), status FROM audit_log`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT " + arg(q.Limit)
	}
	if q.Offset > 0 {
		query += " OFFSET " + arg(q.Offset)
	}

	rows, err := v.p.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e       audit.Event
			details []byte
		)
		err := rows.Scan(&e.Timestamp, &e.Action, &e.UserID, &e.Resource, &e.ResourceID,
			&details, &e.IP, &e.UserAgent, &e.Status)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}
	return out, nil
}
