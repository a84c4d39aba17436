// Package pgstore implements the authkit persistence interfaces on
// PostgreSQL via pgx. Rotation atomicity rides on a conditional UPDATE
// inside a transaction; see schema.sql for the expected tables.
package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	authkit "github.com/playcricket/authkit"
)

// Storage owns the connection pool. Interface views come from
// [Storage.Stores].
type Storage struct {
	db *pgxpool.Pool
}

func New(ctx context.Context, dbURL string) (*Storage, error) {
	const op = "pgstore.New"

	pool, err := pgxpool.Connect(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Storage{db: pool}, nil
}

// NewWithPool wraps an existing pool, for callers that manage their own
// connection lifecycle.
func NewWithPool(pool *pgxpool.Pool) *Storage {
	return &Storage{db: pool}
}

func (p *Storage) Close() {
	p.db.Close()
}

// Stores bundles the interface views for [authkit.New].
func (p *Storage) Stores() authkit.Stores {
	return authkit.Stores{
		Users:         &userStore{p},
		Roles:         &roleStore{p},
		UserRoles:     &userRoleStore{p},
		RefreshTokens: &refreshTokenStore{p},
		OneTimeTokens: &oneTimeTokenStore{p},
		Audit:         &auditStore{p},
	}
}

type userStore struct{ p *Storage }

const userColumns = `id, email, name, phone, password_hash, password_algo, password_version,
	is_email_verified, mfa_enabled, coalesce(mfa_secret, ''), backup_codes,
	status, failed_login_attempts, locked_until, last_login_at, coalesce(last_login_ip, ''),
	created_at, updated_at`

func (v *userStore) scanUser(row pgx.Row) (*authkit.User, error) {
	var u authkit.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.Phone, &u.PasswordHash, &u.PasswordAlgo, &u.PasswordVersion,
		&u.IsEmailVerified, &u.MFAEnabled, &u.MFASecret, &u.BackupCodes,
		&u.Status, &u.FailedLoginAttempts, &u.LockedUntil, &u.LastLoginAt, &u.LastLoginIP,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authkit.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (v *userStore) loadRoles(ctx context.Context, u *authkit.User) error {
	rows, err := v.p.db.Query(ctx,
		`SELECT r.code FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1 ORDER BY r.code`, u.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return err
		}
		u.Roles = append(u.Roles, code)
	}
	return rows.Err()
}

func (v *userStore) GetByID(ctx context.Context, id int64) (*authkit.User, error) {
	const op = "pgstore.users.GetByID"

	row := v.p.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := v.scanUser(row)
	if err != nil {
		if errors.Is(err, authkit.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := v.loadRoles(ctx, u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (v *userStore) GetByEmail(ctx context.Context, email string) (*authkit.User, error) {
	const op = "pgstore.users.GetByEmail"

	row := v.p.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := v.scanUser(row)
	if err != nil {
		if errors.Is(err, authkit.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := v.loadRoles(ctx, u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (v *userStore) Create(ctx context.Context, u *authkit.User) error {
	const op = "pgstore.users.Create"

	err := v.p.db.QueryRow(ctx,
		`INSERT INTO users (email, name, phone, password_hash, password_algo, password_version,
			is_email_verified, mfa_enabled, mfa_secret, backup_codes, status,
			failed_login_attempts, locked_until, last_login_at, last_login_ip, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,nullif($9,''),$10,$11,$12,$13,$14,nullif($15,''),$16,$17)
		 RETURNING id`,
		u.Email, u.Name, u.Phone, u.PasswordHash, u.PasswordAlgo, u.PasswordVersion,
		u.IsEmailVerified, u.MFAEnabled, u.MFASecret, u.BackupCodes, u.Status,
		u.FailedLoginAttempts, u.LockedUntil, u.LastLoginAt, u.LastLoginIP, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (v *userStore) Update(ctx context.Context, u *authkit.User) error {
	const op = "pgstore.users.Update"

	tag, err := v.p.db.Exec(ctx,
		`UPDATE users SET
			email = $2, name = $3, phone = $4, password_hash = $5, password_algo = $6,
			password_version = $7, is_email_verified = $8, mfa_enabled = $9,
			mfa_secret = nullif($10,''), backup_codes = $11, status = $12,
			failed_login_attempts = $13, locked_until = $14, last_login_at = $15,
			last_login_ip = nullif($16,''), updated_at = $17
		 WHERE id = $1`,
		u.ID, u.Email, u.Name, u.Phone, u.PasswordHash, u.PasswordAlgo,
		u.PasswordVersion, u.IsEmailVerified, u.MFAEnabled,
		u.MFASecret, u.BackupCodes, u.Status,
		u.FailedLoginAttempts, u.LockedUntil, u.LastLoginAt,
		u.LastLoginIP, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return authkit.ErrNotFound
	}
	return nil
}

func (v *userStore) Delete(ctx context.Context, id int64) error {
	const op = "pgstore.users.Delete"

	tag, err := v.p.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return authkit.ErrNotFound
	}
	return nil
}

type roleStore struct{ p *Storage }

func (v *roleStore) GetByCode(ctx context.Context, code string) (*authkit.Role, error) {
	const op = "pgstore.roles.GetByCode"

	var r authkit.Role
	err := v.p.db.QueryRow(ctx,
		`SELECT id, code, name, coalesce(description, ''), created_at FROM roles WHERE code = $1`,
		code,
	).Scan(&r.ID, &r.Code, &r.Name, &r.Description, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, authkit.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &r, nil
}

func (v *roleStore) List(ctx context.Context) ([]authkit.Role, error) {
	const op = "pgstore.roles.List"

	rows, err := v.p.db.Query(ctx,
		`SELECT id, code, name, coalesce(description, ''), created_at FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []authkit.Role
	for rows.Next() {
		var r authkit.Role
		if err := rows.Scan(&r.ID, &r.Code, &r.Name, &r.Description, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}
	return out, nil
}

type userRoleStore struct{ p *Storage }

func (v *userRoleStore) Assign(ctx context.Context, ur *authkit.UserRole) error {
	const op = "pgstore.userRoles.Assign"

	err := v.p.db.QueryRow(ctx,
		`INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, role_id) DO UPDATE SET user_id = user_roles.user_id
		 RETURNING id`,
		ur.UserID, ur.RoleID, ur.AssignedBy, ur.AssignedAt,
	).Scan(&ur.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (v *userRoleStore) Remove(ctx context.Context, userID, roleID int64) error {
	const op = "pgstore.userRoles.Remove"

	tag, err := v.p.db.Exec(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return authkit.ErrNotFound
	}
	return nil
}

func (v *userRoleStore) ListByUser(ctx context.Context, userID int64) ([]authkit.Role, error) {
	const op = "pgstore.userRoles.ListByUser"

	rows, err := v.p.db.Query(ctx,
		`SELECT r.id, r.code, r.name, coalesce(r.description, ''), r.created_at
		 FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = $1 ORDER BY r.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []authkit.Role
	for rows.Next() {
		var r authkit.Role
		if err := rows.Scan(&r.ID, &r.Code, &r.Name, &r.Description, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows): %w", op, err)
	}
	return out, nil
}

func (v *userRoleStore) CountByUser(ctx context.Context, userID int64) (int, error) {
	const op = "pgstore.userRoles.CountByUser"

	var n int
	err := v.p.db.QueryRow(ctx,
		`SELECT count(*) FROM user_roles WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}
