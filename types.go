package authkit

import (
	"context"
	"errors"
	"time"

	internalaudit "github.com/playcricket/authkit/internal/audit"
)

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	// StatusPending is the state between registration and email verification.
	StatusPending UserStatus = "pending"
	// StatusActive is the normal state of a verified account.
	StatusActive UserStatus = "active"
	// StatusLocked is entered after too many consecutive failed logins.
	StatusLocked UserStatus = "locked"
)

// User is the identity record the service orchestrates. Roles carries the
// user's role codes as loaded by the store; it is never written back through
// UserStore.Update (role membership changes go through [UserRoleStore]).
type User struct {
	ID              int64
	Email           string // case-folded, unique
	Name            string
	Phone           string
	PasswordHash    string
	PasswordAlgo    string
	PasswordVersion int
	IsEmailVerified bool

	MFAEnabled  bool
	MFASecret   string
	BackupCodes []string // sha256 hex, never plaintext

	Status              UserStatus
	FailedLoginAttempts int
	LockedUntil         *time.Time

	LastLoginAt *time.Time
	LastLoginIP string

	CreatedAt time.Time
	UpdatedAt time.Time

	Roles []string
}

// HasRole reports whether the user holds the given role code.
func (u *User) HasRole(code string) bool {
	for _, r := range u.Roles {
		if r == code {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the user holds at least one of the given codes.
func (u *User) HasAnyRole(codes ...string) bool {
	for _, c := range codes {
		if u.HasRole(c) {
			return true
		}
	}
	return false
}

// Role is a seeded RBAC lookup row; roles are never created through the
// normal service flow.
type Role struct {
	ID          int64
	Code        string
	Name        string
	Description string
	CreatedAt   time.Time
}

// UserRole joins a user to a role. AssignedBy is nil for self-registration.
type UserRole struct {
	ID         int64
	UserID     int64
	RoleID     int64
	AssignedBy *int64
	AssignedAt time.Time
}

// RefreshToken is one session record. Raw tokens are never stored; TokenHash
// is the sha256 hex of the bearer string. ReplacedBy links rotated records
// into a family chain: revoking a family means walking these links in both
// directions.
type RefreshToken struct {
	ID        int64
	UserID    int64
	TokenHash string
	JTI       string

	UserAgent  string
	IPAddress  string
	DeviceName string

	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy *int64

	CreatedAt time.Time
}

// Valid reports whether the record is neither revoked nor expired.
func (t *RefreshToken) Valid(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// OneTimeTokenKind distinguishes the two single-use token tables.
type OneTimeTokenKind string

const (
	// TokenKindEmailVerification marks email-verification tokens (~24h TTL).
	TokenKindEmailVerification OneTimeTokenKind = "email_verification"
	// TokenKindPasswordReset marks password-reset tokens (~1h TTL).
	TokenKindPasswordReset OneTimeTokenKind = "password_reset"
)

// OneTimeToken is a single-use email-verification or password-reset token,
// stored hashed. At most one unconsumed token per (user, kind) is active;
// issuing a new one marks the older ones used.
type OneTimeToken struct {
	ID        int64
	UserID    int64
	Kind      OneTimeTokenKind
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Valid reports whether the token is unused and unexpired.
func (t *OneTimeToken) Valid(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// SessionInfo is the caller-facing view of an active refresh-token record.
type SessionInfo struct {
	ID         int64
	DeviceName string
	UserAgent  string
	IPAddress  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Store-level sentinel errors. Store implementations return these untouched;
// the service maps them onto the caller-facing [Error] taxonomy.
var (
	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("authkit: not found")
	// ErrTokenRotated is returned by RefreshTokenStore.Rotate when the old
	// record was already revoked or replaced — i.e. another caller won the
	// rotation race. The service treats it as token reuse.
	ErrTokenRotated = errors.New("authkit: refresh token already rotated")
)

// UserStore is the persistence collaborator for user rows. GetByEmail
// receives case-folded emails only. Update persists every mutable field on
// [User] except Roles. Delete cascades roles and tokens.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id int64) error
}

// RoleStore reads the seeded role table.
type RoleStore interface {
	GetByCode(ctx context.Context, code string) (*Role, error)
	List(ctx context.Context) ([]Role, error)
}

// UserRoleStore maintains the user/role join table.
type UserRoleStore interface {
	Assign(ctx context.Context, ur *UserRole) error
	Remove(ctx context.Context, userID, roleID int64) error
	ListByUser(ctx context.Context, userID int64) ([]Role, error)
	CountByUser(ctx context.Context, userID int64) (int, error)
}

// RefreshTokenStore persists session records with their rotation lineage.
//
// Rotate is the critical section of the whole module: it must atomically
// verify that the record identified by oldID is still unrevoked and
// unreplaced, insert next, and set the old record's revoked_at and
// replaced_by in one step. When the old record was already rotated it must
// return [ErrTokenRotated] without inserting anything. Implementations back
// this with whatever isolation primitive they have — a mutex (memstore), a
// Lua script (redistore), or a row-count CAS inside a transaction (pgstore).
type RefreshTokenStore interface {
	Create(ctx context.Context, t *RefreshToken) error
	GetByID(ctx context.Context, userID, id int64) (*RefreshToken, error)
	GetByHash(ctx context.Context, userID int64, tokenHash string) (*RefreshToken, error)
	// GetRotatedByJTI returns a record with the given jti whose replaced_by
	// is already set; this is the reuse-detection probe.
	GetRotatedByJTI(ctx context.Context, userID int64, jti string) (*RefreshToken, error)
	// FindPredecessor returns the record whose replaced_by points at id.
	FindPredecessor(ctx context.Context, userID, id int64) (*RefreshToken, error)
	Rotate(ctx context.Context, userID, oldID int64, next *RefreshToken) error
	Revoke(ctx context.Context, userID, id int64) error
	RevokeAllForUser(ctx context.Context, userID int64) (int, error)
	ListActiveByUser(ctx context.Context, userID int64) ([]RefreshToken, error)
}

// OneTimeTokenStore persists email-verification and password-reset tokens.
type OneTimeTokenStore interface {
	Create(ctx context.Context, t *OneTimeToken) error
	GetByHash(ctx context.Context, kind OneTimeTokenKind, tokenHash string) (*OneTimeToken, error)
	MarkUsed(ctx context.Context, id int64) error
	// InvalidateForUser marks every unconsumed token of the kind as used and
	// returns how many it touched.
	InvalidateForUser(ctx context.Context, kind OneTimeTokenKind, userID int64) (int, error)
}

// AuditQuery filters the audit trail for admin and security views.
// Zero-valued fields are not applied.
type AuditQuery struct {
	UserID   *int64
	Action   string
	Resource string
	Status   string
	IP       string
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// AuditStore is the append-only persistence collaborator for audit events.
// Append must never mutate or delete existing rows.
type AuditStore interface {
	Append(ctx context.Context, event internalaudit.Event) error
	List(ctx context.Context, q AuditQuery) ([]internalaudit.Event, error)
}

// Stores bundles the five persistence collaborators handed to [New].
// Audit may be nil when an explicit [AuditSink] is supplied instead.
type Stores struct {
	Users         UserStore
	Roles         RoleStore
	UserRoles     UserRoleStore
	RefreshTokens RefreshTokenStore
	OneTimeTokens OneTimeTokenStore
	Audit         AuditStore
}

// LoginResult is returned by [Service.Login].
type LoginResult struct {
	User         *User
	AccessToken  string
	RefreshToken string
}

// TokenPair is returned by [Service.Refresh].
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// RegisterResult is returned by [Service.Register]. VerificationToken is the
// raw single-use token for out-of-band delivery; only its hash is stored.
type RegisterResult struct {
	User              *User
	VerificationToken string
}

// MFASetup is returned by [Service.SetupMFA]. Nothing is persisted until
// [Service.EnableMFA] verifies a proof code against Secret.
type MFASetup struct {
	Secret      string
	URI         string
	BackupCodes []string
}
