package authkit

import "github.com/playcricket/authkit/internal/audit"

// AuditEvent and AuditSink alias the internal audit types so integrators can
// supply custom sinks without importing an internal package.
type (
	AuditEvent = audit.Event
	AuditSink  = audit.Sink
)

// Audit event statuses.
const (
	AuditStatusSuccess       = audit.StatusSuccess
	AuditStatusFailure       = audit.StatusFailure
	AuditStatusSecurityAlert = audit.StatusSecurityAlert
	AuditStatusInfo          = audit.StatusInfo
)

// Audit actions. The strings are stable identifiers; dashboards and alert
// rules key on them.
const (
	ActionUserRegistered         = "USER_REGISTERED"
	ActionEmailVerified          = "EMAIL_VERIFIED"
	ActionVerificationResent     = "VERIFICATION_RESENT"
	ActionLoginSuccess           = "LOGIN_SUCCESS"
	ActionLoginFailed            = "LOGIN_FAILED"
	ActionMFAFailed              = "MFA_FAILED"
	ActionMFAEnabled             = "MFA_ENABLED"
	ActionMFADisabled            = "MFA_DISABLED"
	ActionBackupCodesRegenerated = "BACKUP_CODES_REGENERATED"
	ActionTokenReuseDetected     = "TOKEN_REUSE_DETECTED"
	ActionLogout                 = "LOGOUT"
	ActionPasswordResetRequested = "PASSWORD_RESET_REQUESTED"
	ActionPasswordReset          = "PASSWORD_RESET"
	ActionSessionRevoked         = "SESSION_REVOKED"
	ActionAllSessionsRevoked     = "ALL_SESSIONS_REVOKED"
	ActionRoleAssigned           = "ROLE_ASSIGNED"
	ActionRoleRemoved            = "ROLE_REMOVED"
)

// NewJSONWriterSink re-exports the line-delimited JSON sink.
var NewJSONWriterSink = audit.NewJSONWriterSink

// NewChannelSink re-exports the channel sink, mostly useful in tests.
var NewChannelSink = audit.NewChannelSink
