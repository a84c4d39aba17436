package internaldefs

import (
	authkit "github.com/playcricket/authkit"
)

// CounterDef names one exported counter.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// HistogramDef names one exported histogram.
type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// CounterDefs is the shared counter catalogue. Both exporters iterate it so
// that metric names stay identical across backends.
var CounterDefs = []CounterDef{
	{ID: authkit.MetricLoginSuccess, Name: "authkit_login_success_total", Help: "Completed logins."},
	{ID: authkit.MetricLoginFailure, Name: "authkit_login_failure_total", Help: "Rejected login attempts."},
	{ID: authkit.MetricMFARequired, Name: "authkit_mfa_required_total", Help: "Logins answered with an MFA challenge."},
	{ID: authkit.MetricMFASuccess, Name: "authkit_mfa_success_total", Help: "Accepted MFA proofs."},
	{ID: authkit.MetricMFAFailure, Name: "authkit_mfa_failure_total", Help: "Rejected MFA proofs."},
	{ID: authkit.MetricBackupCodeUsed, Name: "authkit_backup_code_used_total", Help: "Logins that consumed a backup code."},
	{ID: authkit.MetricBackupCodesRegenerated, Name: "authkit_backup_codes_regenerated_total", Help: "Backup-code regeneration operations."},
	{ID: authkit.MetricRefreshSuccess, Name: "authkit_refresh_success_total", Help: "Completed refresh-token rotations."},
	{ID: authkit.MetricRefreshFailure, Name: "authkit_refresh_failure_total", Help: "Rejected refresh attempts."},
	{ID: authkit.MetricReuseDetected, Name: "authkit_reuse_detected_total", Help: "Refresh-token reuse incidents."},
	{ID: authkit.MetricAccountLocked, Name: "authkit_account_locked_total", Help: "Accounts locked after repeated failures."},
	{ID: authkit.MetricRegisterSuccess, Name: "authkit_register_success_total", Help: "Created accounts."},
	{ID: authkit.MetricRegisterDuplicate, Name: "authkit_register_duplicate_total", Help: "Registrations rejected on a duplicate email."},
	{ID: authkit.MetricEmailVerified, Name: "authkit_email_verified_total", Help: "Completed email verifications."},
	{ID: authkit.MetricVerificationFailure, Name: "authkit_verification_failure_total", Help: "Rejected email-verification tokens."},
	{ID: authkit.MetricVerificationResent, Name: "authkit_verification_resent_total", Help: "Reissued verification tokens."},
	{ID: authkit.MetricResetRequested, Name: "authkit_reset_requested_total", Help: "Password reset requests."},
	{ID: authkit.MetricResetSuccess, Name: "authkit_reset_success_total", Help: "Completed password resets."},
	{ID: authkit.MetricResetFailure, Name: "authkit_reset_failure_total", Help: "Rejected password-reset tokens."},
	{ID: authkit.MetricPasswordRehash, Name: "authkit_password_rehash_total", Help: "Transparent hash upgrades at login."},
	{ID: authkit.MetricLogout, Name: "authkit_logout_total", Help: "Single-session logouts."},
	{ID: authkit.MetricSessionRevoked, Name: "authkit_session_revoked_total", Help: "Targeted session revocations."},
	{ID: authkit.MetricSessionsRevokedAll, Name: "authkit_sessions_revoked_all_total", Help: "Revoke-all-sessions operations."},
	{ID: authkit.MetricRoleAssigned, Name: "authkit_role_assigned_total", Help: "Role grants."},
	{ID: authkit.MetricRoleRemoved, Name: "authkit_role_removed_total", Help: "Role removals."},
}

// HistogramDefs is the shared histogram catalogue.
var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricLoginLatency, Name: "authkit_login_latency_seconds", Help: "Login latency histogram."},
}

// HistogramBounds are the upper bucket bounds in seconds, Prometheus spelling.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix spells the same bounds as metric-name-safe suffixes.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw bucket slice to the fixed width.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form both
// exposition formats expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
