package authkit

import "fmt"

// Error is the caller-facing failure type for every authentication operation.
// Code is a stable machine-readable identifier that API clients branch on;
// Message is the human-readable explanation and may vary between instances
// carrying the same Code (for example the remaining-lockout hint).
//
// errors.Is matches two *Error values by Code, so dynamically built errors
// still compare equal to the exported sentinels.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports Code equality so sentinel comparison works through errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Stable error codes. These are part of the wire contract with API clients.
const (
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeWeakPassword       = "WEAK_PASSWORD"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeUserNotFound       = "USER_NOT_FOUND"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeAccountLocked      = "ACCOUNT_LOCKED"
	CodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	CodeAccountNotActive   = "ACCOUNT_NOT_ACTIVE"
	CodeMFARequired        = "MFA_REQUIRED"
	CodeInvalidMFACode     = "INVALID_MFA_CODE"
	CodeInvalidRefresh     = "INVALID_REFRESH_TOKEN"
	CodeTokenReuseDetected = "TOKEN_REUSE_DETECTED"
	CodePasswordChanged    = "PASSWORD_CHANGED"
	CodeInvalidPassword    = "INVALID_PASSWORD"
	CodeRoleNotFound       = "ROLE_NOT_FOUND"
	CodeLastRole           = "LAST_ROLE"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
)

var (
	// ErrEmailExists is returned by Register when the email is already taken.
	ErrEmailExists = &Error{Code: CodeEmailExists, Message: "email already registered"}
	// ErrWeakPassword is returned when a password fails the strength policy.
	ErrWeakPassword = &Error{Code: CodeWeakPassword, Message: "password too weak"}
	// ErrInvalidToken is returned for unknown, used, or expired one-time tokens.
	ErrInvalidToken = &Error{Code: CodeInvalidToken, Message: "invalid or expired token"}
	// ErrUserNotFound is returned when the referenced user does not exist.
	ErrUserNotFound = &Error{Code: CodeUserNotFound, Message: "user not found"}
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// the two cases are indistinguishable to the caller.
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials, Message: "invalid email or password"}
	// ErrAccountLocked is returned while the lockout window is still open.
	ErrAccountLocked = &Error{Code: CodeAccountLocked, Message: "account locked"}
	// ErrEmailNotVerified is returned for logins against pending accounts.
	ErrEmailNotVerified = &Error{Code: CodeEmailNotVerified, Message: "please verify your email address"}
	// ErrAccountNotActive is returned on refresh when the account has left the
	// active state.
	ErrAccountNotActive = &Error{Code: CodeAccountNotActive, Message: "user account not active"}
	// ErrMFARequired signals the client to prompt for an OTP without
	// re-asking for the password.
	ErrMFARequired = &Error{Code: CodeMFARequired, Message: "mfa code required"}
	// ErrInvalidMFACode is returned when neither TOTP nor a backup code matched.
	ErrInvalidMFACode = &Error{Code: CodeInvalidMFACode, Message: "invalid mfa code"}
	// ErrInvalidRefreshToken is the generic refresh failure.
	ErrInvalidRefreshToken = &Error{Code: CodeInvalidRefresh, Message: "invalid or expired refresh token"}
	// ErrTokenReuseDetected is returned when an already-rotated refresh token
	// is presented again; the whole token family has been revoked.
	ErrTokenReuseDetected = &Error{Code: CodeTokenReuseDetected, Message: "token reuse detected, all sessions revoked for security"}
	// ErrPasswordChanged fences tokens issued before a password change.
	ErrPasswordChanged = &Error{Code: CodePasswordChanged, Message: "token invalidated due to password change"}
	// ErrInvalidPassword is returned by re-verification steps (MFA disable).
	ErrInvalidPassword = &Error{Code: CodeInvalidPassword, Message: "invalid password"}
	// ErrRoleNotFound is returned for unknown role codes in admin operations.
	ErrRoleNotFound = &Error{Code: CodeRoleNotFound, Message: "role not found"}
	// ErrLastRole rejects removal of a user's only remaining role.
	ErrLastRole = &Error{Code: CodeLastRole, Message: "cannot remove a user's last role"}
	// ErrSessionNotFound is returned when revoking an unknown session id.
	ErrSessionNotFound = &Error{Code: CodeSessionNotFound, Message: "session not found"}
)

func lockedError(remainingMinutes int) *Error {
	return &Error{
		Code:    CodeAccountLocked,
		Message: fmt.Sprintf("account locked, try again in %d minutes", remainingMinutes),
	}
}

func weakPasswordError(reasons []string) *Error {
	if len(reasons) == 0 {
		return ErrWeakPassword
	}
	msg := "password too weak: " + reasons[0]
	for _, r := range reasons[1:] {
		msg += ", " + r
	}
	return &Error{Code: CodeWeakPassword, Message: msg}
}
