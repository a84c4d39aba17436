// Package authkit is the authentication and session-security core of the
// PlayCricket platform: argon2id credential hashing, JWT access tokens,
// rotating refresh tokens with reuse detection, TOTP-based MFA with backup
// codes, account lockout, role membership, and audit trailing.
//
// The package is designed for concurrent server workloads: Service methods
// are safe to call from multiple goroutines after construction through
// [New].
//
// # Architecture boundaries
//
// authkit is the public surface. It exposes [Service], [Config], the store
// collaborator interfaces ([UserStore], [RefreshTokenStore], ...), and value
// types (User, SessionInfo, MetricsSnapshot). Persistence is external:
// callers wire any implementation of the store interfaces — store/memstore,
// store/redistore, and store/pgstore ship ready-made ones. HTTP routing,
// email delivery, and QR rendering are deliberately out of scope.
//
// # Concurrency contract
//
// No in-process locks guard cross-request state. Refresh rotation is a
// single atomic operation on the [RefreshTokenStore]; when two callers race
// on the same token, exactly one rotation wins and the loser takes the
// reuse-detection path. Password hashing and TOTP verification are pure
// CPU-bound calls and are never executed while a store operation is held
// open.
package authkit
