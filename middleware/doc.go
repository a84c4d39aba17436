// Package middleware exposes HTTP adapters over authkit token validation.
//
// # Guards
//
//   - [RequireAuth] — bearer access-token verification.
//   - [RequireRole] — RequireAuth plus a role membership check.
//
// Each guard reads the Authorization header, calls Service.Authenticate, and
// injects the verified identity into the request context.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Service calls. It does NOT
// implement authentication logic itself.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Touch the persistence stores.
//   - Make authorization decisions beyond pass/reject from the Service.
package middleware
