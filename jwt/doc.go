// Package jwt mints and verifies the signed, expiring claim sets used as access and refresh
// tokens. Every token is an HS256 JWT signed with a process-wide shared secret.
//
// The package is pure: it performs no I/O and holds no mutable state after [NewManager].
// Verification failures are reported as one of [ErrExpired], [ErrMalformed] or [ErrUntrusted];
// callers reject the credential in all three cases and may log the distinction.
package jwt
