// Package session owns the server-side refresh-session lifecycle: creation, lookup,
// rotation, logout and reuse detection, on top of a [cache.Repository].
//
// # Key scheme
//
//	refresh_token:<token>                 JSON session record
//	used_refresh_token:<token>            tombstone (value: subject id)
//	user_sessions:<subject>:<device_id>   current refresh token for that device
//
// A refresh token moves through ISSUED then RETIRED (tombstoned) exactly once, via
// rotation or logout. Tombstones are written before anything is removed, so an
// interrupted rotation can only leave the user signed out, never with two usable tokens.
//
// # What this package must NOT do
//
//   - Verify token signatures or expiry (that belongs to package jwt).
//   - Decide whether a reuse event should revoke sibling sessions.
package session
