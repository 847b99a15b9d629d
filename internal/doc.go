// Package internal holds helpers private to goSession.
//
// # Sub-packages
//
//   - flows: pure orchestration of login, refresh, logout, register and access validation
//   - config: process configuration for cmd/gosession-server
//   - logging: zap logger construction
package internal
