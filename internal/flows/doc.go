// Package flows contains the request orchestration behind every Engine operation.
//
// Each RunX function takes a dependency struct and returns a result carrying a
// failure kind plus the raw error. The root package maps kinds onto its exported
// error taxonomy and emits metrics and audit events; flows do neither.
//
// # What this package must NOT do
//
//   - Hold state between calls.
//   - Import goSession (the root package imports flows).
package flows
