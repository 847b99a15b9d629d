// Package directory provides [goSession.UserDirectory] implementations.
//
// [Memory] is a mutex-guarded map for tests and single-process deployments.
// [Postgres] stores users in a pgx pool; [Migrate] applies the embedded schema
// before first use.
package directory
