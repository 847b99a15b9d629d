// Package middleware provides net/http adapters around a goSession engine.
//
// [Guard] validates the bearer access token and stores the identity in the
// request context; [RequireRole] narrows a guarded route to given roles;
// [ClientIP] stamps the caller address so session records carry it.
// None of them touch the session store.
package middleware
