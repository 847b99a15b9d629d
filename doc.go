// Package goSession issues short-lived access tokens and long-lived refresh tokens,
// rotates refresh tokens on every renewal, and detects refresh-token reuse.
//
// # Quick start
//
//	engine, err := goSession.New().
//		WithConfig(cfg).
//		WithStore(cache.NewRedis(rdb, "gs")).
//		WithUserDirectory(dir).
//		WithLogger(logger).
//		Build()
//
//	resp, err := engine.Login(ctx, goSession.LoginInput{Email: email, Password: pw})
//	resp, err = engine.Refresh(ctx, resp.RefreshToken)
//	ack, err := engine.Logout(ctx, resp.RefreshToken)
//
// # Refresh token lifecycle
//
// Each refresh token is usable exactly once, by Refresh (which rotates it) or by
// Logout. Presenting it a second time is treated as theft: the call fails with
// [ErrTokenInvalid] wrapping [ErrTokenReused], and with
// SecurityConfig.RevokeSiblingsOnReuse every session of the subject is retired.
//
// Two concurrent refreshes of the same token can both pass the reuse check before
// either retires the token. SecurityConfig.SingleFlightRefresh closes that window
// with a short per-token lock (see cache.Locker).
//
// # Errors
//
// All client-visible failures are sentinel errors from errors.go. [PublicError]
// turns them into an HTTP status and a message that does not reveal which check
// failed.
//
// # Architecture boundaries
//
// The engine does not store users or speak HTTP. Users come from a [UserDirectory]
// (see package directory) and transports live in transport/httpapi and middleware.
package goSession
