// Package httpapi exposes an [Authenticator] over HTTP with gin.
//
// Routes live under /api/v1/auth. The refresh token travels only in the
// HttpOnly refresh_token cookie; access tokens are returned in the body and
// accepted as bearer credentials on /me. Errors are rendered through
// [goSession.PublicError] as {"success":false,"message":...}.
package httpapi
