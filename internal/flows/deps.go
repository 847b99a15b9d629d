package flows

import (
	"context"

	"github.com/MrEthical07/goSession/session"
)

// Subject is the flow-local view of a directory user.
type Subject struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         string
}

// SessionStore is the slice of [session.Manager] the flows depend on.
type SessionStore interface {
	CreateSession(ctx context.Context, token string, data session.Data) error
	GetSession(ctx context.Context, token string) (session.Data, bool, error)
	ReusedBy(ctx context.Context, token string) (string, bool, error)
	Rotate(ctx context.Context, oldToken, newToken string, data session.Data) error
	DeleteSession(ctx context.Context, token, sub string) error
	RevokeAll(ctx context.Context, sub string) (int, error)
}

// AcquireFunc takes a short-lived per-token lock. ok is false when another request holds it.
type AcquireFunc func(ctx context.Context, token string) (release func(), ok bool, err error)

// Deps groups flow dependency sets. The engine builds this once at Build time.
type Deps struct {
	Login    LoginDeps
	Refresh  RefreshDeps
	Logout   LogoutDeps
	Register RegisterDeps
	Validate ValidateDeps
}

func lockToken(ctx context.Context, acquire AcquireFunc, token string) (func(), bool, error) {
	if acquire == nil {
		return func() {}, true, nil
	}
	release, ok, err := acquire(ctx, token)
	if err != nil || !ok {
		return func() {}, ok, err
	}
	return release, true, nil
}
