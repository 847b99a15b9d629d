package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/session"
)

// LogoutFailureKind classifies logout failures for root-level mapping.
type LogoutFailureKind int

const (
	LogoutFailureNone LogoutFailureKind = iota
	LogoutFailureMissing
	LogoutFailureBusy
	LogoutFailureReuse
	LogoutFailureSessionNotFound
	LogoutFailureStore
)

// LogoutResult reports the outcome of a logout.
type LogoutResult struct {
	Failure   LogoutFailureKind
	Err       error
	SubjectID string
	DeviceID  string
}

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Acquire      AcquireFunc
	SessionStore SessionStore
}

// RunLogout retires refreshToken. The token signature is not checked: an unknown,
// malformed or retired token all fail the same way, so nothing is learned about which.
func RunLogout(ctx context.Context, refreshToken string, deps LogoutDeps) LogoutResult {
	if refreshToken == "" {
		return LogoutResult{Failure: LogoutFailureMissing, Err: errors.New("refresh token missing")}
	}

	release, ok, err := lockToken(ctx, deps.Acquire, refreshToken)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureStore, Err: err}
	}
	if !ok {
		return LogoutResult{Failure: LogoutFailureBusy, Err: errors.New("logout already in progress")}
	}
	defer release()

	sub, reused, err := deps.SessionStore.ReusedBy(ctx, refreshToken)
	if err != nil {
		return LogoutResult{Failure: LogoutFailureStore, Err: err}
	}
	if reused {
		return LogoutResult{Failure: LogoutFailureReuse, Err: session.ErrReused, SubjectID: sub}
	}

	data, found, err := deps.SessionStore.GetSession(ctx, refreshToken)
	switch {
	case errors.Is(err, session.ErrCorrupt):
		return LogoutResult{Failure: LogoutFailureSessionNotFound, Err: err}
	case err != nil:
		return LogoutResult{Failure: LogoutFailureStore, Err: err}
	case !found:
		return LogoutResult{Failure: LogoutFailureSessionNotFound, Err: session.ErrNotFound}
	}

	if err := deps.SessionStore.DeleteSession(ctx, refreshToken, data.Sub); err != nil {
		return LogoutResult{Failure: LogoutFailureStore, Err: err, SubjectID: data.Sub}
	}
	return LogoutResult{Failure: LogoutFailureNone, SubjectID: data.Sub, DeviceID: data.DeviceID}
}
