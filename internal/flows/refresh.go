package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/session"
)

// RefreshFailureKind classifies refresh failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissing
	RefreshFailureDecode
	RefreshFailureBusy
	RefreshFailureReuse
	RefreshFailureSessionNotFound
	RefreshFailureSubjectNotFound
	RefreshFailureStore
	RefreshFailureLookup
	RefreshFailureMint
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure      RefreshFailureKind
	Err          error
	SubjectID    string
	Subject      Subject
	DeviceID     string
	AccessToken  string
	RefreshToken string

	// Revoked counts sibling sessions retired in response to a reuse event.
	Revoked int
}

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	ParseRefresh          func(string) error
	FindByID              func(context.Context, string) (Subject, bool, error)
	MintAccess            func(Subject) (string, error)
	MintRefresh           func() (string, error)
	ClientIPFromContext   func(context.Context) string
	Acquire               AcquireFunc
	SessionStore          SessionStore
	RevokeSiblingsOnReuse bool
	Warn                  func(string, error)
}

// RunRefresh rotates refreshToken and issues a fresh access token.
//
// The tombstone is consulted before the session record: a retired token no longer
// has a record, so checking the record first would report it as unknown and the
// reuse would go unnoticed.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	if refreshToken == "" {
		return RefreshResult{Failure: RefreshFailureMissing, Err: errors.New("refresh token missing")}
	}
	if err := deps.ParseRefresh(refreshToken); err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}

	release, ok, err := lockToken(ctx, deps.Acquire, refreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureStore, Err: err}
	}
	if !ok {
		return RefreshResult{Failure: RefreshFailureBusy, Err: errors.New("refresh already in progress")}
	}
	defer release()

	if res, reused := checkReuse(ctx, refreshToken, deps.SessionStore, deps.RevokeSiblingsOnReuse, deps.Warn); reused {
		return res
	}

	data, found, err := deps.SessionStore.GetSession(ctx, refreshToken)
	if err != nil {
		return storeFailure(err)
	}
	if !found {
		return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: session.ErrNotFound}
	}

	subject, found, err := deps.FindByID(ctx, data.Sub)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureLookup, Err: err, SubjectID: data.Sub}
	}
	if !found {
		if delErr := deps.SessionStore.DeleteSession(ctx, refreshToken, data.Sub); delErr != nil && deps.Warn != nil {
			deps.Warn("orphaned session cleanup failed", delErr)
		}
		return RefreshResult{Failure: RefreshFailureSubjectNotFound, Err: errors.New("session subject no longer exists"), SubjectID: data.Sub}
	}

	access, err := deps.MintAccess(subject)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureMint, Err: err, SubjectID: subject.ID}
	}
	next, err := deps.MintRefresh()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureMint, Err: err, SubjectID: subject.ID}
	}

	nextData := session.Data{
		Sub:      subject.ID,
		Name:     subject.Name,
		Role:     subject.Role,
		IP:       deps.ClientIPFromContext(ctx),
		DeviceID: data.DeviceID,
	}
	if err := deps.SessionStore.Rotate(ctx, refreshToken, next, nextData); err != nil {
		res := storeFailure(err)
		res.SubjectID = subject.ID
		return res
	}

	return RefreshResult{
		Failure:      RefreshFailureNone,
		SubjectID:    subject.ID,
		Subject:      subject,
		DeviceID:     data.DeviceID,
		AccessToken:  access,
		RefreshToken: next,
	}
}

// checkReuse reports a reuse result when token is tombstoned, revoking the
// subject's other sessions when revoke is set and the subject is known.
func checkReuse(ctx context.Context, token string, store SessionStore, revoke bool, warn func(string, error)) (RefreshResult, bool) {
	sub, reused, err := store.ReusedBy(ctx, token)
	if err != nil {
		return storeFailure(err), true
	}
	if !reused {
		return RefreshResult{}, false
	}
	res := RefreshResult{Failure: RefreshFailureReuse, Err: session.ErrReused, SubjectID: sub}
	if revoke && sub != "" {
		n, err := store.RevokeAll(ctx, sub)
		if err != nil && warn != nil {
			warn("sibling revocation after reuse failed", err)
		}
		res.Revoked = n
	}
	return res, true
}

// storeFailure maps session manager errors. Races lost inside Rotate surface as
// ErrReused or ErrNotFound and are reported like their upfront counterparts.
func storeFailure(err error) RefreshResult {
	switch {
	case errors.Is(err, session.ErrReused):
		return RefreshResult{Failure: RefreshFailureReuse, Err: err}
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrCorrupt):
		return RefreshResult{Failure: RefreshFailureSessionNotFound, Err: err}
	default:
		return RefreshResult{Failure: RefreshFailureStore, Err: err}
	}
}
