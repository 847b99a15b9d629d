package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goSession/session"
)

// LoginFailureKind classifies login failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureInvalidInput
	LoginFailureCredentials
	LoginFailureLookup
	LoginFailureVerify
	LoginFailureMint
	LoginFailureSession
)

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure      LoginFailureKind
	Err          error
	Subject      Subject
	DeviceID     string
	AccessToken  string
	RefreshToken string
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	FindByEmail         func(context.Context, string) (Subject, bool, error)
	VerifyPassword      func(plain, digest string) (bool, error)
	MintAccess          func(Subject) (string, error)
	MintRefresh         func() (string, error)
	NewDeviceID         func() string
	ClientIPFromContext func(context.Context) string
	SessionStore        SessionStore

	// DummyDigest is verified against when the email is unknown so both failure
	// paths cost one hash verification.
	DummyDigest string
}

var errBadCredentials = errors.New("credentials rejected")

// RunLogin verifies credentials, mints a token pair and opens a session for a new device.
func RunLogin(ctx context.Context, email, password string, deps LoginDeps) LoginResult {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return LoginResult{Failure: LoginFailureInvalidInput, Err: errors.New("email and password are required")}
	}

	subject, found, err := deps.FindByEmail(ctx, email)
	if err != nil {
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}
	if !found {
		if deps.DummyDigest != "" {
			_, _ = deps.VerifyPassword(password, deps.DummyDigest)
		}
		return LoginResult{Failure: LoginFailureCredentials, Err: errBadCredentials}
	}

	ok, err := deps.VerifyPassword(password, subject.PasswordHash)
	if err != nil {
		return LoginResult{Failure: LoginFailureVerify, Err: err, Subject: subject}
	}
	if !ok {
		return LoginResult{Failure: LoginFailureCredentials, Err: errBadCredentials, Subject: subject}
	}

	access, err := deps.MintAccess(subject)
	if err != nil {
		return LoginResult{Failure: LoginFailureMint, Err: err, Subject: subject}
	}
	refresh, err := deps.MintRefresh()
	if err != nil {
		return LoginResult{Failure: LoginFailureMint, Err: err, Subject: subject}
	}

	deviceID := deps.NewDeviceID()
	data := session.Data{
		Sub:      subject.ID,
		Name:     subject.Name,
		Role:     subject.Role,
		IP:       deps.ClientIPFromContext(ctx),
		DeviceID: deviceID,
	}
	if err := deps.SessionStore.CreateSession(ctx, refresh, data); err != nil {
		return LoginResult{Failure: LoginFailureSession, Err: err, Subject: subject}
	}

	return LoginResult{
		Failure:      LoginFailureNone,
		Subject:      subject,
		DeviceID:     deviceID,
		AccessToken:  access,
		RefreshToken: refresh,
	}
}
