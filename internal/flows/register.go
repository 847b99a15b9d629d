package flows

import (
	"context"
	"errors"
	"net/mail"
	"strings"
)

// RegisterFailureKind classifies registration failures for root-level mapping.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureInvalidInput
	RegisterFailureDuplicate
	RegisterFailureLookup
	RegisterFailureHash
	RegisterFailureCreate
)

// RegisterRecord is what the directory receives on create.
type RegisterRecord struct {
	Name         string
	Email        string
	PasswordHash string
	Role         string
}

// RegisterResult carries the created subject or failure metadata.
type RegisterResult struct {
	Failure RegisterFailureKind
	Err     error
	Subject Subject
}

// RegisterDeps captures registration dependencies.
type RegisterDeps struct {
	Exists       func(context.Context, string) (bool, error)
	HashPassword func(string) (string, error)

	// IsPolicyError reports hash errors caused by the password itself (too short, too long).
	IsPolicyError func(error) bool
	Create        func(context.Context, RegisterRecord) (Subject, error)

	// IsDuplicate recognises the directory's uniqueness violation when two
	// registrations for one email race past Exists.
	IsDuplicate func(error) bool
	DefaultRole string
}

// RunRegister creates a subject with a hashed password and the default role.
func RunRegister(ctx context.Context, name, email, password string, deps RegisterDeps) RegisterResult {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || password == "" {
		return RegisterResult{Failure: RegisterFailureInvalidInput, Err: errors.New("name, email and password are required")}
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return RegisterResult{Failure: RegisterFailureInvalidInput, Err: errors.New("email is not a valid address")}
	}

	exists, err := deps.Exists(ctx, email)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureLookup, Err: err}
	}
	if exists {
		return RegisterResult{Failure: RegisterFailureDuplicate, Err: errors.New("email already registered")}
	}

	digest, err := deps.HashPassword(password)
	if err != nil {
		if deps.IsPolicyError != nil && deps.IsPolicyError(err) {
			return RegisterResult{Failure: RegisterFailureInvalidInput, Err: err}
		}
		return RegisterResult{Failure: RegisterFailureHash, Err: err}
	}

	subject, err := deps.Create(ctx, RegisterRecord{
		Name:         name,
		Email:        email,
		PasswordHash: digest,
		Role:         deps.DefaultRole,
	})
	if err != nil {
		if deps.IsDuplicate != nil && deps.IsDuplicate(err) {
			return RegisterResult{Failure: RegisterFailureDuplicate, Err: err}
		}
		return RegisterResult{Failure: RegisterFailureCreate, Err: err}
	}
	return RegisterResult{Failure: RegisterFailureNone, Subject: subject}
}
