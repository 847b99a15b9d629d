package goSession

import (
	"context"
	"time"
)

// Role is the authorization level carried in access tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User defines a public type used by goSession APIs.
//
// User is the directory record the engine authenticates against.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
}

// CreateUserInput is passed to [UserDirectory.Create]. PasswordHash is already hashed.
type CreateUserInput struct {
	Name         string
	Email        string
	PasswordHash string
	Role         Role
}

// UserDirectory is the user store collaborator.
//
// Lookups return found=false, not an error, for absent users. Create must return an
// error wrapping [ErrDuplicateSubject] on a uniqueness violation and should run its
// writes inside a single transaction.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (User, bool, error)
	FindByID(ctx context.Context, id string) (User, bool, error)
	Exists(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, in CreateUserInput) (User, error)
}

// PasswordHasher hashes and verifies passwords. [password.Argon2] satisfies it.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) (bool, error)
}

// LoginInput holds login credentials.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterInput holds registration fields.
type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse defines a public type used by goSession APIs.
//
// The JSON form is the response body; RefreshToken and RefreshMaxAge are meant for
// the transport to place in an HTTP-only cookie and are never serialized.
type AuthResponse struct {
	AccessToken   string        `json:"access_token"`
	TokenType     string        `json:"token_type"`
	Name          string        `json:"name"`
	Role          Role          `json:"role"`
	RefreshToken  string        `json:"-"`
	RefreshMaxAge time.Duration `json:"-"`
}

// Ack is the acknowledgement body for logout and register.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AccessIdentity is the verified content of an access token.
type AccessIdentity struct {
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
	TokenID string `json:"jti"`
}

// Clock returns the current time.
type Clock func() time.Time
