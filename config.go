package goSession

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/password"
)

// Config defines a public type used by goSession APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT         JWTConfig
	Session     SessionConfig
	Password    PasswordConfig
	Security    SecurityConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
	DefaultRole Role
}

/*
====================================
TOKENS
====================================
*/

// JWTConfig controls the token codec.
type JWTConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secret     []byte // HS256, at least 32 bytes
	Issuer     string
	Leeway     time.Duration

	// KeyID and VerifySecrets allow the secret to be rotated; see jwt.Config.
	KeyID         string
	VerifySecrets map[string][]byte
}

// SessionConfig controls server-side session storage.
type SessionConfig struct {
	// TombstoneGrace keeps retired-token markers this long past RefreshTTL.
	TombstoneGrace time.Duration
}

// PasswordConfig mirrors password.Config for the built-in Argon2id hasher.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	MaxLength   int
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds reuse and concurrency hardening switches.
type SecurityConfig struct {
	// RevokeSiblingsOnReuse retires every session of a subject when one of its
	// retired refresh tokens is presented again.
	RevokeSiblingsOnReuse bool

	// SingleFlightRefresh serializes refresh and logout per token value using the
	// Locker given to the builder. Requests that lose the race fail as invalid tokens.
	SingleFlightRefresh bool
	LockTTL             time.Duration
}

// AuditConfig defines a public type used by goSession APIs.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by goSession APIs.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the production defaults. JWT.Secret is left empty and must be set.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Session: SessionConfig{
			TombstoneGrace: 5 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      pw.Memory,
			Time:        pw.Time,
			Parallelism: pw.Parallelism,
			SaltLength:  pw.SaltLength,
			KeyLength:   pw.KeyLength,
			MinLength:   pw.MinLength,
			MaxLength:   pw.MaxLength,
		},
		Security: SecurityConfig{
			RevokeSiblingsOnReuse: true,
			SingleFlightRefresh:   false,
			LockTTL:               5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		DefaultRole: RoleUser,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	if cfg.JWT.VerifySecrets != nil {
		out.JWT.VerifySecrets = make(map[string][]byte, len(cfg.JWT.VerifySecrets))
		for kid, secret := range cfg.JWT.VerifySecrets {
			out.JWT.VerifySecrets[kid] = cloneBytes(secret)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c PasswordConfig) argon2() password.Config {
	return password.Config{
		Memory:      c.Memory,
		Time:        c.Time,
		Parallelism: c.Parallelism,
		SaltLength:  c.SaltLength,
		KeyLength:   c.KeyLength,
		MinLength:   c.MinLength,
		MaxLength:   c.MaxLength,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must exceed AccessTTL")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be within [0, 2m]")
	}

	if c.Session.TombstoneGrace < c.JWT.Leeway {
		return errors.New("Session TombstoneGrace must be >= JWT Leeway")
	}

	if err := c.Password.argon2().Validate(); err != nil {
		return fmt.Errorf("Password: %w", err)
	}

	if c.Security.SingleFlightRefresh && c.Security.LockTTL <= 0 {
		return errors.New("Security LockTTL must be > 0 when SingleFlightRefresh is true")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	if !c.DefaultRole.Valid() {
		return fmt.Errorf("DefaultRole %q is not a known role", c.DefaultRole)
	}
	return nil
}
