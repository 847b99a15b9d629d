package jwt

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

var (
	// ErrExpired is returned when the current time is past the embedded expiry.
	ErrExpired = errors.New("token expired")
	// ErrMalformed is returned when the token cannot be parsed or its signature is invalid.
	ErrMalformed = errors.New("token malformed")
	// ErrUntrusted is returned for every other verification failure.
	ErrUntrusted = errors.New("token untrusted")
)

const minSecretBytes = 32

// Clock returns the current time. Tokens are minted and verified against it.
type Clock func() time.Time

// Config defines the codec parameters.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Secret     []byte
	Issuer     string
	Leeway     time.Duration

	// KeyID is stamped into the "kid" header of minted tokens. When VerifySecrets is set,
	// tokens are verified with the secret registered under their kid, which allows the
	// signing secret to be rotated without invalidating outstanding tokens.
	KeyID         string
	VerifySecrets map[string][]byte
	Clock         Clock
}

// Claims is implemented by claim sets the [Manager] can sign.
type Claims interface {
	gjwt.Claims
	registered() *gjwt.RegisteredClaims
}

// AccessClaims is the payload of a short-lived access token.
type AccessClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	gjwt.RegisteredClaims
}

func (c *AccessClaims) registered() *gjwt.RegisteredClaims { return &c.RegisteredClaims }

// RefreshClaims is the payload of a long-lived refresh token. It carries no subject:
// the subject lives in the server-side session record.
type RefreshClaims struct {
	gjwt.RegisteredClaims
}

func (c *RefreshClaims) registered() *gjwt.RegisteredClaims { return &c.RegisteredClaims }

// Manager signs and verifies tokens.
//
// Manager instances are immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
	parser *gjwt.Parser
}

// NewManager validates cfg and returns a ready codec.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("hs256 secret must be at least %d bytes", minSecretBytes)
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	for kid, secret := range cfg.VerifySecrets {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify secret map contains empty kid")
		}
		if len(secret) < minSecretBytes {
			return nil, fmt.Errorf("verify secret for kid %q is too short", kid)
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifySecrets) > 0 {
		if _, ok := cfg.VerifySecrets[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifySecrets")
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	cfg.Secret = append([]byte(nil), cfg.Secret...)

	options := []gjwt.ParserOption{
		gjwt.WithValidMethods([]string{gjwt.SigningMethodHS256.Alg()}),
		gjwt.WithExpirationRequired(),
		gjwt.WithTimeFunc(cfg.Clock),
	}
	if cfg.Leeway > 0 {
		options = append(options, gjwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, gjwt.WithIssuer(cfg.Issuer))
	}

	return &Manager{config: cfg, parser: gjwt.NewParser(options...)}, nil
}

// AccessTTL reports the configured access-token lifetime.
func (j *Manager) AccessTTL() time.Duration { return j.config.AccessTTL }

// RefreshTTL reports the configured refresh-token lifetime.
func (j *Manager) RefreshTTL() time.Duration { return j.config.RefreshTTL }

// Mint stamps claims with iat, exp = now + ttl and a fresh ULID jti, then signs them.
// Any registered time fields already present on claims are overwritten.
func (j *Manager) Mint(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("invalid token ttl")
	}
	now := j.config.Clock()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}

	rc := claims.registered()
	rc.IssuedAt = gjwt.NewNumericDate(now)
	rc.ExpiresAt = gjwt.NewNumericDate(now.Add(ttl))
	rc.ID = id.String()
	if j.config.Issuer != "" {
		rc.Issuer = j.config.Issuer
	}

	token := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	if j.config.KeyID != "" {
		token.Header["kid"] = j.config.KeyID
	}
	return token.SignedString(j.config.Secret)
}

// MintAccess signs an access token for the given subject.
func (j *Manager) MintAccess(subject, name, role string) (string, error) {
	if subject == "" {
		return "", errors.New("access token requires a subject")
	}
	claims := &AccessClaims{
		Name:             name,
		Role:             role,
		RegisteredClaims: gjwt.RegisteredClaims{Subject: subject},
	}
	return j.Mint(claims, j.config.AccessTTL)
}

// MintRefresh signs a refresh token. Its only meaningful payload is the expiry.
func (j *Manager) MintRefresh() (string, error) {
	return j.Mint(&RefreshClaims{}, j.config.RefreshTTL)
}

// Verify checks the signature and expiry of token and decodes it into claims.
func (j *Manager) Verify(token string, claims Claims) error {
	_, err := j.parser.ParseWithClaims(token, claims, j.keyFunc)
	if err != nil {
		return classify(err)
	}
	return nil
}

// ParseAccess verifies an access token and returns its claims.
func (j *Manager) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := j.Verify(token, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: access token without subject", ErrUntrusted)
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token and returns its claims.
func (j *Manager) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := j.Verify(token, claims); err != nil {
		return nil, err
	}
	if claims.Subject != "" {
		return nil, fmt.Errorf("%w: access token presented as refresh token", ErrUntrusted)
	}
	return claims, nil
}

func (j *Manager) keyFunc(t *gjwt.Token) (interface{}, error) {
	if t.Method.Alg() != gjwt.SigningMethodHS256.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}

	if len(j.config.VerifySecrets) > 0 {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		secret, ok := j.config.VerifySecrets[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return secret, nil
	}

	if j.config.KeyID != "" {
		kid, _ := t.Header["kid"].(string)
		if kid != j.config.KeyID {
			return nil, errors.New("unknown kid")
		}
	}

	return j.config.Secret, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, gjwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrExpired, err)
	case errors.Is(err, gjwt.ErrTokenMalformed),
		errors.Is(err, gjwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %v", ErrUntrusted, err)
	}
}
