package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

// Lower bounds accepted both for configuration and for parsed hashes.
const (
	floorMemoryKB   = 8 * 1024
	floorSaltLength = 16
	floorKeyLength  = 16
)

var (
	// ErrTooShort is returned by Hash when the password is below Config.MinLength bytes.
	ErrTooShort = errors.New("password too short")
	// ErrTooLong is returned by Hash and Verify when the password exceeds Config.MaxLength bytes.
	ErrTooLong = errors.New("password too long")
	// ErrInvalidHash is returned when a stored digest is not a supported PHC string.
	ErrInvalidHash = errors.New("invalid password hash")
)

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// MinLength is the minimum password length in bytes accepted by Hash. Zero disables the check.
	MinLength int

	// MaxLength caps the bytes fed to Argon2 on both Hash and Verify. Zero means 1024.
	MaxLength int
}

const defaultMaxLength = 1024

// DefaultConfig returns the OWASP-recommended Argon2id profile (64 MiB, t=3, p=2).
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
		MaxLength:   defaultMaxLength,
	}
}

// Validate checks that the parameters are strong enough to be useful.
func (c Config) Validate() error {
	switch {
	case c.Memory < floorMemoryKB:
		return fmt.Errorf("password: memory must be >= %d KiB", floorMemoryKB)
	case c.Time < 1:
		return errors.New("password: time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password: parallelism must be >= 1")
	case c.SaltLength < floorSaltLength:
		return fmt.Errorf("password: salt length must be >= %d", floorSaltLength)
	case c.KeyLength < floorKeyLength:
		return fmt.Errorf("password: key length must be >= %d", floorKeyLength)
	case c.MinLength < 0 || c.MaxLength < 0:
		return errors.New("password: length limits must not be negative")
	case c.MaxLength > 0 && c.MaxLength < c.MinLength:
		return errors.New("password: max length below min length")
	}
	return nil
}

// Argon2 hashes passwords with a fixed parameter set. It is safe for concurrent use.
type Argon2 struct {
	cfg Config
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = defaultMaxLength
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash returns the PHC encoding of plain under a fresh random salt.
// Bytes are used exactly as given; no Unicode normalization is applied.
func (a *Argon2) Hash(plain string) (string, error) {
	if len(plain) < a.cfg.MinLength {
		return "", fmt.Errorf("%w: need at least %d bytes", ErrTooShort, a.cfg.MinLength)
	}
	if len(plain) > a.cfg.MaxLength {
		return "", ErrTooLong
	}
	salt := make([]byte, a.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	p := phc{
		memory:      a.cfg.Memory,
		time:        a.cfg.Time,
		parallelism: a.cfg.Parallelism,
		salt:        salt,
	}
	p.key = p.derive(plain, a.cfg.KeyLength)
	return p.String(), nil
}

// Verify reports whether plain matches digest. A malformed digest is an error, a
// mismatch is not.
func (a *Argon2) Verify(plain, digest string) (bool, error) {
	if len(plain) > a.cfg.MaxLength {
		return false, ErrTooLong
	}
	p, err := parsePHC(digest)
	if err != nil {
		return false, err
	}
	got := p.derive(plain, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(got, p.key) == 1, nil
}

// NeedsUpgrade reports whether digest was produced with weaker costs than the
// configured ones, or a different key length.
func (a *Argon2) NeedsUpgrade(digest string) (bool, error) {
	p, err := parsePHC(digest)
	if err != nil {
		return false, err
	}
	weaker := p.memory < a.cfg.Memory || p.time < a.cfg.Time || p.parallelism < a.cfg.Parallelism
	return weaker || uint32(len(p.key)) != a.cfg.KeyLength, nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (p phc) derive(plain string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(plain), p.salt, p.time, p.memory, p.parallelism, keyLen)
}

func (p phc) String() string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version, p.memory, p.time, p.parallelism,
		enc.EncodeToString(p.salt), enc.EncodeToString(p.key))
}

func parsePHC(digest string) (phc, error) {
	fields := strings.Split(digest, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != algorithmID {
		return phc{}, fmt.Errorf("%w: not an argon2id PHC string", ErrInvalidHash)
	}
	if fields[2] != "v="+strconv.Itoa(argon2.Version) {
		return phc{}, fmt.Errorf("%w: unsupported version %q", ErrInvalidHash, fields[2])
	}

	var p phc
	if err := p.parseParams(fields[3]); err != nil {
		return phc{}, err
	}

	var err error
	if p.salt, err = decodeB64(fields[4]); err != nil || len(p.salt) < floorSaltLength {
		return phc{}, fmt.Errorf("%w: bad salt", ErrInvalidHash)
	}
	if p.key, err = decodeB64(fields[5]); err != nil || len(p.key) == 0 {
		return phc{}, fmt.Errorf("%w: bad key", ErrInvalidHash)
	}
	return p, nil
}

func (p *phc) parseParams(s string) error {
	seen := map[string]bool{}
	for _, pair := range strings.Split(s, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return fmt.Errorf("%w: bad parameter %q", ErrInvalidHash, pair)
		}
		seen[name] = true

		bits := 32
		if name == "p" {
			bits = 8
		}
		v, err := strconv.ParseUint(raw, 10, bits)
		if err != nil || v == 0 {
			return fmt.Errorf("%w: bad parameter %q", ErrInvalidHash, pair)
		}
		switch name {
		case "m":
			if v < floorMemoryKB {
				return fmt.Errorf("%w: memory below floor", ErrInvalidHash)
			}
			p.memory = uint32(v)
		case "t":
			p.time = uint32(v)
		case "p":
			p.parallelism = uint8(v)
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrInvalidHash, name)
		}
	}
	if len(seen) != 3 {
		return fmt.Errorf("%w: missing parameters", ErrInvalidHash)
	}
	return nil
}

// decodeB64 accepts both padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
