package goSession

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/cache"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/session"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. It is single-use.
type Builder struct {
	config Config
	store  cache.Repository
	locker cache.Locker

	directory UserDirectory
	hasher    PasswordHasher
	clock     Clock
	logger    *zap.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the session key-value store. Required.
func (b *Builder) WithStore(store cache.Repository) *Builder {
	b.store = store
	return b
}

// WithLocker sets the per-token locker used when Security.SingleFlightRefresh is on.
func (b *Builder) WithLocker(locker cache.Locker) *Builder {
	b.locker = locker
	return b
}

// WithUserDirectory sets the user store. Required.
func (b *Builder) WithUserDirectory(dir UserDirectory) *Builder {
	b.directory = dir
	return b
}

// WithPasswordHasher overrides the Argon2id hasher built from Config.Password.
func (b *Builder) WithPasswordHasher(h PasswordHasher) *Builder {
	b.hasher = h
	return b
}

// WithClock overrides time.Now for token minting and verification.
func (b *Builder) WithClock(clock Clock) *Builder {
	b.clock = clock
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit destination. Audit.Enabled must also be true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("session store required")
	}
	if b.directory == nil {
		return nil, errors.New("user directory required")
	}
	if cfg.Security.SingleFlightRefresh && b.locker == nil {
		return nil, errors.New("SingleFlightRefresh requires a locker")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// -------- TOKEN CODEC --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Secret:        cloneBytes(cfg.JWT.Secret),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		VerifySecrets: cfg.JWT.VerifySecrets,
		Clock:         jwt.Clock(clock),
	})
	if err != nil {
		return nil, err
	}

	// -------- SESSIONS --------
	sessions, err := session.NewManager(b.store, session.Config{
		TTL:            cfg.JWT.RefreshTTL,
		TombstoneGrace: cfg.Session.TombstoneGrace,
	}, logger.Named("session"))
	if err != nil {
		return nil, err
	}

	// -------- PASSWORDS --------
	hasher := b.hasher
	if hasher == nil {
		ph, err := password.NewArgon2(cfg.Password.argon2())
		if err != nil {
			return nil, err
		}
		hasher = ph
	}
	n := max(cfg.Password.MinLength, 16)
	if cfg.Password.MaxLength > 0 {
		n = min(n, cfg.Password.MaxLength)
	}
	dummy, err := hasher.Hash(strings.Repeat("x", n))
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:      cfg,
		jwt:         jm,
		sessions:    sessions,
		store:       b.store,
		directory:   b.directory,
		hasher:      hasher,
		locker:      b.locker,
		clock:       clock,
		logger:      logger,
		metrics:     NewMetrics(cfg.Metrics),
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		dummyDigest: dummy,
	}
	e.flows = e.buildFlowDeps()

	b.built = true
	return e, nil
}
