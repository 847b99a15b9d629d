// Package config loads gosession-server settings from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store backends.
const (
	StoreMemory    = "memory"
	StoreRedis     = "redis"
	StoreMiniredis = "miniredis"
)

// Config holds process configuration.
type Config struct {
	// HTTPAddr is the listen address (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// Secret is the HS256 signing secret, at least 32 bytes.
	Secret     string        `mapstructure:"SECRET"`
	AccessTTL  time.Duration `mapstructure:"ACCESS_TTL"`
	RefreshTTL time.Duration `mapstructure:"REFRESH_TTL"`

	// StoreBackend selects memory, redis or miniredis (in-process Redis for local runs).
	StoreBackend  string `mapstructure:"STORE_BACKEND"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	// DatabaseURL is the Postgres DSN. Empty keeps users in memory.
	DatabaseURL string `mapstructure:"DB_URL"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	Env      string `mapstructure:"APP_ENV"`

	CookieSecure   bool   `mapstructure:"COOKIE_SECURE"`
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// KafkaBrokers is a comma-separated broker list; audit events go to
	// AuditTopic when it is set.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	AuditTopic   string `mapstructure:"AUDIT_TOPIC"`

	SingleFlightRefresh   bool `mapstructure:"SINGLE_FLIGHT_REFRESH"`
	RevokeSiblingsOnReuse bool `mapstructure:"REVOKE_SIBLINGS_ON_REUSE"`
}

// Load reads envFiles (default ".env") when present, then builds Config from
// the environment. Variables already set in the environment win over the files.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("SECRET", "")
	v.SetDefault("ACCESS_TTL", "15m")
	v.SetDefault("REFRESH_TTL", "720h")
	v.SetDefault("STORE_BACKEND", StoreMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "gs")
	v.SetDefault("DB_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_TOPIC", "")
	v.SetDefault("SINGLE_FLIGHT_REFRESH", false)
	v.SetDefault("REVOKE_SIBLINGS_ON_REUSE", true)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if len(c.Secret) < 32 {
		return errors.New("config: SECRET must be at least 32 bytes")
	}
	switch c.StoreBackend {
	case StoreMemory, StoreMiniredis:
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("config: REDIS_ADDR must be set for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.Env == "production" && !c.CookieSecure {
		return errors.New("config: COOKIE_SECURE must be true when APP_ENV=production")
	}
	return nil
}

// Engine maps the process settings onto library defaults.
func (c *Config) Engine() goSession.Config {
	cfg := goSession.DefaultConfig()
	cfg.JWT.Secret = []byte(c.Secret)
	if c.AccessTTL > 0 {
		cfg.JWT.AccessTTL = c.AccessTTL
	}
	if c.RefreshTTL > 0 {
		cfg.JWT.RefreshTTL = c.RefreshTTL
	}
	cfg.Security.SingleFlightRefresh = c.SingleFlightRefresh
	cfg.Security.RevokeSiblingsOnReuse = c.RevokeSiblingsOnReuse
	cfg.Audit.Enabled = c.AuditEnabled()
	return cfg
}

// AuditEnabled reports whether a Kafka audit sink should be built.
func (c *Config) AuditEnabled() bool {
	return c.AuditTopic != "" && len(c.KafkaBrokerList()) > 0
}

// KafkaBrokerList splits KafkaBrokers on commas.
func (c *Config) KafkaBrokerList() []string {
	return splitList(c.KafkaBrokers)
}

// TrustedProxyList splits TrustedProxies on commas. Empty means none.
func (c *Config) TrustedProxyList() []string {
	return splitList(c.TrustedProxies)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
