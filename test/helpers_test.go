//go:build integration
// +build integration

package test

import (
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/cache"
	"github.com/MrEthical07/goSession/directory"
	"github.com/redis/go-redis/v9"
)

const integrationPrefix = "gs-it"

func integrationConfig() goSession.Config {
	cfg := goSession.DefaultConfig()
	cfg.JWT.Secret = []byte("integration-secret-integration-32")
	cfg.JWT.AccessTTL = time.Minute
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.MinLength = 1
	return cfg
}

// newIntegrationEngine builds an engine over rdb with one registered user.
func newIntegrationEngine(t *testing.T, rdb redis.UniversalClient, cfg goSession.Config) *goSession.Engine {
	t.Helper()

	engine, err := goSession.New().
		WithConfig(cfg).
		WithStore(cache.NewRedis(rdb, integrationPrefix)).
		WithLocker(cache.NewRedisLocker(rdb, integrationPrefix)).
		WithUserDirectory(directory.NewMemory()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.Register(t.Context(), goSession.RegisterInput{
		Name:     "Ada",
		Email:    "ada@example.com",
		Password: "pw",
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return engine
}

func login(t *testing.T, engine *goSession.Engine) *goSession.AuthResponse {
	t.Helper()
	resp, err := engine.Login(t.Context(), goSession.LoginInput{Email: "ada@example.com", Password: "pw"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return resp
}
