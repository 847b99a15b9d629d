package goSession

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goSession/cache"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestIntrospectionListAfterLoginRefreshLogout(t *testing.T) {
	f := newEngineTest(t, engineTestConfig())
	f.register(t, "Ada", "a@x.com", "p")
	ctx := WithClientIP(context.Background(), "192.0.2.10")

	resp, err := f.engine.Login(ctx, LoginInput{Email: "a@x.com", Password: "p"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	list, err := f.engine.ListSessions(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 1 || list[0].IP != "192.0.2.10" || list[0].DeviceID == "" {
		t.Fatalf("unexpected sessions %+v", list)
	}
	device := list[0].DeviceID

	next, err := f.engine.Refresh(WithClientIP(context.Background(), "192.0.2.20"), resp.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	list, _ = f.engine.ListSessions(ctx, "user-1")
	if len(list) != 1 || list[0].DeviceID != device || list[0].IP != "192.0.2.20" {
		t.Fatalf("rotation must keep the device and record the new IP, got %+v", list)
	}

	if _, err := f.engine.Logout(ctx, next.RefreshToken); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	list, _ = f.engine.ListSessions(ctx, "user-1")
	if len(list) != 0 {
		t.Fatalf("expected no sessions after logout, got %+v", list)
	}

	if _, err := f.engine.ListSessions(ctx, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty subject, got %v", err)
	}
}

func TestIntrospectionRevokeAll(t *testing.T) {
	f := newEngineTest(t, engineTestConfig())
	f.register(t, "Ada", "a@x.com", "p")
	ctx := context.Background()

	a := f.login(t, "a@x.com", "p")
	f.login(t, "a@x.com", "p")

	n, err := f.engine.RevokeAll(ctx, "user-1")
	if err != nil || n != 2 {
		t.Fatalf("RevokeAll: n=%d err=%v", n, err)
	}
	if _, err := f.engine.Refresh(ctx, a.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("revoked token must read as reused, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	f := newEngineTest(t, engineTestConfig())
	if h := f.engine.Health(context.Background()); !h.StoreAvailable {
		t.Fatal("memory store must always report available")
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	engine, err := New().
		WithConfig(engineTestConfig()).
		WithStore(cache.NewRedis(rdb, "gs")).
		WithUserDirectory(newFakeDirectory()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	if h := engine.Health(context.Background()); !h.StoreAvailable {
		t.Fatal("expected redis store available")
	}
	mr.Close()
	if h := engine.Health(context.Background()); h.StoreAvailable {
		t.Fatal("expected redis store unavailable after shutdown")
	}

	var nilEngine *Engine
	if h := nilEngine.Health(context.Background()); h.StoreAvailable {
		t.Fatal("nil engine must not report healthy")
	}
}
