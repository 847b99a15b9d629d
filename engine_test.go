package goSession

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/cache"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeDirectory struct {
	mu      sync.Mutex
	byID    map[string]User
	byEmail map[string]string
	seq     int
	failAll error
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{byID: map[string]User{}, byEmail: map[string]string{}}
}

func (d *fakeDirectory) FindByEmail(_ context.Context, email string) (User, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll != nil {
		return User{}, false, d.failAll
	}
	id, ok := d.byEmail[email]
	if !ok {
		return User{}, false, nil
	}
	return d.byID[id], true, nil
}

func (d *fakeDirectory) FindByID(_ context.Context, id string) (User, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failAll != nil {
		return User{}, false, d.failAll
	}
	u, ok := d.byID[id]
	return u, ok, nil
}

func (d *fakeDirectory) Exists(_ context.Context, email string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.byEmail[email]
	return ok, nil
}

func (d *fakeDirectory) Create(_ context.Context, in CreateUserInput) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byEmail[in.Email]; ok {
		return User{}, fmt.Errorf("create: %w", ErrDuplicateSubject)
	}
	d.seq++
	u := User{
		ID:           fmt.Sprintf("user-%d", d.seq),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		Role:         in.Role,
	}
	d.byID[u.ID] = u
	d.byEmail[u.Email] = u.ID
	return u, nil
}

func (d *fakeDirectory) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.byEmail, d.byID[id].Email)
	delete(d.byID, id)
}

func engineTestConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.AccessTTL = time.Minute
	cfg.JWT.RefreshTTL = 30 * 24 * time.Hour
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.MinLength = 1
	return cfg
}

type engineFixture struct {
	engine *Engine
	dir    *fakeDirectory
	store  *cache.Memory
	clock  *fakeClock
}

func newEngineTest(t *testing.T, cfg Config, opts ...func(*Builder)) *engineFixture {
	t.Helper()
	f := &engineFixture{
		dir:   newFakeDirectory(),
		store: cache.NewMemory(),
		clock: newFakeClock(),
	}
	b := New().
		WithConfig(cfg).
		WithStore(f.store).
		WithUserDirectory(f.dir).
		WithClock(f.clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	f.engine = engine
	return f
}

func (f *engineFixture) register(t *testing.T, name, email, pw string) {
	t.Helper()
	if _, err := f.engine.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: pw}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
}

func (f *engineFixture) login(t *testing.T, email, pw string) *AuthResponse {
	t.Helper()
	resp, err := f.engine.Login(context.Background(), LoginInput{Email: email, Password: pw})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return resp
}

func TestLoginIssuesTokensForSubject(t *testing.T) {
	f := newEngineTest(t, engineTestConfig())
	f.register(t, "Ada", "a@x.com", "p")

	resp := f.login(t, "a@x.com", "p")
	if resp.TokenType != "bearer" || resp.Name != "Ada" || resp.Role != RoleUser {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.RefreshToken == "" || resp.RefreshMaxAge != 30*24*time.Hour {
		t.Fatalf("expected refresh token with 30d max age, got %q %v", resp.RefreshToken, resp.RefreshMaxAge)
	}

	claims, err := f.engine.jwt.ParseAccess(resp.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccess failed: %v", err)
	}
	if claims.Subject != "user-1" || claims.Name != "Ada" || claims.Role != "USER" {
		t.Fatalf("claims do not match subject: %+v", claims)
	}
	if !claims.ExpiresAt.Time.Equal(f.clock.Now().Add(time.Minute)) {
		t.Fatalf("expected exp exactly one access TTL after mint, got %v", claims.ExpiresAt.Time)
	}

	id, err := f.engine.ValidateAccess(context.Background(), resp.AccessToken)
	if err != nil || id.Subject != "user-1" || id.Role != RoleUser {
		t.Fatalf("ValidateAccess: id=%+v err=%v", id, err)
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newEngineTest(t, engineTestConfig())
	f.register(t, "Ada", "a@x.com", "p")
	ctx := context.Background()

	_, unknownErr := f.engine.Login(ctx, LoginInput{Email: "nobody@x.com", Password: "p"})
	_, wrongErr := f.engine.Login(ctx, LoginInput{Email: "a@x.com", Password: "nope"})

	if !errors.Is(unknownErr, ErrAuthenticationFailed) || !errors.Is(wrongErr, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v / %v", unknownErr, wrongErr)
	}
	s1, m1 := PublicError(unknownErr)
	s2, m2 := PublicError(wrongErr)
	if s1 != s2 || m1 != m2 || s1 != http.StatusBadRequest || m1 != "Incorrect Email or Password" {
		t.Fatalf("public errors differ: %d %q vs %d %q", s1, m1, s2, m2)
	}
	if got := f.engine.Metrics().Value(MetricLoginFailure); got != 2 {
		t.Fatalf("expected 2 login failures, got %d", got)
	}
}

func TestRefreshRotatesAndDetectsReuse(t *testing.T) {
	f := newEngineTest(t, engineTestConfig())
	f.register(t, "Ada", "a@x.com", "p")
	ctx := context.Background()

	first := f.login(t, "a@x.com", "p")
	second, err := f.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation must issue a different refresh token")
	}
	if reused, _ := f.engine.sessions.IsReused(ctx, first.RefreshToken); !reused {
		t.Fatal("old refresh token must be flagged as reused")
	}

	_, err = f.engine.Refresh(ctx, first.RefreshToken)
	if !errors.Is(err, ErrTokenInvalid) || !errors.Is(err, ErrTokenReused) {
		t.Fatalf("expected reuse to fail as invalid token, got %v", err)
	}
	if status, msg := PublicError(err); status != http.StatusUnauthorized || msg != "Invalid token" {
		t.Fatalf("unexpected public error %d %q", status, msg)
	}

	// Sibling revocation retired the token issued by the legitimate rotation too.
	if _, err := f.engine.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected revoked sibling to be rejected, got %v", err)
	}
	if n, _ := f.engine.CountSessions(ctx, "user-1"); n != 0 {
		t.Fatalf("expected all sessions revoked, got %d", n)
	}
	snap := f.engine.MetricsSnapshot()
	if snap.Counters[MetricRefreshReuseDetected] < 1 || snap.Counters[MetricSiblingSessionsRevoked] != 1 {
		t.Fatalf("unexpected reuse metrics: %+v", snap.Counters)
	}
}

func TestReuseWithoutSiblingRevocation(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Security.RevokeSiblingsOnReuse = false
	f := newEngineTest(t, cfg)
	f.register(t, "Ada", "a@x.com", "p")
	ctx := context.Background()

	first := f.login(t, "a@x.com", "p")
	second, err := f.engine.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, err := f.engine.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("expected reuse, got %v", err)
	}
	if _, err := f.engine.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("current token must keep working without revocation policy: %v", err)
	}
}

func TestRefreshKeepsDeviceLineage(t *testing.T) {
	f := newEngineTest(t, engineTestConfig())
	f.register(t, "Ada", "a@x.com", "p")
	ctx := context.Background()

	a := f.login(t, "a@x.com", "p")
	f.login(t, "a@x.com", "p")
	if n, _ := f.engine.CountSessions(ctx, "user-1"); n != 2 {
		t.Fatalf("expected 2 sessions for two logins, got %d", n)
	}

	token := a.RefreshToken
	for i := 0; i < 3; i++ {
		resp, err := f.engine.Refresh(ctx, token)
		if err != nil {
			t.Fatalf("refresh %d failed: %v", i, err)
		}
		token = resp.RefreshToken
	}
	if n, _ := f.engine.CountSessions(ctx, "user-1"); n != 2 {
		t.Fatalf("rotations must not add sessions, got %d", n)
	}
}

func TestTokensMintedInSameSecondDiffer(t *testing.T) {
	f := newEngineTest(t, engineTestConfig())
	f.register(t, "Ada", "a@x.com", "p")

	a := f.login(t, "a@x.com", "p")
	b := f.login(t, "a@x.com", "p")
	if a.RefreshToken == b.RefreshToken || a.AccessToken == b.AccessToken {
		t.Fatal("tokens minted at the same instant must differ")
	}
}

func TestRefreshRejectsBadTokens(t *testing.T) {
	f := newEngineTest(t, engineTestConfig())
	f.register(t, "Ada", "a@x.com", "p")
	ctx := context.Background()
	resp := f.login(t, "a@x.com", "p")

	if _, err := f.engine.Refresh(ctx, ""); !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing, got %v", err)
	}
	if _, err := f.engine.Refresh(ctx, "not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
	if _, err := f.engine.Refresh(ctx, resp.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token must not refresh, got %v", err)
	}

	f.clock.Advance(30*24*time.Hour + time.Hour)
	if _, err := f.engine.Refresh(ctx, resp.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected expired refresh token to be rejected, got %v", err)
	}

	snap := f.engine.MetricsSnapshot()
	if snap.Counters[MetricTokenMalformed] != 1 || snap.Counters[MetricTokenUntrusted] != 1 || snap.Counters[MetricTokenExpired] != 1 {
		t.Fatalf("codec failure kinds not recorded: %+v", snap.Counters)
	}
}

func TestRefreshSubjectRemoved(t *testing.T) {
	f := newEngineTest(t, engineTestConfig())
	f.register(t, "Ada", "a@x.com", "p")
	ctx := context.Background()
	resp := f.login(t, "a@x.com", "p")

	f.dir.remove("user-1")
	_, err := f.engine.Refresh(ctx, resp.RefreshToken)
	if !errors.Is(err, ErrTokenInvalid) || !errors.Is(err, ErrSubjectNotFound) {
		t.Fatalf("expected invalid token wrapping subject-not-found, got %v", err)
	}
	if status, _ := PublicError(err); status != http.StatusUnauthorized {
		t.Fatalf("subject-not-found must surface as 401, got %d", status)
	}
	if _, ok, _ := f.engine.sessions.GetSession(ctx, resp.RefreshToken); ok {
		t.Fatal("orphaned session must be removed")
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newEngineTest(t, engineTestConfig())
	f.register(t, "Ada", "a@x.com", "p")
	ctx := context.Background()
	resp := f.login(t, "a@x.com", "p")

	ack, err := f.engine.Logout(ctx, resp.RefreshToken)
	if err != nil || !ack.Success || ack.Message != "Logout Successfully" {
		t.Fatalf("first logout: ack=%+v err=%v", ack, err)
	}
	if _, err := f.engine.Logout(ctx, resp.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("second logout must fail as invalid token, got %v", err)
	}
	if _, err := f.engine.Refresh(ctx, resp.RefreshToken); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("refresh after logout must be a reuse, got %v", err)
	}
	if _, err := f.engine.Logout(ctx, ""); !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing, got %v", err)
	}
	if _, err := f.engine.Logout(ctx, "unknown"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("unknown token must fail as invalid token, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	f := newEngineTest(t, engineTestConfig())
	ctx := context.Background()

	ack, err := f.engine.Register(ctx, RegisterInput{Name: "Ada", Email: "a@x.com", Password: "secret"})
	if err != nil || ack.Message != "Created Successfully" {
		t.Fatalf("Register: ack=%+v err=%v", ack, err)
	}
	u := f.dir.byID["user-1"]
	if u.Role != RoleUser || u.PasswordHash == "" || u.PasswordHash == "secret" {
		t.Fatalf("unexpected stored user %+v", u)
	}

	_, err = f.engine.Register(ctx, RegisterInput{Name: "Ada", Email: "a@x.com", Password: "other"})
	if !errors.Is(err, ErrDuplicateSubject) {
		t.Fatalf("expected ErrDuplicateSubject, got %v", err)
	}
	if status, msg := PublicError(err); status != http.StatusBadRequest || msg != "Duplicate email" {
		t.Fatalf("unexpected public error %d %q", status, msg)
	}

	cases := []RegisterInput{
		{Name: "", Email: "b@x.com", Password: "p"},
		{Name: "B", Email: "not-an-email", Password: "p"},
		{Name: "B", Email: "b@x.com", Password: ""},
	}
	for _, in := range cases {
		if _, err := f.engine.Register(ctx, in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput for %+v, got %v", in, err)
		}
	}
}

func TestRegisterPasswordPolicy(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Password.MinLength = 8
	f := newEngineTest(t, cfg)

	_, err := f.engine.Register(context.Background(), RegisterInput{Name: "Ada", Email: "a@x.com", Password: "short"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected short password to be invalid input, got %v", err)
	}
}

func TestSingleFlightRefresh(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Security.SingleFlightRefresh = true
	f := newEngineTest(t, cfg, func(b *Builder) { b.WithLocker(cache.NewMemoryLocker()) })
	f.register(t, "Ada", "a@x.com", "p")
	resp := f.login(t, "a@x.com", "p")

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Refresh(context.Background(), resp.RefreshToken)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("unexpected error kind: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Fatalf("expected exactly one successful rotation, got %d", successes)
	}
}

func TestAuditEventsCarryFingerprintOnly(t *testing.T) {
	cfg := engineTestConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	sink := NewChannelSink(16)
	f := newEngineTest(t, cfg, func(b *Builder) { b.WithAuditSink(sink) })
	f.register(t, "Ada", "a@x.com", "p")

	ctx := WithClientIP(context.Background(), "10.1.2.3")
	resp, err := f.engine.Login(ctx, LoginInput{Email: "a@x.com", Password: "p"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	var login AuditEvent
	timeout := time.After(2 * time.Second)
	for login.EventType != AuditLoginSuccess {
		select {
		case login = <-sink.Events():
		case <-timeout:
			t.Fatal("timed out waiting for login audit event")
		}
	}
	if login.SubjectID != "user-1" || login.IP != "10.1.2.3" || login.DeviceID == "" {
		t.Fatalf("unexpected audit event %+v", login)
	}
	if login.TokenFP == "" || strings.Contains(resp.RefreshToken, login.TokenFP) {
		t.Fatalf("audit must carry a fingerprint, not the token: %q", login.TokenFP)
	}
}

func TestStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	dir := newFakeDirectory()
	engine, err := New().
		WithConfig(engineTestConfig()).
		WithStore(cache.NewRedis(rdb, "gs")).
		WithUserDirectory(dir).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()
	ctx := context.Background()

	if _, err := engine.Register(ctx, RegisterInput{Name: "Ada", Email: "a@x.com", Password: "p"}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	mr.Close()

	_, err = engine.Login(ctx, LoginInput{Email: "a@x.com", Password: "p"})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if status, msg := PublicError(err); status != http.StatusInternalServerError || msg != "Internal server error" {
		t.Fatalf("unexpected public error %d %q", status, msg)
	}
}

func TestBuildValidation(t *testing.T) {
	good := engineTestConfig()
	cases := []struct {
		name  string
		build func() (*Engine, error)
	}{
		{"missing store", func() (*Engine, error) {
			return New().WithConfig(good).WithUserDirectory(newFakeDirectory()).Build()
		}},
		{"missing directory", func() (*Engine, error) {
			return New().WithConfig(good).WithStore(cache.NewMemory()).Build()
		}},
		{"short secret", func() (*Engine, error) {
			cfg := good
			cfg.JWT.Secret = []byte("short")
			return New().WithConfig(cfg).WithStore(cache.NewMemory()).WithUserDirectory(newFakeDirectory()).Build()
		}},
		{"single flight without locker", func() (*Engine, error) {
			cfg := good
			cfg.Security.SingleFlightRefresh = true
			return New().WithConfig(cfg).WithStore(cache.NewMemory()).WithUserDirectory(newFakeDirectory()).Build()
		}},
		{"unknown default role", func() (*Engine, error) {
			cfg := good
			cfg.DefaultRole = "ROOT"
			return New().WithConfig(cfg).WithStore(cache.NewMemory()).WithUserDirectory(newFakeDirectory()).Build()
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.build(); err == nil {
				t.Fatal("expected Build to fail")
			}
		})
	}

	b := New().WithConfig(good).WithStore(cache.NewMemory()).WithUserDirectory(newFakeDirectory())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("builder must be single-use")
	}
}

func TestNilEngineNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.Login(context.Background(), LoginInput{}); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if _, err := e.Refresh(context.Background(), "x"); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
}
