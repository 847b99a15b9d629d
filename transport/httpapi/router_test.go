package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/cache"
	"github.com/MrEthical07/goSession/directory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router *gin.Engine
	engine *goSession.Engine
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	cfg := goSession.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.MinLength = 1

	engine, err := goSession.New().
		WithConfig(cfg).
		WithStore(cache.NewMemory()).
		WithUserDirectory(directory.NewMemory()).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	if opts.Health == nil {
		opts.Health = engine
	}
	router, err := NewRouter(engine, nil, opts)
	require.NoError(t, err)

	return &testServer{router: router, engine: engine}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) register(t *testing.T, name, email, pass string) {
	t.Helper()
	body := `{"name":"` + name + `","email":"` + email + `","password":"` + pass + `","company":"acme"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (s *testServer) loginForm(email, pass string) *httptest.ResponseRecorder {
	form := url.Values{"username": {email}, "password": {pass}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == RefreshCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", RefreshCookieName)
	return nil
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestLoginSetsRefreshCookie(t *testing.T) {
	s := newTestServer(t, Options{CookieSecure: true})
	s.register(t, "Ada", "ada@example.com", "pw")

	w := s.loginForm("ada@example.com", "pw")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "bearer", body["token_type"])
	assert.Equal(t, "Ada", body["name"])
	assert.Equal(t, "USER", body["role"])
	assert.NotEmpty(t, body["access_token"])
	assert.NotContains(t, body, "refresh_token")

	c := refreshCookie(t, w)
	assert.NotEmpty(t, c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, int(s.engine.RefreshTTL()/time.Second), c.MaxAge)
}

func TestLoginAcceptsJSON(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "Ada", "ada@example.com", "pw")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login",
		strings.NewReader(`{"email":"ada@example.com","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, refreshCookie(t, w).Value)
}

func TestLoginFailure(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "Ada", "ada@example.com", "pw")

	tests := []struct {
		name  string
		email string
		pass  string
	}{
		{name: "wrong password", email: "ada@example.com", pass: "nope"},
		{name: "unknown email", email: "ghost@example.com", pass: "pw"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.loginForm(tt.email, tt.pass)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode(t, w)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "Incorrect Email or Password", body["message"])
		})
	}
}

func TestLoginMalformedJSON(t *testing.T) {
	s := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request", decode(t, w)["message"])
}

func TestRegisterDuplicate(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "Ada", "ada@example.com", "pw")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register",
		strings.NewReader(`{"name":"Ada","email":"ada@example.com","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	w := s.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Duplicate email", decode(t, w)["message"])
}

func TestRefreshRotatesCookieAndRejectsReplay(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "Ada", "ada@example.com", "pw")

	first := refreshCookie(t, s.loginForm("ada@example.com", "pw"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: first.Value})
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	second := refreshCookie(t, w)
	assert.NotEqual(t, first.Value, second.Value)

	replay := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	replay.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: first.Value})
	w = s.do(replay)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Invalid token", decode(t, w)["message"])
}

func TestRefreshWithoutCookie(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Token not found", decode(t, w)["message"])
}

func TestLogoutClearsCookie(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "Ada", "ada@example.com", "pw")
	c := refreshCookie(t, s.loginForm("ada@example.com", "pw"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: c.Value})
	w := s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Logout Successfully", body["message"])

	cleared := refreshCookie(t, w)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	again := httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil)
	again.AddCookie(&http.Cookie{Name: RefreshCookieName, Value: c.Value})
	assert.Equal(t, http.StatusUnauthorized, s.do(again).Code)
}

func TestMeRequiresBearer(t *testing.T) {
	s := newTestServer(t, Options{})
	s.register(t, "Ada", "ada@example.com", "pw")
	token := decode(t, s.loginForm("ada@example.com", "pw"))["access_token"].(string)

	w := s.do(httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = s.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "Ada", body["name"])
	assert.Equal(t, "USER", body["role"])
	assert.NotEmpty(t, body["sub"])
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, Options{})

	w := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["store_available"])
}

type downChecker struct{}

func (downChecker) Health(context.Context) goSession.HealthStatus {
	return goSession.HealthStatus{}
}

func TestHealthzUnavailable(t *testing.T) {
	s := newTestServer(t, Options{Health: downChecker{}})

	w := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsMounted(t *testing.T) {
	called := false
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	s := newTestServer(t, Options{Metrics: metrics})

	w := s.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}

func TestNilEngineFailsClosed(t *testing.T) {
	var engine *goSession.Engine
	router, err := NewRouter(engine, nil, Options{})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
