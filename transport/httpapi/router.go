package httpapi

import (
	"context"
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Authenticator is the engine surface the routes need. *goSession.Engine satisfies it.
type Authenticator interface {
	Login(ctx context.Context, in goSession.LoginInput) (*goSession.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*goSession.AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) (*goSession.Ack, error)
	Register(ctx context.Context, in goSession.RegisterInput) (*goSession.Ack, error)
	ValidateAccess(ctx context.Context, token string) (*goSession.AccessIdentity, error)
}

// HealthChecker reports store health for GET /healthz.
type HealthChecker interface {
	Health(ctx context.Context) goSession.HealthStatus
}

// Options configures [NewRouter].
type Options struct {
	// CookieSecure sets the Secure attribute on the refresh cookie.
	CookieSecure bool

	// CookieDomain is left empty for host-only cookies.
	CookieDomain string

	// TrustedProxies lists proxy CIDRs whose X-Forwarded-For is honored.
	// Nil trusts none and the client IP is the socket peer.
	TrustedProxies []string

	// Metrics is mounted at GET /metrics when non-nil.
	Metrics http.Handler

	// Health backs GET /healthz when non-nil.
	Health HealthChecker

	// HealthTimeout bounds a health probe. Zero means two seconds.
	HealthTimeout time.Duration
}

// NewRouter builds the gin engine serving auth routes.
func NewRouter(auth Authenticator, logger *zap.Logger, opts Options) (*gin.Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(recovery(logger), requestLogger(logger), clientIP())

	h := &handler{
		auth:   auth,
		logger: logger.Named("httpapi"),
		cookie: cookieConfig{secure: opts.CookieSecure, domain: opts.CookieDomain},
	}

	api := r.Group("/api/v1/auth")
	api.POST("/login", h.login)
	api.POST("/refresh", h.refresh)
	api.POST("/logout", h.logout)
	api.POST("/register", h.register)
	api.GET("/me", bearerGuard(auth), h.me)

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	if opts.Health != nil {
		timeout := opts.HealthTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		r.GET("/healthz", healthz(opts.Health, timeout))
	}

	return r, nil
}

func healthz(checker HealthChecker, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		status := checker.Health(ctx)
		code := http.StatusOK
		if !status.StoreAvailable {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"store_available":  status.StoreAvailable,
			"store_latency_ms": status.StoreLatency.Milliseconds(),
		})
	}
}
