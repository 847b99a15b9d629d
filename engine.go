package goSession

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/goSession/cache"
	"github.com/MrEthical07/goSession/internal"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/password"
	"github.com/MrEthical07/goSession/session"
	"go.uber.org/zap"
)

const (
	tokenTypeBearer = "bearer"
	msgLogout       = "Logout Successfully"
	msgCreated      = "Created Successfully"
)

// Engine defines a public type used by goSession APIs.
//
// Engine runs the login, refresh, logout and register use cases. It is safe for
// concurrent use; build one with [New] and share it.
type Engine struct {
	config    Config
	jwt       *jwt.Manager
	sessions  *session.Manager
	store     cache.Repository
	directory UserDirectory
	hasher    PasswordHasher
	locker    cache.Locker
	clock     Clock
	logger    *zap.Logger
	metrics   *Metrics
	audit     *auditDispatcher
	flows     flows.Deps

	dummyDigest string
}

// Close flushes pending audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped because the queue was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Metrics exposes the engine's counters to exporters.
func (e *Engine) Metrics() *Metrics {
	if e == nil {
		return nil
	}
	return e.metrics
}

// MetricsSnapshot returns a copy of the current metric values.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return (*Metrics)(nil).Snapshot()
	}
	return e.metrics.Snapshot()
}

// RefreshTTL is the lifetime of refresh tokens and the cookie Max-Age transports should use.
func (e *Engine) RefreshTTL() time.Duration {
	if e == nil {
		return 0
	}
	return e.config.JWT.RefreshTTL
}

func (e *Engine) ready() bool {
	return e != nil && e.sessions != nil && e.jwt != nil
}

/*
====================================
LOGIN
====================================
*/

// Login verifies credentials and opens a session for a new device.
//
// An unknown email and a wrong password both return [ErrAuthenticationFailed].
func (e *Engine) Login(ctx context.Context, in LoginInput) (*AuthResponse, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricLoginLatency, time.Since(start)) }()

	res := flows.RunLogin(ctx, in.Email, in.Password, e.flows.Login)
	if res.Failure != flows.LoginFailureNone {
		err := e.mapLoginFailure(res)
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, AuditLoginFailure, false, auditSubject{subjectID: res.Subject.ID}, err, nil)
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.metrics.Inc(MetricSessionCreated)
	e.emitAudit(ctx, AuditLoginSuccess, true, auditSubject{
		subjectID: res.Subject.ID,
		deviceID:  res.DeviceID,
		token:     res.RefreshToken,
	}, nil, nil)

	return e.authResponse(res.Subject, res.AccessToken, res.RefreshToken), nil
}

func (e *Engine) mapLoginFailure(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailureInvalidInput:
		return fmt.Errorf("%w: %v", ErrInvalidInput, res.Err)
	case flows.LoginFailureCredentials:
		return ErrAuthenticationFailed
	case flows.LoginFailureLookup, flows.LoginFailureSession:
		return e.storeFailure("login", res.Err)
	default:
		e.logger.Error("login failed", zap.Error(res.Err))
		return fmt.Errorf("login: %w", res.Err)
	}
}

/*
====================================
REFRESH
====================================
*/

// Refresh rotates refreshToken and returns a new access token and refresh token.
//
// Every rejection wraps [ErrTokenInvalid]. A retired token additionally wraps
// [ErrTokenReused] and, with Security.RevokeSiblingsOnReuse, retires all of the
// subject's sessions.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricRefreshLatency, time.Since(start)) }()

	res := flows.RunRefresh(ctx, refreshToken, e.flows.Refresh)
	if res.Failure != flows.RefreshFailureNone {
		err := e.mapRefreshFailure(res, refreshToken)
		e.metrics.Inc(MetricRefreshFailure)
		eventType := AuditRefreshFailure
		if res.Failure == flows.RefreshFailureReuse {
			eventType = AuditRefreshReuse
		}
		e.emitAudit(ctx, eventType, false, auditSubject{subjectID: res.SubjectID, token: refreshToken}, err, nil)
		if res.Revoked > 0 {
			e.emitAudit(ctx, AuditSessionsRevoked, true, auditSubject{subjectID: res.SubjectID}, nil, func() map[string]string {
				return map[string]string{"count": strconv.Itoa(res.Revoked), "reason": "refresh_reuse"}
			})
		}
		return nil, err
	}

	e.metrics.Inc(MetricRefreshSuccess)
	e.metrics.Inc(MetricSessionRotated)
	e.emitAudit(ctx, AuditRefreshSuccess, true, auditSubject{
		subjectID: res.SubjectID,
		deviceID:  res.DeviceID,
		token:     res.RefreshToken,
	}, nil, nil)

	return e.authResponse(res.Subject, res.AccessToken, res.RefreshToken), nil
}

func (e *Engine) mapRefreshFailure(res flows.RefreshResult, token string) error {
	switch res.Failure {
	case flows.RefreshFailureMissing:
		return ErrTokenMissing
	case flows.RefreshFailureDecode:
		e.recordCodecFailure("refresh", res.Err)
		return ErrTokenInvalid
	case flows.RefreshFailureBusy:
		e.metrics.Inc(MetricRefreshContended)
		return ErrTokenInvalid
	case flows.RefreshFailureReuse:
		e.recordReuse("refresh", token, res.SubjectID, res.Revoked)
		return fmt.Errorf("%w: %w", ErrTokenInvalid, ErrTokenReused)
	case flows.RefreshFailureSessionNotFound:
		return ErrTokenInvalid
	case flows.RefreshFailureSubjectNotFound:
		e.logger.Info("session references missing subject; session removed", zap.String("sub", res.SubjectID))
		return fmt.Errorf("%w: %w", ErrTokenInvalid, ErrSubjectNotFound)
	case flows.RefreshFailureStore, flows.RefreshFailureLookup:
		return e.storeFailure("refresh", res.Err)
	default:
		e.logger.Error("refresh failed", zap.Error(res.Err))
		return fmt.Errorf("refresh: %w", res.Err)
	}
}

/*
====================================
LOGOUT
====================================
*/

// Logout retires refreshToken. A second logout with the same token fails with
// [ErrTokenInvalid]; so does an unknown or malformed token.
func (e *Engine) Logout(ctx context.Context, refreshToken string) (*Ack, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := flows.RunLogout(ctx, refreshToken, e.flows.Logout)
	if res.Failure != flows.LogoutFailureNone {
		var err error
		switch res.Failure {
		case flows.LogoutFailureMissing:
			err = ErrTokenMissing
		case flows.LogoutFailureReuse:
			e.recordReuse("logout", refreshToken, res.SubjectID, 0)
			err = fmt.Errorf("%w: %w", ErrTokenInvalid, ErrTokenReused)
		case flows.LogoutFailureBusy:
			e.metrics.Inc(MetricRefreshContended)
			err = ErrTokenInvalid
		case flows.LogoutFailureSessionNotFound:
			err = ErrTokenInvalid
		default:
			err = e.storeFailure("logout", res.Err)
		}
		e.metrics.Inc(MetricLogoutFailure)
		e.emitAudit(ctx, AuditLogoutFailure, false, auditSubject{subjectID: res.SubjectID, token: refreshToken}, err, nil)
		return nil, err
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, AuditLogout, true, auditSubject{
		subjectID: res.SubjectID,
		deviceID:  res.DeviceID,
		token:     refreshToken,
	}, nil, nil)
	return &Ack{Success: true, Message: msgLogout}, nil
}

/*
====================================
REGISTER
====================================
*/

// Register creates a user with Config.DefaultRole.
func (e *Engine) Register(ctx context.Context, in RegisterInput) (*Ack, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	res := flows.RunRegister(ctx, in.Name, in.Email, in.Password, e.flows.Register)
	if res.Failure != flows.RegisterFailureNone {
		var err error
		switch res.Failure {
		case flows.RegisterFailureInvalidInput:
			err = fmt.Errorf("%w: %v", ErrInvalidInput, res.Err)
			e.metrics.Inc(MetricRegisterFailure)
		case flows.RegisterFailureDuplicate:
			err = ErrDuplicateSubject
			e.metrics.Inc(MetricRegisterDuplicate)
		case flows.RegisterFailureLookup, flows.RegisterFailureCreate:
			err = e.storeFailure("register", res.Err)
			e.metrics.Inc(MetricRegisterFailure)
		default:
			e.logger.Error("register failed", zap.Error(res.Err))
			err = fmt.Errorf("register: %w", res.Err)
			e.metrics.Inc(MetricRegisterFailure)
		}
		e.emitAudit(ctx, AuditRegisterFailure, false, auditSubject{}, err, nil)
		return nil, err
	}

	e.metrics.Inc(MetricRegisterSuccess)
	e.emitAudit(ctx, AuditRegister, true, auditSubject{subjectID: res.Subject.ID}, nil, nil)
	return &Ack{Success: true, Message: msgCreated}, nil
}

/*
====================================
ACCESS TOKENS / SESSIONS
====================================
*/

// ValidateAccess verifies an access token and returns the identity it carries.
// No store is consulted.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AccessIdentity, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	start := time.Now()
	defer func() { e.metrics.Observe(MetricValidateLatency, time.Since(start)) }()

	res := flows.RunValidate(token, e.flows.Validate)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureMissing:
		return nil, ErrTokenMissing
	default:
		e.recordCodecFailure("access", res.Err)
		return nil, ErrTokenInvalid
	}
	return &AccessIdentity{
		Subject: res.Identity.Subject,
		Name:    res.Identity.Name,
		Role:    Role(res.Identity.Role),
		TokenID: res.Identity.TokenID,
	}, nil
}

// CountSessions returns the number of device sessions of subjectID. The count is
// approximate while sessions are being created or rotated concurrently.
func (e *Engine) CountSessions(ctx context.Context, subjectID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if subjectID == "" {
		return 0, fmt.Errorf("%w: empty subject", ErrInvalidInput)
	}
	n, err := e.sessions.CountSessions(ctx, subjectID)
	if err != nil {
		return 0, e.storeFailure("count sessions", err)
	}
	return n, nil
}

// RevokeAll retires every session of subjectID and returns how many were retired.
func (e *Engine) RevokeAll(ctx context.Context, subjectID string) (int, error) {
	if !e.ready() {
		return 0, ErrEngineNotReady
	}
	if subjectID == "" {
		return 0, fmt.Errorf("%w: empty subject", ErrInvalidInput)
	}
	n, err := e.sessions.RevokeAll(ctx, subjectID)
	if err != nil {
		return n, e.storeFailure("revoke all", err)
	}
	e.emitAudit(ctx, AuditSessionsRevoked, true, auditSubject{subjectID: subjectID}, nil, func() map[string]string {
		return map[string]string{"count": strconv.Itoa(n), "reason": "explicit"}
	})
	return n, nil
}

/*
====================================
HELPERS
====================================
*/

func (e *Engine) authResponse(s flows.Subject, access, refresh string) *AuthResponse {
	return &AuthResponse{
		AccessToken:   access,
		TokenType:     tokenTypeBearer,
		Name:          s.Name,
		Role:          Role(s.Role),
		RefreshToken:  refresh,
		RefreshMaxAge: e.config.JWT.RefreshTTL,
	}
}

func (e *Engine) storeFailure(op string, err error) error {
	e.metrics.Inc(MetricStoreFailure)
	e.logger.Error("store failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// recordCodecFailure keeps the expired/malformed/untrusted distinction in logs and
// metrics only.
func (e *Engine) recordCodecFailure(kind string, err error) {
	var label string
	switch {
	case errors.Is(err, jwt.ErrExpired):
		label = "expired"
		e.metrics.Inc(MetricTokenExpired)
	case errors.Is(err, jwt.ErrMalformed):
		label = "malformed"
		e.metrics.Inc(MetricTokenMalformed)
	default:
		label = "untrusted"
		e.metrics.Inc(MetricTokenUntrusted)
	}
	e.logger.Debug("token rejected", zap.String("token", kind), zap.String("reason", label), zap.Error(err))
}

func (e *Engine) recordReuse(op, token, sub string, revoked int) {
	e.metrics.Inc(MetricRefreshReuseDetected)
	e.metrics.Add(MetricSiblingSessionsRevoked, uint64(revoked))
	e.logger.Warn("retired refresh token presented",
		zap.String("op", op),
		zap.String("token_fp", internal.Fingerprint(token)),
		zap.String("sub", sub),
		zap.Int("revoked", revoked),
	)
}

func toSubject(u User) flows.Subject {
	return flows.Subject{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         string(u.Role),
	}
}

func (e *Engine) buildFlowDeps() flows.Deps {
	findByEmail := func(ctx context.Context, email string) (flows.Subject, bool, error) {
		u, ok, err := e.directory.FindByEmail(ctx, email)
		return toSubject(u), ok, err
	}
	findByID := func(ctx context.Context, id string) (flows.Subject, bool, error) {
		u, ok, err := e.directory.FindByID(ctx, id)
		return toSubject(u), ok, err
	}
	mintAccess := func(s flows.Subject) (string, error) {
		return e.jwt.MintAccess(s.ID, s.Name, s.Role)
	}

	var acquire flows.AcquireFunc
	if e.config.Security.SingleFlightRefresh && e.locker != nil {
		ttl := e.config.Security.LockTTL
		acquire = func(ctx context.Context, token string) (func(), bool, error) {
			return e.locker.Acquire(ctx, "refresh_lock:"+token, ttl)
		}
	}

	return flows.Deps{
		Login: flows.LoginDeps{
			FindByEmail:         findByEmail,
			VerifyPassword:      e.hasher.Verify,
			MintAccess:          mintAccess,
			MintRefresh:         e.jwt.MintRefresh,
			NewDeviceID:         internal.NewDeviceID,
			ClientIPFromContext: ClientIPFromContext,
			SessionStore:        e.sessions,
			DummyDigest:         e.dummyDigest,
		},
		Refresh: flows.RefreshDeps{
			ParseRefresh: func(token string) error {
				_, err := e.jwt.ParseRefresh(token)
				return err
			},
			FindByID:              findByID,
			MintAccess:            mintAccess,
			MintRefresh:           e.jwt.MintRefresh,
			ClientIPFromContext:   ClientIPFromContext,
			Acquire:               acquire,
			SessionStore:          e.sessions,
			RevokeSiblingsOnReuse: e.config.Security.RevokeSiblingsOnReuse,
			Warn: func(msg string, err error) {
				e.logger.Warn(msg, zap.Error(err))
			},
		},
		Logout: flows.LogoutDeps{
			Acquire:      acquire,
			SessionStore: e.sessions,
		},
		Register: flows.RegisterDeps{
			Exists:       e.directory.Exists,
			HashPassword: e.hasher.Hash,
			IsPolicyError: func(err error) bool {
				return errors.Is(err, password.ErrTooShort) ||
					errors.Is(err, password.ErrTooLong) ||
					errors.Is(err, ErrInvalidInput)
			},
			Create: func(ctx context.Context, r flows.RegisterRecord) (flows.Subject, error) {
				u, err := e.directory.Create(ctx, CreateUserInput{
					Name:         r.Name,
					Email:        r.Email,
					PasswordHash: r.PasswordHash,
					Role:         Role(r.Role),
				})
				return toSubject(u), err
			},
			IsDuplicate: func(err error) bool { return errors.Is(err, ErrDuplicateSubject) },
			DefaultRole: string(e.config.DefaultRole),
		},
		Validate: flows.ValidateDeps{
			ParseAccess: func(token string) (flows.Identity, error) {
				c, err := e.jwt.ParseAccess(token)
				if err != nil {
					return flows.Identity{}, err
				}
				return flows.Identity{Subject: c.Subject, Name: c.Name, Role: c.Role, TokenID: c.ID}, nil
			},
		},
	}
}
