package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goSession/cache"
	"github.com/MrEthical07/goSession/internal"
	"go.uber.org/zap"
)

// Config controls storage lifetimes. A zero TTL stores entries without expiry.
type Config struct {
	// TTL applies to session records and index entries; normally the refresh token TTL.
	TTL time.Duration

	// TombstoneGrace extends tombstone lifetime past TTL so reuse stays detectable
	// while a retired token can still pass signature verification under clock leeway.
	TombstoneGrace time.Duration
}

// DefaultConfig returns a 30 day session lifetime with a five minute tombstone grace.
func DefaultConfig() Config {
	return Config{
		TTL:            30 * 24 * time.Hour,
		TombstoneGrace: 5 * time.Minute,
	}
}

func (c Config) tombstoneTTL() time.Duration {
	if c.TTL <= 0 {
		return 0
	}
	return c.TTL + c.TombstoneGrace
}

// Manager implements the refresh-session state machine.
//
// Every method is safe for concurrent use. Individual store calls are atomic but the
// multi-step sequences are not; see [Manager.Rotate].
type Manager struct {
	repo   cache.Repository
	cfg    Config
	logger *zap.Logger
}

// NewManager returns a Manager over repo. A nil logger disables logging.
func NewManager(repo cache.Repository, cfg Config, logger *zap.Logger) (*Manager, error) {
	if repo == nil {
		return nil, errors.New("session: repository is required")
	}
	if cfg.TTL < 0 || cfg.TombstoneGrace < 0 {
		return nil, errors.New("session: ttl values must not be negative")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{repo: repo, cfg: cfg, logger: logger}, nil
}

// CreateSession writes the record for token and points the (subject, device) slot at it.
//
// If the index write fails after the record was stored the call still succeeds; the
// orphaned record only affects session counting and is logged.
func (m *Manager) CreateSession(ctx context.Context, token string, data Data) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidData)
	}
	if err := data.validate(); err != nil {
		return err
	}
	raw, err := encodeData(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if err := m.repo.Set(ctx, recordKey(token), raw, m.cfg.TTL); err != nil {
		return fmt.Errorf("session: write record: %w", err)
	}
	if err := m.repo.Set(ctx, indexKey(data.Sub, data.DeviceID), []byte(token), m.cfg.TTL); err != nil {
		m.logger.Warn("session index write failed; record left without index entry",
			zap.String("token_fp", internal.Fingerprint(token)),
			zap.String("sub", data.Sub),
			zap.String("device_id", data.DeviceID),
			zap.Error(err),
		)
	}
	return nil
}

// GetSession returns the live record for token. The boolean is false when absent.
func (m *Manager) GetSession(ctx context.Context, token string) (Data, bool, error) {
	if token == "" {
		return Data{}, false, nil
	}
	raw, ok, err := m.repo.Get(ctx, recordKey(token))
	if err != nil {
		return Data{}, false, fmt.Errorf("session: read record: %w", err)
	}
	if !ok {
		return Data{}, false, nil
	}
	data, err := decodeData(raw)
	if err != nil {
		return Data{}, false, err
	}
	return data, true, nil
}

// IsReused reports whether token was already consumed by a rotation or logout.
func (m *Manager) IsReused(ctx context.Context, token string) (bool, error) {
	_, reused, err := m.ReusedBy(ctx, token)
	return reused, err
}

// ReusedBy is [Manager.IsReused] that also returns the subject recorded in the
// tombstone, or "" when the subject was not known at retirement.
func (m *Manager) ReusedBy(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	raw, ok, err := m.repo.Get(ctx, tombstoneKey(token))
	if err != nil {
		return "", false, fmt.Errorf("session: read tombstone: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	sub := string(raw)
	if sub == tombstoneMarker {
		sub = ""
	}
	return sub, true, nil
}

// Rotate retires oldToken and creates data under newToken.
//
// The caller is expected to have checked IsReused and GetSession for oldToken. Rotate
// re-reads both so that a second sequential call with the same oldToken fails with
// [ErrReused] or [ErrNotFound] instead of minting a second live session.
//
// Steps run in this order: tombstone old, delete old record, delete old index slot,
// create new. Cancellation between steps leaves the old token retired and possibly no
// replacement, which forces a fresh login.
func (m *Manager) Rotate(ctx context.Context, oldToken, newToken string, data Data) error {
	if oldToken == "" || newToken == "" || oldToken == newToken {
		return fmt.Errorf("%w: rotation needs two distinct tokens", ErrInvalidData)
	}
	if err := data.validate(); err != nil {
		return err
	}

	reused, err := m.IsReused(ctx, oldToken)
	if err != nil {
		return err
	}
	if reused {
		return ErrReused
	}
	old, ok, err := m.GetSession(ctx, oldToken)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	if err := m.retire(ctx, oldToken, old); err != nil {
		return err
	}
	return m.CreateSession(ctx, newToken, data)
}

// DeleteSession retires token on behalf of sub. It is idempotent: deleting an
// already-retired or unknown token returns nil.
func (m *Manager) DeleteSession(ctx context.Context, token, sub string) error {
	if token == "" {
		return nil
	}
	data, ok, err := m.GetSession(ctx, token)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return err
	}
	if ok {
		if sub == "" {
			sub = data.Sub
		}
		return m.retire(ctx, token, data)
	}

	if err := m.tombstone(ctx, token, sub); err != nil {
		return err
	}
	if err := m.repo.Delete(ctx, recordKey(token)); err != nil {
		return fmt.Errorf("session: delete record: %w", err)
	}
	if sub == "" {
		return nil
	}
	// Record is gone, so find the slot by value.
	return m.dropIndexByValue(ctx, sub, token)
}

// CountSessions returns the number of device slots for sub. The value is approximate
// under concurrent churn.
func (m *Manager) CountSessions(ctx context.Context, sub string) (int, error) {
	keys, err := m.indexKeys(ctx, sub)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// ListSessions returns the live session of every indexed device of sub. Index
// entries whose record has already expired or been retired are skipped.
func (m *Manager) ListSessions(ctx context.Context, sub string) ([]Data, error) {
	keys, err := m.indexKeys(ctx, sub)
	if err != nil {
		return nil, err
	}
	out := make([]Data, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := m.repo.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("session: read index: %w", err)
		}
		if !ok || len(raw) == 0 {
			continue
		}
		data, ok, err := m.GetSession(ctx, string(raw))
		if err != nil && !errors.Is(err, ErrCorrupt) {
			return nil, err
		}
		if ok {
			out = append(out, data)
		}
	}
	return out, nil
}

// RevokeAll retires every live session of sub and returns how many were retired.
func (m *Manager) RevokeAll(ctx context.Context, sub string) (int, error) {
	keys, err := m.indexKeys(ctx, sub)
	if err != nil {
		return 0, err
	}
	revoked := 0
	for _, key := range keys {
		raw, ok, err := m.repo.Get(ctx, key)
		if err != nil {
			return revoked, fmt.Errorf("session: read index: %w", err)
		}
		if ok && len(raw) > 0 {
			token := string(raw)
			if err := m.tombstone(ctx, token, sub); err != nil {
				return revoked, err
			}
			if err := m.repo.Delete(ctx, recordKey(token)); err != nil {
				return revoked, fmt.Errorf("session: delete record: %w", err)
			}
		}
		if err := m.repo.Delete(ctx, key); err != nil {
			return revoked, fmt.Errorf("session: delete index: %w", err)
		}
		if ok {
			revoked++
		}
	}
	return revoked, nil
}

func (m *Manager) retire(ctx context.Context, token string, data Data) error {
	if err := m.tombstone(ctx, token, data.Sub); err != nil {
		return err
	}
	if err := m.repo.Delete(ctx, recordKey(token)); err != nil {
		return fmt.Errorf("session: delete record: %w", err)
	}
	if err := m.repo.Delete(ctx, indexKey(data.Sub, data.DeviceID)); err != nil {
		return fmt.Errorf("session: delete index: %w", err)
	}
	return nil
}

func (m *Manager) tombstone(ctx context.Context, token, sub string) error {
	value := sub
	if value == "" {
		value = tombstoneMarker
	}
	if err := m.repo.Set(ctx, tombstoneKey(token), []byte(value), m.cfg.tombstoneTTL()); err != nil {
		return fmt.Errorf("session: write tombstone: %w", err)
	}
	return nil
}

func (m *Manager) dropIndexByValue(ctx context.Context, sub, token string) error {
	keys, err := m.indexKeys(ctx, sub)
	if err != nil {
		return err
	}
	for _, key := range keys {
		raw, ok, err := m.repo.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("session: read index: %w", err)
		}
		if ok && string(raw) == token {
			if err := m.repo.Delete(ctx, key); err != nil {
				return fmt.Errorf("session: delete index: %w", err)
			}
		}
	}
	return nil
}

func (m *Manager) indexKeys(ctx context.Context, sub string) ([]string, error) {
	if sub == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidData)
	}
	keys, err := m.repo.Scan(ctx, indexPattern(sub))
	if err != nil {
		return nil, fmt.Errorf("session: scan index: %w", err)
	}
	out := keys[:0]
	for _, key := range keys {
		if _, ok := deviceFromIndexKey(key, sub); ok {
			out = append(out, key)
		}
	}
	return out, nil
}
