package goSession

import (
	"context"
	"fmt"
	"time"
)

// SessionInfo describes one live device session. Token values are never exposed.
type SessionInfo struct {
	DeviceID string `json:"device_id"`
	IP       string `json:"ip"`
}

// HealthStatus reports session store reachability.
type HealthStatus struct {
	StoreAvailable bool          `json:"store_available"`
	StoreLatency   time.Duration `json:"store_latency"`
}

type pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// ListSessions returns the live device sessions of subjectID.
func (e *Engine) ListSessions(ctx context.Context, subjectID string) ([]SessionInfo, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if subjectID == "" {
		return nil, fmt.Errorf("%w: empty subject", ErrInvalidInput)
	}

	list, err := e.sessions.ListSessions(ctx, subjectID)
	if err != nil {
		return nil, e.storeFailure("list sessions", err)
	}
	out := make([]SessionInfo, 0, len(list))
	for _, d := range list {
		out = append(out, SessionInfo{DeviceID: d.DeviceID, IP: d.IP})
	}
	return out, nil
}

// Health pings the session store when it supports it. Stores without a Ping
// method, such as the in-memory store, are always reported available.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if !e.ready() {
		return HealthStatus{}
	}
	p, ok := e.store.(pinger)
	if !ok {
		return HealthStatus{StoreAvailable: true}
	}
	latency, err := p.Ping(ctx)
	return HealthStatus{
		StoreAvailable: err == nil,
		StoreLatency:   latency,
	}
}
