package goSession

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)

	if got := m.Value(MetricLoginSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricRefreshSuccess)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricRefreshSuccess); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricValidateLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricValidateLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginFailure)
	m.Inc(MetricLoginFailure)
	m.Observe(MetricValidateLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected MetricLoginSuccess=1 got %d", snap.Counters[MetricLoginSuccess])
	}
	if snap.Counters[MetricLoginFailure] != 2 {
		t.Fatalf("expected MetricLoginFailure=2 got %d", snap.Counters[MetricLoginFailure])
	}
	if len(snap.Histograms[MetricValidateLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricValidateLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricValidateLatency][0])
	}
}

type countingDirectory struct {
	*fakeDirectory
	calls int
}

func (d *countingDirectory) FindByEmail(ctx context.Context, email string) (User, bool, error) {
	d.calls++
	return d.fakeDirectory.FindByEmail(ctx, email)
}

func (d *countingDirectory) FindByID(ctx context.Context, id string) (User, bool, error) {
	d.calls++
	return d.fakeDirectory.FindByID(ctx, id)
}

func TestValidateWithMetricsStillAvoidsDirectoryCalls(t *testing.T) {
	dir := &countingDirectory{fakeDirectory: newFakeDirectory()}
	cfg := engineTestConfig()
	cfg.Metrics.EnableLatencyHistograms = true
	f := newEngineTest(t, cfg, func(b *Builder) { b.WithUserDirectory(dir) })

	if _, err := f.engine.Register(context.Background(), RegisterInput{Name: "Ada", Email: "a@x.com", Password: "p"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	resp := f.login(t, "a@x.com", "p")

	dir.calls = 0
	if _, err := f.engine.ValidateAccess(context.Background(), resp.AccessToken); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if dir.calls != 0 {
		t.Fatalf("expected validate to avoid directory calls, got %d", dir.calls)
	}

	snap := f.engine.MetricsSnapshot()
	var observed uint64
	for _, v := range snap.Histograms[MetricValidateLatency] {
		observed += v
	}
	if observed != 1 {
		t.Fatalf("expected one validate latency observation, got %d", observed)
	}
}

func TestMetricNamesAreUnique(t *testing.T) {
	seen := map[string]MetricID{}
	for _, id := range MetricIDs() {
		name := id.String()
		if name == "" {
			t.Fatalf("metric %d has no name", id)
		}
		if prev, ok := seen[name]; ok {
			t.Fatalf("metrics %d and %d share name %q", prev, id, name)
		}
		seen[name] = id
	}
}
