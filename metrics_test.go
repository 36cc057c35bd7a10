package adminauth

import (
	"sync"
	"testing"
)

func TestMetricsDisabledIgnoresIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricLoginSuccess)
	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("disabled metrics counted: %d", got)
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("disabled metrics produced a non-empty snapshot")
	}
}

func TestMetricsCountsPerID(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLoginSuccess)
	m.Inc(MetricLockoutTriggered)

	if got := m.Value(MetricLoginSuccess); got != 2 {
		t.Fatalf("login successes = %d, want 2", got)
	}
	if got := m.Value(MetricLockoutTriggered); got != 1 {
		t.Fatalf("lockouts = %d, want 1", got)
	}
	if got := m.Value(MetricLoginFailure); got != 0 {
		t.Fatalf("untouched counter = %d, want 0", got)
	}

	snap := m.Snapshot()
	if snap.Counters[MetricLoginSuccess] != 2 || snap.Counters[MetricLockoutTriggered] != 1 {
		t.Fatalf("snapshot disagrees with values: %v", snap.Counters)
	}
}

func TestMetricsOutOfRangeIDIgnored(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(metricIDCount + 10)
	if got := m.Value(metricIDCount + 10); got != 0 {
		t.Fatalf("out-of-range id counted: %d", got)
	}
}

func TestMetricsConcurrentIncrements(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 1000

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricSecondFactorFailure)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricSecondFactorFailure); got != workers*perWorker {
		t.Fatalf("counter = %d, want %d", got, workers*perWorker)
	}
}

func TestNilMetricsSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLogout)
	if m.Value(MetricLogout) != 0 {
		t.Fatal("nil metrics returned a value")
	}
	if m.Enabled() {
		t.Fatal("nil metrics reported enabled")
	}
	if len(m.Snapshot().Counters) != 0 {
		t.Fatal("nil metrics produced a snapshot")
	}
}
