package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
)

func inflightValue(t *testing.T, m *telemetry.Metrics, engine, name string) float64 {
	t.Helper()
	var out dto.Metric
	if err := m.ModelInflight.WithLabelValues(engine, name).Write(&out); err != nil {
		t.Fatal(err)
	}
	return out.GetGauge().GetValue()
}

func TestWatchTracksInflight(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	w := NewWatcher(metrics, nil)

	scope, err := w.Watch(context.Background(), "anthropic", "claude", true)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	if got := inflightValue(t, metrics, "anthropic", "claude"); got != 1 {
		t.Errorf("inflight after Watch = %v, want 1", got)
	}

	scope.Finish(nil)
	if got := inflightValue(t, metrics, "anthropic", "claude"); got != 0 {
		t.Errorf("inflight after Finish = %v, want 0", got)
	}
}

func TestScopeFinishIdempotent(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	w := NewWatcher(metrics, nil)

	scope, err := w.Watch(context.Background(), "vertex-ai", "code-gecko", false)
	if err != nil {
		t.Fatal(err)
	}
	scope.Finish(errors.New("upstream failed"))
	scope.Finish(nil)
	scope.Finish(nil)

	if got := inflightValue(t, metrics, "vertex-ai", "code-gecko"); got != 0 {
		t.Errorf("inflight = %v, want 0 after repeated Finish", got)
	}
}

func TestWatchConcurrencyLimit(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	w := NewWatcher(metrics, map[string]int{"anthropic/claude": 1})

	first, err := w.Watch(context.Background(), "anthropic", "claude", false)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := w.Watch(ctx, "anthropic", "claude", false); err == nil {
		t.Fatal("second Watch should block until the slot frees, then fail on ctx")
	}

	first.Finish(nil)

	second, err := w.Watch(context.Background(), "anthropic", "claude", false)
	if err != nil {
		t.Fatalf("Watch after Finish: %v", err)
	}
	second.Finish(nil)
}

func TestWatchUnlimitedPair(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	w := NewWatcher(metrics, map[string]int{"anthropic/claude": 1})

	// No limit entry for this pair: never blocks.
	for i := 0; i < 5; i++ {
		scope, err := w.Watch(context.Background(), "vertex-ai", "gecko", false)
		if err != nil {
			t.Fatal(err)
		}
		defer scope.Finish(nil)
	}
	if got := inflightValue(t, metrics, "vertex-ai", "gecko"); got != 5 {
		t.Errorf("inflight = %v, want 5", got)
	}
}
