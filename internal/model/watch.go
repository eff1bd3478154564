package model

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"gitlab.com/gitlab-org/ai-gateway/internal/telemetry"
)

// Watcher brackets every model invocation with concurrency and latency
// accounting. One Watcher is shared process-wide; each request opens its own
// Scope per call.
type Watcher struct {
	metrics *telemetry.Metrics
	limits  map[string]int

	mu   sync.Mutex
	sems map[string]chan struct{}
}

// NewWatcher builds a watcher. limits caps in-flight calls per
// "<engine>/<model>" pair; pairs without an entry are unbounded.
func NewWatcher(metrics *telemetry.Metrics, limits map[string]int) *Watcher {
	return &Watcher{
		metrics: metrics,
		limits:  limits,
		sems:    make(map[string]chan struct{}),
	}
}

func (w *Watcher) semaphore(key string, limit int) chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	sem, ok := w.sems[key]
	if !ok {
		sem = make(chan struct{}, limit)
		w.sems[key] = sem
	}
	return sem
}

// Watch opens an instrumented scope for one model call. When a concurrency
// limit is configured for the pair, entry blocks until a slot frees up or ctx
// is done. The returned Scope must be finished exactly once.
func (w *Watcher) Watch(ctx context.Context, engine, name string, streaming bool) (*Scope, error) {
	key := engine + "/" + name

	var sem chan struct{}
	if limit, ok := w.limits[key]; ok && limit > 0 {
		w.metrics.ModelConcurrencyLimit.WithLabelValues(engine, name).Set(float64(limit))
		sem = w.semaphore(key, limit)
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s slot: %w", key, ctx.Err())
		}
	}

	w.metrics.ModelInflight.WithLabelValues(engine, name).Inc()

	return &Scope{
		watcher:   w,
		engine:    engine,
		name:      name,
		streaming: streaming,
		sem:       sem,
		start:     time.Now(),
	}, nil
}

// Scope is one live watch bracket. Reentrant-safe within a request; never
// shared across requests.
type Scope struct {
	watcher   *Watcher
	engine    string
	name      string
	streaming bool
	sem       chan struct{}
	start     time.Time

	firstOnce  sync.Once
	finishOnce sync.Once
}

// ObserveFirstResponse records time-to-first-response. Called on the first
// streamed chunk, or right before Finish for buffered calls.
func (s *Scope) ObserveFirstResponse() {
	s.firstOnce.Do(func() {
		s.watcher.metrics.ModelFirstChunkSeconds.
			WithLabelValues(s.engine, s.name, strconv.FormatBool(s.streaming)).
			Observe(time.Since(s.start).Seconds())
	})
}

// Finish closes the scope: decrements the in-flight gauge, frees the
// concurrency slot, and logs the failure with model labels when err != nil.
// Safe to call multiple times; only the first call counts.
func (s *Scope) Finish(err error) {
	s.finishOnce.Do(func() {
		if !s.streaming {
			s.ObserveFirstResponse()
		}
		s.watcher.metrics.ModelInflight.WithLabelValues(s.engine, s.name).Dec()
		if s.sem != nil {
			<-s.sem
		}
		if err != nil {
			slog.Error("model invocation failed",
				"model_engine", s.engine,
				"model_name", s.name,
				"streaming", s.streaming,
				"duration_ms", time.Since(s.start).Milliseconds(),
				"error", err,
			)
		}
	})
}
