package telemetry

import (
	"context"
	"strings"
	"sync"
)

// FlagSet is the process-wide feature flag keyset. Per-request overrides are
// layered on top through the context; IsEnabled consults the overlay first.
type FlagSet struct {
	mu      sync.RWMutex
	enabled map[string]bool
}

func NewFlagSet(enabled ...string) *FlagSet {
	m := make(map[string]bool, len(enabled))
	for _, f := range enabled {
		m[f] = true
	}
	return &FlagSet{enabled: m}
}

// Set updates a process-wide flag (used by config reload).
func (fs *FlagSet) Set(flag string, on bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.enabled[flag] = on
}

type flagOverlayKey struct{}

// ContextWithOverrides parses a comma-separated flag list from a request
// header into a per-request overlay.
func (fs *FlagSet) ContextWithOverrides(ctx context.Context, header string) context.Context {
	if header == "" {
		return ctx
	}
	overlay := make(map[string]bool)
	for _, f := range strings.Split(header, ",") {
		if f = strings.TrimSpace(f); f != "" {
			overlay[f] = true
		}
	}
	return context.WithValue(ctx, flagOverlayKey{}, overlay)
}

// IsEnabled reports whether the flag is on for this request.
func (fs *FlagSet) IsEnabled(ctx context.Context, flag string) bool {
	if overlay, ok := ctx.Value(flagOverlayKey{}).(map[string]bool); ok {
		if on, ok := overlay[flag]; ok {
			return on
		}
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.enabled[flag]
}
