package proxy

import (
	"encoding/json"
	"log/slog"
)

// AbuseDetector inspects proxied payloads off the request path. It only ever
// logs; a finding never blocks or alters the response.
type AbuseDetector struct {
	maxPromptBytes int
}

func NewAbuseDetector() *AbuseDetector {
	return &AbuseDetector{maxPromptBytes: 1 << 20}
}

// Inspect runs in its own goroutine. It must not panic on arbitrary bytes.
func (d *AbuseDetector) Inspect(provider, path string, body []byte) {
	if len(body) > d.maxPromptBytes {
		slog.Warn("proxy: oversized payload",
			"provider", provider, "path", path, "bytes", len(body))
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Warn("proxy: non-JSON payload", "provider", provider, "path", path)
		return
	}
	if n, ok := payload["max_tokens"].(float64); ok && n > 64*1024 {
		slog.Warn("proxy: excessive max_tokens request",
			"provider", provider, "path", path, "max_tokens", int(n))
	}
}
