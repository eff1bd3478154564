package proxy

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"gitlab.com/gitlab-org/ai-gateway/internal/config"
)

const maxBodyBytes = 10 << 20

// hop-by-hop and auth headers that never reach the upstream.
var strippedHeaders = map[string]struct{}{
	"Authorization":                {},
	"Cookie":                       {},
	"Host":                         {},
	"X-Gitlab-Authentication-Type": {},
	"X-Gitlab-Unit-Primitive":      {},
}

// Target is a fully rewritten upstream request destination.
type Target struct {
	URL     string
	Headers map[string]string
}

// Rewriter validates a vendor-native request path and produces the upstream
// target with credentials injected.
type Rewriter interface {
	Provider() string
	Rewrite(path string) (Target, error)
}

// ErrPathNotAllowed rejects paths outside the vendor allowlist.
type ErrPathNotAllowed struct{ Path string }

func (e *ErrPathNotAllowed) Error() string {
	return fmt.Sprintf("proxy: path %q not allowed", e.Path)
}

// AnthropicRewriter forwards to the Anthropic Messages API.
type AnthropicRewriter struct {
	cfg config.ProviderConfig
}

func NewAnthropicRewriter(cfg config.ProviderConfig) *AnthropicRewriter {
	// The model client configures the base with /v1 included; proxy paths
	// carry their own /v1 segment.
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	return &AnthropicRewriter{cfg: cfg}
}

func (a *AnthropicRewriter) Provider() string { return "anthropic" }

var anthropicPaths = map[string]struct{}{
	"/v1/messages": {},
	"/v1/complete": {},
}

func (a *AnthropicRewriter) Rewrite(path string) (Target, error) {
	if path == "" {
		path = "/v1/messages"
	}
	if _, ok := anthropicPaths[path]; !ok {
		return Target{}, &ErrPathNotAllowed{Path: path}
	}
	headers := map[string]string{
		"x-api-key":         a.cfg.APIKey,
		"anthropic-version": "2023-06-01",
	}
	for k, v := range a.cfg.Headers {
		headers[k] = v
	}
	return Target{URL: strings.TrimSuffix(a.cfg.BaseURL, "/") + path, Headers: headers}, nil
}

// VertexRewriter forwards to Vertex AI prediction endpoints. Only model
// invocation paths are allowed, never admin or tuning APIs.
type VertexRewriter struct {
	cfg config.ProviderConfig
}

func NewVertexRewriter(cfg config.ProviderConfig) *VertexRewriter {
	cfg.BaseURL = strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	return &VertexRewriter{cfg: cfg}
}

func (v *VertexRewriter) Provider() string { return "vertex-ai" }

var vertexActions = []string{":predict", ":streamGenerateContent", ":generateContent", ":countTokens"}

func (v *VertexRewriter) Rewrite(path string) (Target, error) {
	path = "/" + strings.TrimPrefix(path, "/")
	allowed := strings.HasPrefix(path, "/v1/projects/") && !strings.Contains(path, "..")
	if allowed {
		allowed = false
		for _, action := range vertexActions {
			if strings.HasSuffix(path, action) {
				allowed = true
				break
			}
		}
	}
	if !allowed {
		return Target{}, &ErrPathNotAllowed{Path: path}
	}
	base := v.cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s-aiplatform.googleapis.com", v.cfg.Location)
	}
	headers := map[string]string{}
	if v.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + v.cfg.APIKey
	}
	for name, value := range v.cfg.Headers {
		headers[name] = value
	}
	return Target{URL: strings.TrimSuffix(base, "/") + path, Headers: headers}, nil
}

// Client forwards a vendor-native payload to the rewritten upstream and
// relays the response, streaming included, back to the caller.
type Client struct {
	http     *http.Client
	detector *AbuseDetector
}

func NewClient(timeout time.Duration, detector *AbuseDetector) *Client {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		detector: detector,
	}
}

// Forward sends the inbound body to target and copies the upstream response
// to w as chunks arrive. The HTTP status is committed from the upstream
// status; mid-stream failures can only close the connection.
func (c *Client) Forward(w http.ResponseWriter, r *http.Request, rewriter Rewriter, path string) error {
	target, err := rewriter.Rewrite(path)
	if err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("proxy: read body: %w", err)
	}

	if c.detector != nil {
		go c.detector.Inspect(rewriter.Provider(), path, body)
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("proxy: build request: %w", err)
	}
	for name, values := range r.Header {
		if _, ok := strippedHeaders[http.CanonicalHeaderKey(name)]; ok {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	for name, v := range target.Headers {
		req.Header.Set(name, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("proxy: upstream: %w", err)
	}
	defer resp.Body.Close()

	for _, name := range []string{"Content-Type", "Cache-Control"} {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				// Client went away; the deferred close releases upstream.
				return nil
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			slog.Error("proxy: stream interrupted", "provider", rewriter.Provider(), "error", readErr)
			return nil
		}
	}
}
