package auth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// ErrNoKeys is returned when every configured key provider came back empty.
// This is the critical auth failure: nothing can be verified.
var ErrNoKeys = errors.New("auth: no signing keys available from any provider")

// Key is a single verification key from a JWKS.
type Key struct {
	KID    string
	Public *rsa.PublicKey
}

// KeyProvider supplies verification keys. Implementations must be safe for
// concurrent use.
type KeyProvider interface {
	Name() string
	JWKS(ctx context.Context) ([]Key, error)
}

// jwksDocument is the wire shape of a JSON Web Key Set.
type jwksDocument struct {
	Keys []struct {
		Kty string `json:"kty"`
		Kid string `json:"kid"`
		Use string `json:"use"`
		N   string `json:"n"`
		E   string `json:"e"`
	} `json:"keys"`
}

// RemoteProvider fetches a JWKS document over HTTP.
type RemoteProvider struct {
	name   string
	url    string
	client *http.Client
}

func NewRemoteProvider(name, url string, client *http.Client) *RemoteProvider {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteProvider{name: name, url: url, client: client}
}

func (p *RemoteProvider) Name() string { return p.name }

func (p *RemoteProvider) JWKS(ctx context.Context) ([]Key, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build jwks request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks from %s: %w", p.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks endpoint %s returned status %d", p.url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read jwks body: %w", err)
	}
	return ParseJWKS(body)
}

// ParseJWKS decodes a JWKS document, keeping only usable RSA signature keys.
func ParseJWKS(data []byte) ([]Key, error) {
	var doc jwksDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}

	var keys []Key
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := rsaPublicKey(k.N, k.E)
		if err != nil {
			slog.Warn("skipping malformed jwk", "kid", k.Kid, "error", err)
			continue
		}
		keys = append(keys, Key{KID: k.Kid, Public: pub})
	}
	return keys, nil
}

func rsaPublicKey(n, e string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(eb)
	if !exp.IsInt64() || exp.Int64() <= 0 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp.Int64()),
	}, nil
}

// CompositeProvider merges keys from an ordered provider list behind a TTL
// cache. Refresh is single-writer: concurrent callers wait for the one
// in-flight refresh and share its outcome. A provider failing is logged and
// skipped; all providers coming back empty is ErrNoKeys.
type CompositeProvider struct {
	providers []KeyProvider
	ttl       time.Duration

	mu        sync.Mutex
	cached    []Key
	expiresAt time.Time
}

func NewCompositeProvider(ttl time.Duration, providers ...KeyProvider) *CompositeProvider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CompositeProvider{providers: providers, ttl: ttl}
}

// Keys returns the merged key set, refreshing the cache when expired.
func (c *CompositeProvider) Keys(ctx context.Context) ([]Key, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cached) > 0 && time.Now().Before(c.expiresAt) {
		return c.cached, nil
	}

	merged := c.fetchAll(ctx)
	if len(merged) == 0 {
		// Keep serving a stale set if we have one; otherwise this is critical.
		if len(c.cached) > 0 {
			slog.Warn("jwks refresh returned no keys, serving stale set")
			return c.cached, nil
		}
		return nil, ErrNoKeys
	}

	c.cached = merged
	c.expiresAt = time.Now().Add(c.ttl)
	return merged, nil
}

func (c *CompositeProvider) fetchAll(ctx context.Context) []Key {
	type result struct {
		name string
		keys []Key
		err  error
	}

	results := make(chan result, len(c.providers))
	for _, p := range c.providers {
		go func(p KeyProvider) {
			keys, err := p.JWKS(ctx)
			results <- result{name: p.Name(), keys: keys, err: err}
		}(p)
	}

	var merged []Key
	for range c.providers {
		r := <-results
		if r.err != nil {
			slog.Error("jwks provider failed", "provider", r.name, "error", r.err)
			continue
		}
		merged = append(merged, r.keys...)
	}
	return merged
}

// LocalProvider serves a fixed key set, used for the gateway's own signing
// key and in tests.
type LocalProvider struct {
	name string
	keys []Key
}

func NewLocalProvider(name string, keys ...Key) *LocalProvider {
	return &LocalProvider{name: name, keys: keys}
}

func (p *LocalProvider) Name() string { return p.name }

func (p *LocalProvider) JWKS(ctx context.Context) ([]Key, error) {
	return p.keys, nil
}
