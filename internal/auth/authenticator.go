package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
)

// Audience is the JWT audience the gateway accepts and issues.
const Audience = "gitlab-ai-gateway"

// SelfIssuer is the issuer of tokens minted by this gateway's TokenAuthority.
const SelfIssuer = "gitlab-ai-gateway"

// gatewayClaims is the raw claim set carried by access tokens.
type gatewayClaims struct {
	Scopes       []string `json:"scopes"`
	Realm        string   `json:"gitlab_realm"`
	InstanceID   string   `json:"gitlab_instance_id"`
	DuoSeatCount int      `json:"duo_seat_count,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies bearer tokens against the merged JWKS, with a
// certificate-chain fallback for tokens that embed an x5c header.
type Authenticator struct {
	keys  *CompositeProvider
	certs *CertChainVerifier
}

func NewAuthenticator(keys *CompositeProvider, certs *CertChainVerifier) *Authenticator {
	return &Authenticator{keys: keys, certs: certs}
}

// Authenticate decodes and verifies token. An invalid or unverifiable token
// yields an unauthenticated User, not an error; the only error path is the
// critical one where no verification keys exist at all.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*User, error) {
	keys, err := a.keys.Keys(ctx)
	if err != nil {
		if errors.Is(err, ErrNoKeys) {
			return nil, err
		}
		slog.Error("jwks lookup failed", "error", err)
		return &User{}, nil
	}

	byKID := make(map[string]Key, len(keys))
	for _, k := range keys {
		byKID[k.KID] = k
	}

	claims := &gatewayClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if chain, ok := x5cHeader(t); ok {
			pub, err := a.certs.VerifyChain(chain)
			if err != nil {
				return nil, err
			}
			return pub, nil
		}
		kid, _ := t.Header["kid"].(string)
		if k, ok := byKID[kid]; ok {
			return k.Public, nil
		}
		// No kid match: try every key. Small sets, and some issuers omit kid.
		set := jwt.VerificationKeySet{Keys: make([]jwt.VerificationKey, 0, len(keys))}
		for _, k := range keys {
			set.Keys = append(set.Keys, k.Public)
		}
		return set, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(Audience),
	)
	if err != nil || !parsed.Valid {
		slog.Info("token rejected", "error", err)
		return &User{}, nil
	}

	var scopes []UnitPrimitive
	for _, s := range claims.Scopes {
		p, ok := ParseUnitPrimitive(s)
		if !ok {
			// Unknown scopes are dropped silently.
			continue
		}
		scopes = append(scopes, p)
	}

	return &User{
		Authenticated: true,
		Claims: UserClaims{
			Scopes:       scopes,
			Subject:      claims.Subject,
			Issuer:       claims.Issuer,
			Realm:        claims.Realm,
			InstanceID:   claims.InstanceID,
			DuoSeatCount: claims.DuoSeatCount,
		},
	}, nil
}

func x5cHeader(t *jwt.Token) ([]string, bool) {
	raw, ok := t.Header["x5c"]
	if !ok {
		return nil, false
	}
	entries, ok := raw.([]any)
	if !ok || len(entries) == 0 {
		return nil, false
	}
	chain := make([]string, 0, len(entries))
	for _, e := range entries {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		chain = append(chain, s)
	}
	return chain, true
}
