package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func newTestAuthenticator(t *testing.T, authority *TokenAuthority) *Authenticator {
	t.Helper()
	keys := NewCompositeProvider(time.Hour, NewLocalProvider("self", authority.Key()))
	return NewAuthenticator(keys, NewCertChainVerifier(nil))
}

func TestEncodeAuthenticateRoundtrip(t *testing.T) {
	authority := NewTokenAuthority(testKey(t), "test-kid")
	authenticator := newTestAuthenticator(t, authority)

	before := time.Now()
	token, expiresAt, err := authority.Encode("instance-uid", "self-managed", []UnitPrimitive{UnitPrimitiveCodeSuggestions})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got, want := expiresAt.Sub(before), TokenLifetime; got < want-time.Minute || got > want+time.Minute {
		t.Errorf("expiry %v from now, want about %v", got, want)
	}

	user, err := authenticator.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !user.Authenticated {
		t.Fatal("user not authenticated")
	}
	if user.Claims.Issuer != SelfIssuer {
		t.Errorf("Issuer = %q, want %q", user.Claims.Issuer, SelfIssuer)
	}
	if user.Claims.Subject != "instance-uid" {
		t.Errorf("Subject = %q", user.Claims.Subject)
	}
	if user.Claims.Realm != "self-managed" {
		t.Errorf("Realm = %q", user.Claims.Realm)
	}
	if len(user.Claims.Scopes) != 1 || user.Claims.Scopes[0] != UnitPrimitiveCodeSuggestions {
		t.Errorf("Scopes = %v", user.Claims.Scopes)
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	authority := NewTokenAuthority(testKey(t), "test-kid")
	authenticator := newTestAuthenticator(t, authority)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		user, err := authenticator.Authenticate(context.Background(), token)
		if err != nil {
			t.Fatalf("Authenticate(%q): %v", token, err)
		}
		if user.Authenticated {
			t.Errorf("Authenticate(%q) succeeded", token)
		}
	}
}

func TestAuthenticateRejectsWrongKey(t *testing.T) {
	authority := NewTokenAuthority(testKey(t), "test-kid")
	authenticator := newTestAuthenticator(t, authority)

	other := NewTokenAuthority(testKey(t), "test-kid")
	token, _, err := other.Encode("sub", "saas", []UnitPrimitive{UnitPrimitiveDuoChat})
	if err != nil {
		t.Fatal(err)
	}

	user, err := authenticator.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if user.Authenticated {
		t.Error("token signed with a foreign key must not authenticate")
	}
}

func TestAuthenticateWithoutKIDHeader(t *testing.T) {
	key := testKey(t)
	authority := NewTokenAuthority(key, "jwks-kid")
	authenticator := newTestAuthenticator(t, authority)

	claims := gatewayClaims{
		Scopes: []string{"duo_chat"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "gitlab-rails",
			Audience:  jwt.ClaimStrings{Audience},
			Subject:   "sub",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	for name, kid := range map[string]string{"no kid": "", "unknown kid": "other-kid"} {
		t.Run(name, func(t *testing.T) {
			tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
			if kid != "" {
				tok.Header["kid"] = kid
			}
			signed, err := tok.SignedString(key)
			if err != nil {
				t.Fatal(err)
			}

			user, err := authenticator.Authenticate(context.Background(), signed)
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if !user.Authenticated {
				t.Fatal("known signing key must authenticate without a kid match")
			}
		})
	}
}

func TestAuthenticateRejectsWrongAudience(t *testing.T) {
	key := testKey(t)
	authority := NewTokenAuthority(key, "test-kid")
	authenticator := newTestAuthenticator(t, authority)

	claims := gatewayClaims{
		Scopes: []string{"duo_chat"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    SelfIssuer,
			Audience:  jwt.ClaimStrings{"someone-else"},
			Subject:   "sub",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "test-kid"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	user, err := authenticator.Authenticate(context.Background(), signed)
	if err != nil {
		t.Fatal(err)
	}
	if user.Authenticated {
		t.Error("token with a foreign audience must not authenticate")
	}
}

func TestAuthenticateDropsUnknownScopes(t *testing.T) {
	key := testKey(t)
	authority := NewTokenAuthority(key, "test-kid")
	authenticator := newTestAuthenticator(t, authority)

	claims := gatewayClaims{
		Scopes: []string{"duo_chat", "launch_missiles"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "gitlab-rails",
			Audience:  jwt.ClaimStrings{Audience},
			Subject:   "sub",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "test-kid"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}

	user, err := authenticator.Authenticate(context.Background(), signed)
	if err != nil {
		t.Fatal(err)
	}
	if !user.Authenticated {
		t.Fatal("token rejected")
	}
	if len(user.Claims.Scopes) != 1 || user.Claims.Scopes[0] != UnitPrimitiveDuoChat {
		t.Errorf("Scopes = %v, want only duo_chat", user.Claims.Scopes)
	}
}

func TestAuthenticateNoKeys(t *testing.T) {
	keys := NewCompositeProvider(time.Hour, NewLocalProvider("empty"))
	authenticator := NewAuthenticator(keys, NewCertChainVerifier(nil))

	if _, err := authenticator.Authenticate(context.Background(), "whatever"); !errors.Is(err, ErrNoKeys) {
		t.Errorf("err = %v, want ErrNoKeys", err)
	}
}

func TestUserCan(t *testing.T) {
	tests := []struct {
		name       string
		user       *User
		primitive  UnitPrimitive
		disallowed []string
		want       bool
	}{
		{
			name:      "granted scope",
			user:      &User{Authenticated: true, Claims: UserClaims{Scopes: []UnitPrimitive{UnitPrimitiveDuoChat}}},
			primitive: UnitPrimitiveDuoChat,
			want:      true,
		},
		{
			name:      "missing scope",
			user:      &User{Authenticated: true, Claims: UserClaims{Scopes: []UnitPrimitive{UnitPrimitiveDuoChat}}},
			primitive: UnitPrimitiveCodeSuggestions,
			want:      false,
		},
		{
			name:      "unauthenticated",
			user:      &User{Claims: UserClaims{Scopes: []UnitPrimitive{UnitPrimitiveDuoChat}}},
			primitive: UnitPrimitiveDuoChat,
			want:      false,
		},
		{
			name:      "debug bypasses everything",
			user:      &User{IsDebug: true},
			primitive: UnitPrimitiveExplainVulnerability,
			want:      true,
		},
		{
			name: "disallowed issuer",
			user: &User{Authenticated: true, Claims: UserClaims{
				Scopes: []UnitPrimitive{UnitPrimitiveCodeSuggestions},
				Issuer: SelfIssuer,
			}},
			primitive:  UnitPrimitiveCodeSuggestions,
			disallowed: []string{SelfIssuer},
			want:       false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.Can(tt.primitive, tt.disallowed...); got != tt.want {
				t.Errorf("Can = %v, want %v", got, tt.want)
			}
		})
	}
}
