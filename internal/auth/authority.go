package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenLifetime is how long gateway-minted tokens stay valid.
const TokenLifetime = time.Hour

// TokenAuthority signs derived access tokens with the gateway's own key.
type TokenAuthority struct {
	key *rsa.PrivateKey
	kid string
}

func NewTokenAuthority(key *rsa.PrivateKey, kid string) *TokenAuthority {
	return &TokenAuthority{key: key, kid: kid}
}

// LoadSigningKey reads an RSA private key in PKCS#1 or PKCS#8 PEM form.
func LoadSigningKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not RSA")
	}
	return key, nil
}

// Encode mints an RS256 token for sub in realm with the given scope set.
// Issuer and audience are both the gateway. Error paths never include key
// material.
func (ta *TokenAuthority) Encode(sub, realm string, scopes []UnitPrimitive) (string, time.Time, error) {
	if ta == nil || ta.key == nil {
		return "", time.Time{}, errors.New("token authority has no usable signing key")
	}

	now := time.Now()
	expiresAt := now.Add(TokenLifetime)

	scopeStrings := make([]string, len(scopes))
	for i, s := range scopes {
		scopeStrings[i] = string(s)
	}

	claims := gatewayClaims{
		Scopes: scopeStrings,
		Realm:  realm,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    SelfIssuer,
			Audience:  jwt.ClaimStrings{Audience},
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if ta.kid != "" {
		token.Header["kid"] = ta.kid
	}

	signed, err := token.SignedString(ta.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign derived token: %w", err)
	}
	return signed, expiresAt, nil
}

// Key exposes the verification half of the signing key so the gateway can
// serve it through its own JWKS provider.
func (ta *TokenAuthority) Key() Key {
	return Key{KID: ta.kid, Public: &ta.key.PublicKey}
}
