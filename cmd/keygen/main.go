package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"flag"
	"fmt"
	"log"
	"math/big"
	"os"
)

// keygen produces the RSA signing key the token authority uses for derived
// access tokens, plus the matching JWKS document to publish.
func main() {
	keyFile := flag.String("out", "signing.pem", "output path for the private key")
	jwksFile := flag.String("jwks", "", "optional output path for the public JWKS document")
	kid := flag.String("kid", "gitlab-ai-gateway-signing-key", "key id embedded in tokens and JWKS")
	bits := flag.Int("bits", 2048, "RSA key size")
	flag.Parse()

	key, err := rsa.GenerateKey(rand.Reader, *bits)
	if err != nil {
		log.Fatalf("failed to generate key: %v", err)
	}

	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	if err := os.WriteFile(*keyFile, pemBytes, 0o600); err != nil {
		log.Fatalf("failed to write private key: %v", err)
	}

	if *jwksFile != "" {
		jwks, err := marshalJWKS(*kid, &key.PublicKey)
		if err != nil {
			log.Fatalf("failed to build jwks: %v", err)
		}
		if err := os.WriteFile(*jwksFile, jwks, 0o644); err != nil {
			log.Fatalf("failed to write jwks: %v", err)
		}
	}

	fmt.Println("=== AI Gateway Signing Key Generated ===")
	fmt.Println()
	fmt.Printf("  Key ID:      %s\n", *kid)
	fmt.Printf("  Key size:    %d bits\n", *bits)
	fmt.Printf("  Private key: %s\n", *keyFile)
	if *jwksFile != "" {
		fmt.Printf("  Public JWKS: %s\n", *jwksFile)
	}
	fmt.Println()
	fmt.Println("  Keep the private key out of version control.")
	fmt.Println()
	fmt.Println("========================================")
}

func marshalJWKS(kid string, pub *rsa.PublicKey) ([]byte, error) {
	type jwk struct {
		Kty string `json:"kty"`
		Use string `json:"use"`
		Alg string `json:"alg"`
		Kid string `json:"kid"`
		N   string `json:"n"`
		E   string `json:"e"`
	}
	e := big.NewInt(int64(pub.E))
	doc := struct {
		Keys []jwk `json:"keys"`
	}{
		Keys: []jwk{{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			Kid: kid,
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(e.Bytes()),
		}},
	}
	return json.MarshalIndent(doc, "", "  ")
}
