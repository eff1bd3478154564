package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
)

// CertChainVerifier verifies an x5c certificate chain embedded in a token
// header against a trust store of root certificates and yields the verified
// leaf's public key. Results are one-shot; nothing is cached.
type CertChainVerifier struct {
	roots *x509.CertPool
}

func NewCertChainVerifier(roots *x509.CertPool) *CertChainVerifier {
	return &CertChainVerifier{roots: roots}
}

// LoadCertPool reads PEM root certificates from a file.
func LoadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read root certificates %s: %w", path, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

// VerifyChain parses the base64 DER chain (leaf first, then intermediates),
// verifies it against the trust store, and returns the leaf's RSA public key.
func (v *CertChainVerifier) VerifyChain(x5c []string) (*rsa.PublicKey, error) {
	if v == nil || v.roots == nil {
		return nil, errors.New("certificate chain verification not configured")
	}
	if len(x5c) == 0 {
		return nil, errors.New("empty x5c chain")
	}

	certs := make([]*x509.Certificate, 0, len(x5c))
	for i, entry := range x5c {
		der, err := base64.StdEncoding.DecodeString(entry)
		if err != nil {
			return nil, fmt.Errorf("decode x5c entry %d: %w", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("parse x5c entry %d: %w", i, err)
		}
		certs = append(certs, cert)
	}

	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}

	leaf := certs[0]
	if _, err := leaf.Verify(x509.VerifyOptions{
		Roots:         v.roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return nil, fmt.Errorf("verify certificate chain: %w", err)
	}

	pub, ok := leaf.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("leaf certificate does not carry an RSA key")
	}
	return pub, nil
}
