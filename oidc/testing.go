// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// TestSigningKey is an ES256 key which signs test id_tokens.  Its KeyID is
// the key's JWK thumbprint and is set as the "kid" header of every token it
// signs, like the keys published by Entra ID.
type TestSigningKey struct {
	KeyID   string
	Private *ecdsa.PrivateKey
}

// TestGenerateSigningKey will generate a test ECDSA P-256 signing key.
func TestGenerateSigningKey(t *testing.T) *TestSigningKey {
	t.Helper()
	require := require.New(t)
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(err)

	jwk := jose.JSONWebKey{Key: priv.Public(), Algorithm: string(ES256), Use: "sig"}
	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	require.NoError(err)
	return &TestSigningKey{
		KeyID:   base64.RawURLEncoding.EncodeToString(thumbprint),
		Private: priv,
	}
}

// JWKS returns the key set a keys endpoint publishes for the key.
func (k *TestSigningKey) JWKS() *jose.JSONWebKeySet {
	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       k.Private.Public(),
			KeyID:     k.KeyID,
			Algorithm: string(ES256),
			Use:       "sig",
		}},
	}
}

// PEM returns the pem-encoded public and private keys.
func (k *TestSigningKey) PEM(t *testing.T) (pub, priv string) {
	t.Helper()
	require := require.New(t)
	privDER, err := x509.MarshalECPrivateKey(k.Private)
	require.NoError(err)
	pubDER, err := x509.MarshalPKIXPublicKey(k.Private.Public())
	require.NoError(err)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})),
		string(pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: privDER}))
}

// TestIdTokenClaims are the claims of a v2.0 Entra ID id_token.  Zero values
// are left out of the token.
type TestIdTokenClaims struct {
	Issuer            string
	Subject           string
	Audience          string
	Nonce             string
	ObjectID          string
	TenantID          string
	PreferredUsername string
	Name              string
	IssuedAt          time.Time
	Expiry            time.Time

	// Extra claims are added last and replace claims of the same name.
	Extra map[string]interface{}
}

// TestSignIdToken will sign the claims as a compact serialized id_token.
func TestSignIdToken(t *testing.T, k *TestSigningKey, c TestIdTokenClaims) string {
	t.Helper()
	require := require.New(t)

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.ES256, Key: jose.JSONWebKey{Key: k.Private, KeyID: k.KeyID}},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(err)

	std := jwt.Claims{
		Issuer:  c.Issuer,
		Subject: c.Subject,
	}
	if c.Audience != "" {
		std.Audience = jwt.Audience{c.Audience}
	}
	if !c.IssuedAt.IsZero() {
		std.IssuedAt = jwt.NewNumericDate(c.IssuedAt)
		// Entra ID backdates nbf to allow for clock skew
		std.NotBefore = jwt.NewNumericDate(c.IssuedAt.Add(-5 * time.Second))
	}
	if !c.Expiry.IsZero() {
		std.Expiry = jwt.NewNumericDate(c.Expiry)
	}
	private := map[string]interface{}{"ver": "2.0"}
	for name, v := range map[string]string{
		"nonce":              c.Nonce,
		"oid":                c.ObjectID,
		"tid":                c.TenantID,
		"preferred_username": c.PreferredUsername,
		"name":               c.Name,
	} {
		if v != "" {
			private[name] = v
		}
	}
	for name, v := range c.Extra {
		private[name] = v
	}

	raw, err := jwt.Signed(sig).Claims(std).Claims(private).CompactSerialize()
	require.NoError(err)
	return raw
}

// TestGenerateCA will generate a self signed test x509 CA cert for the hosts,
// returning it and its PEM encoding.
func TestGenerateCA(t *testing.T, hosts []string) (*x509.Certificate, string) {
	t.Helper()
	require := require.New(t)

	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(err)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(err)

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{Organization: []string{"Contoso Test CA"}},
		NotBefore:             now,
		NotAfter:              now.Add(2 * time.Minute),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
			continue
		}
		template.DNSNames = append(template.DNSNames, h)
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	require.NoError(err)
	c, err := x509.ParseCertificate(der)
	require.NoError(err)
	return c, string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}
