// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// ChallengeMethod represents PKCE code challenge methods as defined by RFC
// 7636.
type ChallengeMethod string

const (
	// PKCE code challenge methods as defined by RFC 7636.
	//
	// See: https://tools.ietf.org/html/rfc7636#page-9
	S256 ChallengeMethod = "S256" // SHA-256
)

const (
	// verifierLen is the length of a generated verifier: 32 random octets
	// base64url encoded without padding.
	verifierLen = 43

	minVerifierLen = 43
	maxVerifierLen = 128
)

// CodeVerifier represents an OAuth PKCE code verifier.
//
// See: https://tools.ietf.org/html/rfc7636#section-4.1
type CodeVerifier interface {
	// Verifier returns the code verifier (see:
	// https://tools.ietf.org/html/rfc7636#section-4.1)
	Verifier() string

	// Challenge returns the code verifier's code challenge (see:
	// https://tools.ietf.org/html/rfc7636#section-4.2)
	Challenge() string

	// Method returns the code verifier's challenge method (see
	// https://tools.ietf.org/html/rfc7636#section-4.2)
	Method() ChallengeMethod

	// Copy returns a copy of the verifier
	Copy() CodeVerifier
}

// S256Verifier represents an OAuth PKCE code verifier that uses the S256
// challenge method.  It implements the CodeVerifier interface.
type S256Verifier struct {
	verifier  string
	challenge string
	method    ChallengeMethod
}

// ensure that S256Verifier implements the CodeVerifier interface
var _ CodeVerifier = (*S256Verifier)(nil)

// NewCodeVerifier creates a new CodeVerifier (*S256Verifier).
//
// See: https://tools.ietf.org/html/rfc7636#section-4.1
func NewCodeVerifier() (*S256Verifier, error) {
	const op = "NewCodeVerifier"
	data := make([]byte, 32)
	if _, err := rand.Read(data); err != nil {
		return nil, fmt.Errorf("%s: unable to read random data: %w", op, err)
	}
	return newS256Verifier(base64.RawURLEncoding.EncodeToString(data))
}

// NewCodeVerifierFromString restores a verifier which was previously issued
// by NewCodeVerifier.  The verifier must be between 43 and 128 characters from
// the unreserved set [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~".
func NewCodeVerifierFromString(verifier string) (*S256Verifier, error) {
	const op = "NewCodeVerifierFromString"
	if err := validVerifier(verifier); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return newS256Verifier(verifier)
}

func newS256Verifier(verifier string) (*S256Verifier, error) {
	const op = "newS256Verifier"
	v := &S256Verifier{
		verifier: verifier,
		method:   S256,
	}
	var err error
	v.challenge, err = CreateCodeChallenge(v.method, v)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	return v, nil
}

func (v *S256Verifier) Verifier() string        { return v.verifier }  // Verifier implements the CodeVerifier.Verifier() interface function.
func (v *S256Verifier) Challenge() string       { return v.challenge } // Challenge implements the CodeVerifier.Challenge() interface function.
func (v *S256Verifier) Method() ChallengeMethod { return v.method }    // Method implements the CodeVerifier.Method() interface function.

// Copy returns a copy of the verifier.
func (v *S256Verifier) Copy() CodeVerifier {
	return &S256Verifier{
		verifier:  v.verifier,
		challenge: v.challenge,
		method:    v.method,
	}
}

// Codes returns the verifier as PKCECodes suitable for storing in a server
// side session.
func (v *S256Verifier) Codes() PKCECodes {
	return PKCECodes{
		Verifier:        v.verifier,
		Challenge:       v.challenge,
		ChallengeMethod: v.method,
	}
}

// PKCECodes are the PKCE values for one login attempt.  The Verifier must never
// leave the server; only the Challenge is sent to the provider.
type PKCECodes struct {
	Verifier        string          `json:"verifier"`
	Challenge       string          `json:"challenge"`
	ChallengeMethod ChallengeMethod `json:"challengeMethod"`
}

// CreateCodeChallenge creates a code challenge from the verifier. Supported
// ChallengeMethods: S256
//
// See: https://tools.ietf.org/html/rfc7636#section-4.2
func CreateCodeChallenge(method ChallengeMethod, v CodeVerifier) (string, error) {
	const op = "CreateCodeChallenge"
	if v == nil {
		return "", fmt.Errorf("%s: code verifier is nil: %w", op, ErrNilParameter)
	}
	switch method {
	case S256:
		h := sha256.Sum256([]byte(v.Verifier()))
		return base64.RawURLEncoding.EncodeToString(h[:]), nil
	default:
		return "", fmt.Errorf("%s: %s is invalid: %w", op, method, ErrUnsupportedChallengeMethod)
	}
}

func validVerifier(v string) error {
	if len(v) < minVerifierLen || len(v) > maxVerifierLen {
		return fmt.Errorf("verifier length %d is not between %d and %d: %w", len(v), minVerifierLen, maxVerifierLen, ErrInvalidCodeVerifier)
	}
	for _, c := range v {
		if !isUnreserved(c) {
			return fmt.Errorf("verifier contains invalid character %q: %w", c, ErrInvalidCodeVerifier)
		}
	}
	return nil
}

func isUnreserved(c rune) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-', c == '.', c == '_', c == '~':
		return true
	}
	return false
}
