// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultSuccessRedirect is used when an AuthState has no SuccessRedirect.
const DefaultSuccessRedirect = "/"

// AuthState is the payload of the oauth "state" parameter.  It's echoed by the
// provider in the authentication response and carries the post-login
// navigation target.  ID makes every issued state unique, even for identical
// SuccessRedirect values.
type AuthState struct {
	SuccessRedirect string `json:"successRedirect"`
	ID              string `json:"id,omitempty"`
}

// NewAuthState creates a new AuthState with a unique ID.  An empty
// successRedirect defaults to DefaultSuccessRedirect.
func NewAuthState(successRedirect string) (*AuthState, error) {
	const op = "oidc.NewAuthState"
	id, err := NewID(WithPrefix("st"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a state's id: %w", op, err)
	}
	if successRedirect == "" {
		successRedirect = DefaultSuccessRedirect
	}
	return &AuthState{
		SuccessRedirect: successRedirect,
		ID:              id,
	}, nil
}

// Encode returns the base64url (no padding) encoded JSON of the state.
func (s *AuthState) Encode() (string, error) {
	const op = "AuthState.Encode"
	if s == nil {
		return "", fmt.Errorf("%s: state is nil: %w", op, ErrNilParameter)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("%s: unable to marshal state: %w", op, err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeAuthState decodes an encoded state.  Padded and standard base64
// encodings are accepted as well.
func DecodeAuthState(encoded string) (*AuthState, error) {
	const op = "oidc.DecodeAuthState"
	if encoded == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrMissingState)
	}
	var (
		b   []byte
		err error
	)
	trimmed := strings.TrimRight(encoded, "=")
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.RawStdEncoding} {
		if b, err = enc.DecodeString(trimmed); err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: state is not base64: %w", op, ErrInvalidState)
	}
	var s AuthState
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%s: state is not json: %w", op, ErrInvalidState)
	}
	if s.SuccessRedirect == "" {
		s.SuccessRedirect = DefaultSuccessRedirect
	}
	return &s, nil
}
