// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenExpirySkew defines a time skew when checking a Token's
// expiration.
const DefaultTokenExpirySkew = 10 * time.Second

// Token is the set of tokens for one account, as returned by a code exchange
// or a silent acquisition.
type Token struct {
	AccessToken  AccessToken  `json:"access_token"`
	IdToken      IdToken      `json:"id_token"`
	RefreshToken RefreshToken `json:"refresh_token,omitempty"`

	// Expiry is the access token's expiration time.  A zero Expiry never
	// expires.
	Expiry time.Time `json:"expiry"`

	// Scopes are the scopes granted for the access token.
	Scopes []string `json:"scopes"`

	Account *Account `json:"account"`
}

// newToken creates a Token from an oauth2 token.  The granted scopes come
// from the token response and default to requested.
func newToken(t *oauth2.Token, idToken IdToken, account *Account, requested []string) *Token {
	scopes := requested
	if granted, ok := t.Extra("scope").(string); ok && granted != "" {
		scopes = strings.Fields(granted)
	}
	return &Token{
		AccessToken:  AccessToken(t.AccessToken),
		IdToken:      idToken,
		RefreshToken: RefreshToken(t.RefreshToken),
		Expiry:       t.Expiry,
		Scopes:       scopes,
		Account:      account,
	}
}

// IsExpired will return true if the token's access token is expired.
//
// Supported options: WithNow, WithExpirySkew
func (t *Token) IsExpired(opt ...Option) bool {
	if t.Expiry.IsZero() {
		return false
	}
	opts := getTokenOpts(opt...)
	return t.Expiry.Round(0).Before(opts.withNowFunc().Add(opts.withExpirySkew))
}

// Valid will ensure that the access_token is not empty or expired.
//
// Supported options: WithNow, WithExpirySkew
func (t *Token) Valid(opt ...Option) bool {
	if t == nil {
		return false
	}
	if t.AccessToken == "" {
		return false
	}
	return !t.IsExpired(opt...)
}

// tokenOptions is the set of available options for Token functions
type tokenOptions struct {
	withNowFunc    func() time.Time
	withExpirySkew time.Duration
}

// tokenDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{
		withNowFunc:    time.Now,
		withExpirySkew: DefaultTokenExpirySkew,
	}
}

// getTokenOpts gets the token defaults and applies the opt overrides passed in
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// UnmarshalClaims will retrieve the claims from the provided raw JWT token.
// It does not verify the token's signature.
func UnmarshalClaims(rawToken string, claims interface{}) error {
	const op = "UnmarshalClaims"
	parts := strings.Split(rawToken, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%s: malformed jwt, expected 3 parts got %d: %w", op, len(parts), ErrInvalidParameter)
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("%s: malformed jwt claims: %s: %w", op, err, ErrMalformedToken)
	}
	if err := json.Unmarshal(raw, claims); err != nil {
		return fmt.Errorf("%s: unable to marshal jwt JSON: %w", op, err)
	}
	return nil
}
