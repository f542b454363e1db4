// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/url"
)

// Account identifies the signed in user, derived from the claims of a verified
// id_token.
type Account struct {
	// HomeAccountID is "{oid}.{tid}", the account's unique id.
	HomeAccountID string `json:"homeAccountId"`

	// Environment is the host of the token's issuer.
	Environment string `json:"environment,omitempty"`

	TenantID       string `json:"tenantId,omitempty"`
	LocalAccountID string `json:"localAccountId,omitempty"`
	Username       string `json:"username"`
	Name           string `json:"name,omitempty"`

	// Claims are the id_token claims the account was created from.
	Claims map[string]interface{} `json:"idTokenClaims,omitempty"`
}

// NewAccount creates an Account from id_token claims.  The oid claim is the
// local account id, falling back to sub.  The username is the first of the
// preferred_username, upn and email claims.
func NewAccount(claims map[string]interface{}) (*Account, error) {
	const op = "oidc.NewAccount"
	if claims == nil {
		return nil, fmt.Errorf("%s: claims are nil: %w", op, ErrNilParameter)
	}
	str := func(names ...string) string {
		for _, n := range names {
			if v, ok := claims[n].(string); ok && v != "" {
				return v
			}
		}
		return ""
	}
	local := str("oid", "sub")
	if local == "" {
		return nil, fmt.Errorf("%s: claims have no oid or sub: %w", op, ErrInvalidParameter)
	}
	tid := str("tid")
	home := local
	if tid != "" {
		home = local + "." + tid
	}
	var env string
	if iss := str("iss"); iss != "" {
		if u, err := url.Parse(iss); err == nil {
			env = u.Host
		}
	}
	return &Account{
		HomeAccountID:  home,
		Environment:    env,
		TenantID:       tid,
		LocalAccountID: local,
		Username:       str("preferred_username", "upn", "email"),
		Name:           str("name"),
		Claims:         claims,
	}, nil
}
