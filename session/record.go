// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"fmt"
	"time"

	"github.com/hashicorp/cap-webflow/oidc"
)

// Record is the server side state of a user's session.  The raw token values
// it holds never leave the server: only the record's ID is sent to the
// browser, in the session cookie.
type Record struct {
	// ID identifies the record in its Store.
	ID string `json:"id"`

	// TokenCache is the serialized oidc.TokenCache of the signed in account.
	TokenCache string `json:"tokenCache,omitempty"`

	// AccessToken and IdToken are the most recently acquired tokens.
	AccessToken string `json:"accessToken,omitempty"`
	IdToken     string `json:"idToken,omitempty"`

	Account         *oidc.Account `json:"account,omitempty"`
	IsAuthenticated bool          `json:"isAuthenticated"`

	// PKCECodes, AuthCodeURLRequest and AuthCodeRequest belong to a pending
	// login and are cleared once its redirect has been handled.
	PKCECodes          *oidc.PKCECodes          `json:"pkceCodes,omitempty"`
	AuthCodeURLRequest *oidc.AuthCodeURLRequest `json:"authCodeUrlRequest,omitempty"`
	AuthCodeRequest    *oidc.AuthCodeRequest    `json:"authCodeRequest,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasPendingLogin is true when the record holds the requests of a login that
// has been started but not completed.
func (r *Record) HasPendingLogin() bool {
	return r != nil && r.PKCECodes != nil && r.AuthCodeURLRequest != nil && r.AuthCodeRequest != nil
}

// SetPendingLogin stores the login attempt in the record, replacing any
// pending login.
func (r *Record) SetPendingLogin(a *oidc.LoginAttempt) {
	if r == nil || a == nil {
		return
	}
	pkce := a.PKCE
	r.PKCECodes = &pkce
	r.AuthCodeURLRequest = a.URLRequest
	r.AuthCodeRequest = a.CodeRequest
}

// ClearPendingLogin removes the single use requests of a pending login.
func (r *Record) ClearPendingLogin() {
	if r == nil {
		return
	}
	r.PKCECodes = nil
	r.AuthCodeURLRequest = nil
	r.AuthCodeRequest = nil
}

// SetTokens stores the token and its cache as the record's authenticated
// state.
func (r *Record) SetTokens(t *oidc.Token, cache *oidc.TokenCache) error {
	const op = "Record.SetTokens"
	if r == nil || t == nil || cache == nil {
		return fmt.Errorf("%s: record, token and cache are required: %w", op, ErrNilParameter)
	}
	serialized, err := cache.Serialize()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.TokenCache = serialized
	r.AccessToken = string(t.AccessToken)
	r.IdToken = string(t.IdToken)
	r.Account = t.Account
	r.IsAuthenticated = true
	return nil
}

// SetCache stores the token cache without changing the record's current
// tokens.
func (r *Record) SetCache(cache *oidc.TokenCache) error {
	const op = "Record.SetCache"
	if r == nil || cache == nil {
		return fmt.Errorf("%s: record and cache are required: %w", op, ErrNilParameter)
	}
	serialized, err := cache.Serialize()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	r.TokenCache = serialized
	return nil
}

// Cache returns the record's deserialized token cache.
func (r *Record) Cache() (*oidc.TokenCache, error) {
	const op = "Record.Cache"
	if r == nil {
		return nil, fmt.Errorf("%s: record is nil: %w", op, ErrNilParameter)
	}
	cache, err := oidc.DeserializeTokenCache(r.TokenCache)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return cache, nil
}
