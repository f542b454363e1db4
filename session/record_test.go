// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/hashicorp/cap-webflow/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_PendingLogin(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	attempt, err := oidc.NewLoginAttempt(time.Minute, "https://example.com/auth/redirect", oidc.WithScopes("User.Read"))
	require.NoError(err)

	r := &Record{ID: "s1"}
	assert.False(r.HasPendingLogin())
	r.SetPendingLogin(attempt)
	assert.True(r.HasPendingLogin())
	assert.Equal(attempt.PKCE.Verifier, r.PKCECodes.Verifier)
	assert.Equal(attempt.URLRequest.State, r.AuthCodeURLRequest.State)

	// the pending login survives the store's encoding
	data, err := json.Marshal(r)
	require.NoError(err)
	var decoded Record
	require.NoError(json.Unmarshal(data, &decoded))
	assert.True(decoded.HasPendingLogin())
	assert.Equal(attempt.PKCE.Verifier, decoded.PKCECodes.Verifier)
	assert.Equal(attempt.CodeRequest.Nonce, decoded.AuthCodeRequest.Nonce)
	assert.Equal(attempt.URLRequest.Scopes, decoded.AuthCodeURLRequest.Scopes)

	r.ClearPendingLogin()
	assert.False(r.HasPendingLogin())

	var nilRecord *Record
	assert.False(nilRecord.HasPendingLogin())
	nilRecord.ClearPendingLogin()
}

func TestRecord_SetTokens(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tk := &oidc.Token{
		AccessToken:  "at",
		IdToken:      "header.payload.sig",
		RefreshToken: "rt",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
		Scopes:       []string{"User.Read"},
		Account:      &oidc.Account{HomeAccountID: "oid.tid", Username: "alice@contoso.com"},
	}
	cache := oidc.NewTokenCache()
	cache.Add(tk)

	r := &Record{ID: "s1"}
	require.NoError(r.SetTokens(tk, cache))
	assert.True(r.IsAuthenticated)
	assert.Equal("at", r.AccessToken)
	assert.Equal("header.payload.sig", r.IdToken)
	assert.Equal("alice@contoso.com", r.Account.Username)
	assert.NotEmpty(r.TokenCache)

	restored, err := r.Cache()
	require.NoError(err)
	got, ok := restored.Lookup("oid.tid")
	require.True(ok)
	assert.Equal(oidc.RefreshToken("rt"), got.RefreshToken)

	assert.ErrorIs(r.SetTokens(nil, cache), ErrNilParameter)
	assert.ErrorIs(r.SetTokens(tk, nil), ErrNilParameter)

	empty, err := (&Record{}).Cache()
	require.NoError(err)
	assert.Empty(empty.Accounts())
}

func TestRecord_SetCache(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	signedIn := &oidc.Token{
		AccessToken:  "at",
		RefreshToken: "rt",
		Expiry:       time.Now().Add(time.Hour),
		Account:      &oidc.Account{HomeAccountID: "oid.tid"},
	}
	cache := oidc.NewTokenCache()
	cache.Add(signedIn)
	r := &Record{ID: "s1"}
	require.NoError(r.SetTokens(signedIn, cache))

	rotated := *signedIn
	rotated.AccessToken, rotated.RefreshToken = "at2", "rt2"
	cache.Add(&rotated)
	require.NoError(r.SetCache(cache))
	assert.True(r.IsAuthenticated)
	assert.Equal("at", r.AccessToken)

	restored, err := r.Cache()
	require.NoError(err)
	got, ok := restored.Lookup("oid.tid")
	require.True(ok)
	assert.Equal(oidc.RefreshToken("rt2"), got.RefreshToken)

	assert.ErrorIs(r.SetCache(nil), ErrNilParameter)
	var nilRecord *Record
	assert.ErrorIs(nilRecord.SetCache(cache), ErrNilParameter)
}
