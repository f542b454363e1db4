// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCache(t *testing.T) {
	t.Parallel()
	expiry := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	alice := &Account{HomeAccountID: "alice.tid", Username: "alice@contoso.com"}
	bob := &Account{HomeAccountID: "bob.tid", Username: "bob@contoso.com"}

	t.Run("serialize-round-trip", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := NewTokenCache()
		c.Add(&Token{
			AccessToken:  "alice-at",
			IdToken:      "alice-idt",
			RefreshToken: "alice-rt",
			Expiry:       expiry,
			Scopes:       []string{"User.Read"},
			Account:      alice,
		})
		c.Add(&Token{AccessToken: "bob-at", Account: bob})

		s, err := c.Serialize()
		require.NoError(err)
		// raw tokens are kept, the blob only lives server side
		assert.Contains(s, "alice-rt")

		got, err := DeserializeTokenCache(s)
		require.NoError(err)
		assert.Equal([]Account{*alice, *bob}, got.Accounts())

		tk, ok := got.Lookup(alice.HomeAccountID)
		require.True(ok)
		assert.Equal(AccessToken("alice-at"), tk.AccessToken)
		assert.Equal(IdToken("alice-idt"), tk.IdToken)
		assert.Equal(RefreshToken("alice-rt"), tk.RefreshToken)
		assert.True(expiry.Equal(tk.Expiry))
		assert.Equal([]string{"User.Read"}, tk.Scopes)
		assert.Equal(alice, tk.Account)
	})
	t.Run("keeps-refresh-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c := NewTokenCache()
		c.Add(&Token{AccessToken: "at-1", RefreshToken: "rt-1", Account: alice})
		c.Add(&Token{AccessToken: "at-2", Account: alice})
		tk, ok := c.Lookup(alice.HomeAccountID)
		require.True(ok)
		assert.Equal(AccessToken("at-2"), tk.AccessToken)
		assert.Equal(RefreshToken("rt-1"), tk.RefreshToken)

		c.Add(&Token{AccessToken: "at-3", RefreshToken: "rt-3", Account: alice})
		tk, _ = c.Lookup(alice.HomeAccountID)
		assert.Equal(RefreshToken("rt-3"), tk.RefreshToken)
	})
	t.Run("remove", func(t *testing.T) {
		assert := assert.New(t)
		c := NewTokenCache()
		c.Add(&Token{AccessToken: "at", Account: alice})
		c.Remove(alice.HomeAccountID)
		_, ok := c.Lookup(alice.HomeAccountID)
		assert.False(ok)
		assert.Empty(c.Accounts())
	})
	t.Run("ignores-tokens-without-account", func(t *testing.T) {
		assert := assert.New(t)
		c := NewTokenCache()
		c.Add(&Token{AccessToken: "at"})
		c.Add(nil)
		assert.Empty(c.Accounts())
	})
	t.Run("deserialize-empty", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		c, err := DeserializeTokenCache("")
		require.NoError(err)
		assert.Empty(c.Accounts())
	})
	t.Run("deserialize-invalid", func(t *testing.T) {
		assert := assert.New(t)
		_, err := DeserializeTokenCache("not json")
		assert.ErrorIs(err, ErrInvalidParameter)
		_, err = DeserializeTokenCache(`{"version":99}`)
		assert.ErrorIs(err, ErrInvalidParameter)
	})
	t.Run("nil-cache", func(t *testing.T) {
		assert := assert.New(t)
		var c *TokenCache
		_, err := c.Serialize()
		assert.ErrorIs(err, ErrNilParameter)
		_, ok := c.Lookup("x")
		assert.False(ok)
		assert.Nil(c.Accounts())
	})
}
