// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// tokenCacheVersion is the version of the serialized cache format.
const tokenCacheVersion = 1

// TokenCache holds the tokens of the accounts signed in to one session.  It's
// not safe for concurrent use; a session owns its cache.
//
// The serialized cache contains unredacted tokens and must only be stored
// server side.
type TokenCache struct {
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	Account      Account   `json:"account"`
	AccessToken  string    `json:"accessToken,omitempty"`
	IdToken      string    `json:"idToken,omitempty"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`
	ExpiresOn    time.Time `json:"expiresOn"`
}

type serializedCache struct {
	Version  int                    `json:"version"`
	Accounts map[string]*cacheEntry `json:"accounts"`
}

// NewTokenCache returns an empty TokenCache.
func NewTokenCache() *TokenCache {
	return &TokenCache{entries: map[string]*cacheEntry{}}
}

// Add stores the token for its account, replacing any previous tokens.  A
// token without a refresh token keeps the previously cached one.
func (c *TokenCache) Add(t *Token) {
	if c == nil || t == nil || t.Account == nil {
		return
	}
	if c.entries == nil {
		c.entries = map[string]*cacheEntry{}
	}
	e := &cacheEntry{
		Account:      *t.Account,
		AccessToken:  string(t.AccessToken),
		IdToken:      string(t.IdToken),
		RefreshToken: string(t.RefreshToken),
		Scopes:       t.Scopes,
		ExpiresOn:    t.Expiry,
	}
	if prev, ok := c.entries[t.Account.HomeAccountID]; ok && e.RefreshToken == "" {
		e.RefreshToken = prev.RefreshToken
	}
	c.entries[t.Account.HomeAccountID] = e
}

// Lookup returns the cached token for the home account id.
func (c *TokenCache) Lookup(homeAccountID string) (*Token, bool) {
	if c == nil {
		return nil, false
	}
	e, ok := c.entries[homeAccountID]
	if !ok {
		return nil, false
	}
	acct := e.Account
	return &Token{
		AccessToken:  AccessToken(e.AccessToken),
		IdToken:      IdToken(e.IdToken),
		RefreshToken: RefreshToken(e.RefreshToken),
		Expiry:       e.ExpiresOn,
		Scopes:       e.Scopes,
		Account:      &acct,
	}, true
}

// Remove deletes the tokens of the home account id.
func (c *TokenCache) Remove(homeAccountID string) {
	if c == nil {
		return
	}
	delete(c.entries, homeAccountID)
}

// Accounts returns the cached accounts ordered by home account id.
func (c *TokenCache) Accounts() []Account {
	if c == nil {
		return nil
	}
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	accts := make([]Account, 0, len(ids))
	for _, id := range ids {
		accts = append(accts, c.entries[id].Account)
	}
	return accts
}

// Serialize returns the cache as an opaque string.
func (c *TokenCache) Serialize() (string, error) {
	const op = "TokenCache.Serialize"
	if c == nil {
		return "", fmt.Errorf("%s: token cache is nil: %w", op, ErrNilParameter)
	}
	b, err := json.Marshal(serializedCache{
		Version:  tokenCacheVersion,
		Accounts: c.entries,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(b), nil
}

// DeserializeTokenCache restores a cache returned by Serialize.  An empty
// string is an empty cache.
func DeserializeTokenCache(s string) (*TokenCache, error) {
	const op = "oidc.DeserializeTokenCache"
	c := NewTokenCache()
	if s == "" {
		return c, nil
	}
	var sc serializedCache
	if err := json.Unmarshal([]byte(s), &sc); err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrInvalidParameter)
	}
	if sc.Version != tokenCacheVersion {
		return nil, fmt.Errorf("%s: unsupported version %d: %w", op, sc.Version, ErrInvalidParameter)
	}
	for id, e := range sc.Accounts {
		if e != nil {
			c.entries[id] = e
		}
	}
	return c, nil
}
