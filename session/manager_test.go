// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCookie(t *testing.T, w *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	require.FailNow(t, "cookie not set", name)
	return nil
}

func TestNewManager(t *testing.T) {
	t.Parallel()
	t.Run("nil-store", func(t *testing.T) {
		_, err := NewManager(nil)
		assert.ErrorIs(t, err, ErrNilParameter)
	})
	t.Run("defaults", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, err := NewManager(NewMemoryStore())
		require.NoError(err)
		assert.Equal(DefaultCookieName, m.CookieName())
		assert.Equal(DefaultTTL, m.ttl)
		assert.True(m.secure)
	})
	t.Run("options", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, err := NewManager(NewMemoryStore(), WithCookieName("sid"), WithTTL(time.Hour), WithInsecureCookies())
		require.NoError(err)
		assert.Equal("sid", m.CookieName())
		assert.Equal(time.Hour, m.ttl)
		assert.False(m.secure)
	})
}

func TestManager(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	newManager := func(t *testing.T, opt ...Option) (*Manager, *MemoryStore) {
		store := NewMemoryStore(WithNow(func() time.Time { return now }))
		m, err := NewManager(store, append([]Option{WithNow(func() time.Time { return now }), WithTTL(time.Hour)}, opt...)...)
		require.NoError(t, err)
		return m, store
	}

	t.Run("new-session", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, store := newManager(t)
		r, err := m.Load(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(err)
		assert.Len(r.ID, 36)
		assert.False(r.IsAuthenticated)
		assert.Equal(0, store.Len())
	})
	t.Run("save-and-load", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, _ := newManager(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		r, err := m.Load(req)
		require.NoError(err)
		r.IsAuthenticated = true

		w := httptest.NewRecorder()
		require.NoError(m.Save(w, req, r))
		c := testCookie(t, w, DefaultCookieName)
		assert.Equal(r.ID, c.Value)
		assert.True(c.HttpOnly)
		assert.True(c.Secure)
		assert.Equal(http.SameSiteNoneMode, c.SameSite)
		assert.Equal("/", c.Path)
		assert.Equal(3600, c.MaxAge)

		next := httptest.NewRequest(http.MethodGet, "/", nil)
		next.AddCookie(c)
		got, err := m.Load(next)
		require.NoError(err)
		assert.Equal(r.ID, got.ID)
		assert.True(got.IsAuthenticated)
		assert.Equal(now, got.UpdatedAt)
	})
	t.Run("insecure-cookie", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, _ := newManager(t, WithInsecureCookies())
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		r, err := m.Load(req)
		require.NoError(err)
		w := httptest.NewRecorder()
		require.NoError(m.Save(w, req, r))
		c := testCookie(t, w, DefaultCookieName)
		assert.False(c.Secure)
		assert.Equal(http.SameSite(0), c.SameSite)
		assert.NotContains(w.Header().Get("Set-Cookie"), "SameSite")
	})
	t.Run("unknown-session", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, _ := newManager(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "forged"})
		r, err := m.Load(req)
		require.NoError(err)
		assert.NotEqual("forged", r.ID)
	})
	t.Run("renew", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, store := newManager(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		r, err := m.Load(req)
		require.NoError(err)
		require.NoError(m.Save(httptest.NewRecorder(), req, r))
		oldID := r.ID

		w := httptest.NewRecorder()
		require.NoError(m.Renew(w, req, r))
		assert.NotEqual(oldID, r.ID)
		assert.Equal(r.ID, testCookie(t, w, DefaultCookieName).Value)
		_, err = store.Load(req.Context(), oldID)
		assert.ErrorIs(err, ErrNotFound)
		_, err = store.Load(req.Context(), r.ID)
		assert.NoError(err)
	})
	t.Run("destroy", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		m, store := newManager(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		r, err := m.Load(req)
		require.NoError(err)
		r.IsAuthenticated = true
		w := httptest.NewRecorder()
		require.NoError(m.Save(w, req, r))
		c := testCookie(t, w, DefaultCookieName)

		out := httptest.NewRequest(http.MethodGet, "/auth/signout", nil)
		out.AddCookie(c)
		w = httptest.NewRecorder()
		require.NoError(m.Destroy(w, out))
		assert.Equal(0, store.Len())
		expired := testCookie(t, w, DefaultCookieName)
		assert.Empty(expired.Value)
		assert.True(expired.MaxAge < 0)

		again, err := m.Load(out)
		require.NoError(err)
		assert.False(again.IsAuthenticated)
	})
	t.Run("nil-params", func(t *testing.T) {
		assert := assert.New(t)
		m, _ := newManager(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		_, err := m.Load(nil)
		assert.ErrorIs(err, ErrNilParameter)
		assert.ErrorIs(m.Save(httptest.NewRecorder(), req, nil), ErrNilParameter)
		assert.ErrorIs(m.Renew(httptest.NewRecorder(), req, nil), ErrNilParameter)
	})
}
