// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/cap-webflow/oidc"
	"github.com/hashicorp/cap-webflow/session"
	"github.com/stretchr/testify/require"
)

const (
	testRedirectURI = "https://app/redirect"
	testAuthorize   = "https://login.example.com/tenant/oauth2/v2.0/authorize"
	testLogout      = "https://login.example.com/tenant/oauth2/v2.0/logout"
)

// testClient is a Client which counts its calls.
type testClient struct {
	mu sync.Mutex

	authURLRequests []*oidc.AuthCodeURLRequest
	exchanges       []oidc.AuthCodeRequest
	silentCalls     int

	authURLErr  error
	exchangeErr error
	silentErr   error
	logoutErr   error

	// refreshed is returned by AcquireTokenSilent when the cached token
	// isn't valid.
	refreshed *oidc.Token

	// rotated is cached by AcquireTokenSilent before it returns silentErr.
	rotated *oidc.Token
}

func testToken(accessToken string, expiry time.Time) *oidc.Token {
	return &oidc.Token{
		AccessToken:  oidc.AccessToken(accessToken),
		IdToken:      "header.payload.sig",
		RefreshToken: "rt_" + oidc.RefreshToken(accessToken),
		Expiry:       expiry,
		Scopes:       []string{"User.Read"},
		Account: &oidc.Account{
			HomeAccountID: "oid.tid",
			Username:      "alice@contoso.com",
		},
	}
}

func (c *testClient) AuthURL(_ context.Context, r *oidc.AuthCodeURLRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authURLErr != nil {
		return "", c.authURLErr
	}
	c.authURLRequests = append(c.authURLRequests, r)
	q := url.Values{}
	q.Set("state", r.State)
	q.Set("scope", strings.Join(r.Scopes, " "))
	q.Set("redirect_uri", r.RedirectURI)
	return testAuthorize + "?" + q.Encode(), nil
}

func (c *testClient) Exchange(_ context.Context, r *oidc.AuthCodeRequest) (*oidc.Token, *oidc.TokenCache, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.exchanges = append(c.exchanges, *r)
	if c.exchangeErr != nil {
		return nil, nil, c.exchangeErr
	}
	tk := testToken("at_exchanged", time.Now().Add(time.Hour))
	cache := oidc.NewTokenCache()
	cache.Add(tk)
	return tk, cache, nil
}

func (c *testClient) AcquireTokenSilent(_ context.Context, cache *oidc.TokenCache, account *oidc.Account, _ []string) (*oidc.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.silentCalls++
	if c.silentErr != nil {
		if c.rotated != nil {
			cache.Add(c.rotated)
		}
		return nil, c.silentErr
	}
	if account == nil {
		return nil, oidc.ErrInteractionRequired
	}
	cached, ok := cache.Lookup(account.HomeAccountID)
	if !ok {
		return nil, oidc.ErrInteractionRequired
	}
	if cached.Valid() || c.refreshed == nil {
		return cached, nil
	}
	cache.Add(c.refreshed)
	return c.refreshed, nil
}

func (c *testClient) LogoutURL(_ context.Context, postLogoutRedirectURI string) (string, error) {
	if c.logoutErr != nil {
		return "", c.logoutErr
	}
	if postLogoutRedirectURI == "" {
		return testLogout, nil
	}
	return testLogout + "?post_logout_redirect_uri=" + url.QueryEscape(postLogoutRedirectURI), nil
}

func (c *testClient) exchangeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.exchanges)
}

// testBrowser carries the session cookie between requests.
type testBrowser struct {
	t      *testing.T
	cookie *http.Cookie
}

func (b *testBrowser) do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name != session.DefaultCookieName {
			continue
		}
		if c.MaxAge < 0 {
			b.cookie = nil
			continue
		}
		b.cookie = c
	}
	return w
}

func (b *testBrowser) get(h http.Handler, target string) *httptest.ResponseRecorder {
	b.t.Helper()
	return b.do(h, httptest.NewRequest(http.MethodGet, target, nil))
}

func (b *testBrowser) post(h http.Handler, target string, form url.Values) *httptest.ResponseRecorder {
	b.t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(h, req)
}

// record returns the browser's session record.
func (b *testBrowser) record(m *session.Manager) *session.Record {
	b.t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	r, err := m.Load(req)
	require.NoError(b.t, err)
	return r
}

func testSessions(t *testing.T) *session.Manager {
	t.Helper()
	m, err := session.NewManager(session.NewMemoryStore(), session.WithInsecureCookies())
	require.NoError(t, err)
	return m
}

func testFlow(t *testing.T, c Client, sessions Sessions, opt ...Option) *Flow {
	t.Helper()
	f, err := New(c, sessions, append([]Option{WithRedirectURI(testRedirectURI)}, opt...)...)
	require.NoError(t, err)
	return f
}

// testLocation parses the response's Location header.
func testLocation(t *testing.T, w *httptest.ResponseRecorder) *url.URL {
	t.Helper()
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())
	u, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	return u
}
