// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_StartTestProvider(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	port := func() int {
		addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
		require.NoError(err)
		l, err := net.ListenTCP("tcp", addr)
		require.NoError(err)
		defer l.Close()
		return l.Addr().(*net.TCPAddr).Port
	}()

	tp := StartTestProvider(t, WithTestPort(port))
	u, err := url.Parse(tp.Addr())
	require.NoError(err)
	assert.Equal(strconv.Itoa(port), u.Port())

	resp, err := tp.HTTPClient().Get(tp.Authority() + "/discovery/v2.0/keys")
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
}

func Test_WithTestPort(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	opts := getTestProviderOpts(WithTestPort(8080))
	testOpts := testProviderDefaults()
	testOpts.withPort = 8080
	assert.Equal(opts, testOpts)
}

func TestTestProvider_SetClientCreds(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	tp := StartTestProvider(t)
	gotID, gotSecret := tp.ClientCreds()
	assert.Equal(testDefaultClientID, gotID)
	assert.Equal(testDefaultClientSecret, gotSecret)
	tp.SetClientCreds("alice", "bob")
	gotID, gotSecret = tp.ClientCreds()
	assert.Equal("alice", gotID)
	assert.Equal("bob", gotSecret)
}

func TestTestProvider_OpenIDConfiguration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		tenant     string
		wantIssuer func(tp *TestProvider) string
	}{
		{
			name:       "single-tenant",
			tenant:     TestTenantID,
			wantIssuer: func(tp *TestProvider) string { return tp.Addr() + "/" + TestTenantID + "/v2.0" },
		},
		{
			name:       "multi-tenant",
			tenant:     "organizations",
			wantIssuer: func(tp *TestProvider) string { return tp.Addr() + "/{tenantid}/v2.0" },
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			tp := StartTestProvider(t)
			tp.SetTenantID(tt.tenant)
			resp, err := tp.HTTPClient().Get(tp.Authority() + "/v2.0/.well-known/openid-configuration")
			require.NoError(err)
			defer resp.Body.Close()
			require.Equal(http.StatusOK, resp.StatusCode)

			var got Endpoints
			require.NoError(json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(tt.wantIssuer(tp), got.Issuer)
			assert.Equal(tp.Authority()+"/oauth2/v2.0/token", got.TokenURL)
			assert.Equal([]string{"ES256"}, got.Algorithms)
			assert.Equal(1, tp.DiscoveryRequests())
		})
	}
}

func TestTestProvider_InstanceDiscovery(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	client := tp.HTTPClient()

	resp, err := client.Get(tp.Addr() + DefaultInstanceDiscoveryPath)
	require.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusBadRequest, resp.StatusCode)

	q := url.Values{}
	q.Set("api-version", "1.1")
	q.Set("authorization_endpoint", tp.Authority()+"/oauth2/v2.0/authorize")
	resp, err = client.Get(tp.Addr() + DefaultInstanceDiscoveryPath + "?" + q.Encode())
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)
	var got cloudDiscovery
	require.NoError(json.NewDecoder(resp.Body).Decode(&got))
	require.Len(got.Metadata, 1)
	u, err := url.Parse(tp.Addr())
	require.NoError(err)
	assert.Equal([]string{u.Host}, got.Metadata[0].Aliases)

	tp.DisableDiscovery()
	resp, err = client.Get(tp.Addr() + DefaultInstanceDiscoveryPath + "?" + q.Encode())
	require.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(3, tp.DiscoveryRequests())
}

func TestTestProvider_Authorize(t *testing.T) {
	t.Parallel()
	authorize := func(t *testing.T, tp *TestProvider, modify func(q url.Values)) *http.Response {
		t.Helper()
		q := url.Values{}
		q.Set("client_id", testDefaultClientID)
		q.Set("redirect_uri", "https://example.com/auth/redirect")
		q.Set("response_type", "code")
		q.Set("response_mode", ResponseModeFormPost)
		q.Set("scope", "openid profile")
		q.Set("state", "st_123")
		q.Set("nonce", "n_123")
		q.Set("code_challenge", "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM")
		q.Set("code_challenge_method", "S256")
		if modify != nil {
			modify(q)
		}
		resp, err := tp.HTTPClient().Get(tp.Authority() + "/oauth2/v2.0/authorize?" + q.Encode())
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	t.Run("form-post", func(t *testing.T) {
		assert := assert.New(t)
		tp := StartTestProvider(t)
		resp := authorize(t, tp, nil)
		assert.Equal(http.StatusOK, resp.StatusCode)
		action, fields := TestParseFormPost(t, resp.Body)
		assert.Equal("https://example.com/auth/redirect", action)
		assert.Equal("st_123", fields.Get("state"))
		assert.True(strings.HasPrefix(fields.Get("code"), "ac_"))
		assert.Empty(fields.Get("error"))
	})
	t.Run("unregistered-redirect", func(t *testing.T) {
		tp := StartTestProvider(t)
		resp := authorize(t, tp, func(q url.Values) { q.Set("redirect_uri", "https://evil.example.com") })
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("query-response-mode", func(t *testing.T) {
		tp := StartTestProvider(t)
		resp := authorize(t, tp, func(q url.Values) { q.Set("response_mode", "query") })
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	errTests := []struct {
		name     string
		setup    func(tp *TestProvider)
		modify   func(q url.Values)
		wantCode string
	}{
		{
			name:     "no-openid-scope",
			modify:   func(q url.Values) { q.Set("scope", "User.Read") },
			wantCode: "invalid_scope",
		},
		{
			name:     "plain-challenge",
			modify:   func(q url.Values) { q.Set("code_challenge_method", "plain") },
			wantCode: "invalid_request",
		},
		{
			name:     "forced-error",
			setup:    func(tp *TestProvider) { tp.SetAuthorizeError("access_denied", "the user declined") },
			wantCode: "access_denied",
		},
	}
	for _, tt := range errTests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)
			tp := StartTestProvider(t)
			if tt.setup != nil {
				tt.setup(tp)
			}
			resp := authorize(t, tp, tt.modify)
			assert.Equal(http.StatusOK, resp.StatusCode)
			_, fields := TestParseFormPost(t, resp.Body)
			assert.Equal(tt.wantCode, fields.Get("error"))
			assert.Equal("st_123", fields.Get("state"))
			assert.Empty(fields.Get("code"))
		})
	}
}

func TestTestProvider_Token(t *testing.T) {
	t.Parallel()
	post := func(t *testing.T, tp *TestProvider, form url.Values) (int, map[string]interface{}) {
		t.Helper()
		resp, err := tp.HTTPClient().PostForm(tp.Authority()+"/oauth2/v2.0/token", form)
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return resp.StatusCode, body
	}
	creds := func(form url.Values) url.Values {
		form.Set("client_id", testDefaultClientID)
		form.Set("client_secret", testDefaultClientSecret)
		return form
	}

	t.Run("invalid-client", func(t *testing.T) {
		assert := assert.New(t)
		tp := StartTestProvider(t)
		status, body := post(t, tp, url.Values{"grant_type": {"refresh_token"}, "client_id": {"bogus"}})
		assert.Equal(http.StatusUnauthorized, status)
		assert.Equal("invalid_client", body["error"])
	})
	t.Run("refresh-rotation", func(t *testing.T) {
		assert := assert.New(t)
		tp := StartTestProvider(t)
		rt := tp.IssueRefreshToken("openid", "offline_access", "User.Read")

		const scope = "openid offline_access User.Read"
		status, body := post(t, tp, creds(url.Values{"grant_type": {"refresh_token"}, "refresh_token": {rt}, "scope": {scope}}))
		assert.Equal(http.StatusOK, status)
		assert.Equal(scope, body["scope"])
		assert.NotEmpty(body["access_token"])
		assert.NotEmpty(body["id_token"])
		assert.NotEqual(rt, body["refresh_token"])

		status, body = post(t, tp, creds(url.Values{"grant_type": {"refresh_token"}, "refresh_token": {rt}, "scope": {scope}}))
		assert.Equal(http.StatusBadRequest, status)
		assert.Equal("invalid_grant", body["error"])
		assert.Equal(2, tp.RefreshRequests())
		assert.Equal(2, tp.TokenRequests())
	})
	t.Run("refresh-missing-scope", func(t *testing.T) {
		assert := assert.New(t)
		tp := StartTestProvider(t)
		rt := tp.IssueRefreshToken("openid", "offline_access", "User.Read")
		status, body := post(t, tp, creds(url.Values{"grant_type": {"refresh_token"}, "refresh_token": {rt}}))
		assert.Equal(http.StatusBadRequest, status)
		assert.Equal("invalid_request", body["error"])

		// the refresh token wasn't redeemed
		status, _ = post(t, tp, creds(url.Values{"grant_type": {"refresh_token"}, "refresh_token": {rt}, "scope": {"openid offline_access"}}))
		assert.Equal(http.StatusOK, status)
	})
	t.Run("refresh-consented-scopes", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tp := StartTestProvider(t)
		rt := tp.IssueRefreshToken("openid", "offline_access", "User.Read")
		const scope = "openid offline_access User.Read Mail.Read"

		status, body := post(t, tp, creds(url.Values{"grant_type": {"refresh_token"}, "refresh_token": {rt}, "scope": {scope}}))
		require.Equal(http.StatusOK, status)
		assert.Equal("openid offline_access User.Read", body["scope"])

		tp.SetConsentedScopes("mail.read")
		next, ok := body["refresh_token"].(string)
		require.True(ok)
		status, body = post(t, tp, creds(url.Values{"grant_type": {"refresh_token"}, "refresh_token": {next}, "scope": {scope}}))
		require.Equal(http.StatusOK, status)
		assert.Equal(scope, body["scope"])
	})
	t.Run("refresh-error", func(t *testing.T) {
		assert := assert.New(t)
		tp := StartTestProvider(t)
		rt := tp.IssueRefreshToken("openid", "offline_access")
		tp.SetRefreshError("interaction_required", "AADSTS50076")
		status, body := post(t, tp, creds(url.Values{"grant_type": {"refresh_token"}, "refresh_token": {rt}, "scope": {"openid offline_access"}}))
		assert.Equal(http.StatusBadRequest, status)
		assert.Equal("interaction_required", body["error"])
		assert.Equal("AADSTS50076", body["error_description"])
	})
	t.Run("unsupported-grant", func(t *testing.T) {
		assert := assert.New(t)
		tp := StartTestProvider(t)
		status, body := post(t, tp, creds(url.Values{"grant_type": {"password"}}))
		assert.Equal(http.StatusBadRequest, status)
		assert.Equal("unsupported_grant_type", body["error"])
	})
}

func TestTestProvider_Logout(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := StartTestProvider(t)
	client := tp.HTTPClient()

	resp, err := client.Get(tp.Authority() + "/oauth2/v2.0/logout?post_logout_redirect_uri=" + url.QueryEscape("https://example.com/"))
	require.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusFound, resp.StatusCode)
	assert.Equal("https://example.com/", resp.Header.Get("Location"))

	resp, err = client.Get(tp.Authority() + "/oauth2/v2.0/logout")
	require.NoError(err)
	resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	assert.Equal(2, tp.LogoutRequests())
}

func TestTestParseFormPost(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	page := `<html><body><form method="post" action="https://app/redirect">
<input type="hidden" name="code" value="abc"/>
<input type="hidden" name="state" value="xyz"/>
<input type="submit" name="ignored" value="Submit"/>
</form></body></html>`
	action, fields := TestParseFormPost(t, strings.NewReader(page))
	assert.Equal("https://app/redirect", action)
	assert.Equal(url.Values{"code": {"abc"}, "state": {"xyz"}}, fields)
}
