// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"html/template"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/cap-webflow/oidc/internal/strutils"
	"github.com/stretchr/testify/require"
	"github.com/yhat/scrape"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"gopkg.in/square/go-jose.v2"
)

const (
	// TestTenantID is the default tenant of a TestProvider.
	TestTenantID = "72f988bf-86f1-41af-91ab-2d7cd011db47"

	// TestObjectID is the oid of the user a TestProvider signs in.
	TestObjectID = "00000000-0000-0000-66f3-3332eca7ea81"

	// TestUsername is the preferred_username of the user a TestProvider signs
	// in.
	TestUsername = "alice@contoso.com"

	testDefaultClientID     = "test-client-id"
	testDefaultClientSecret = "test-client-secret"
)

// testFormPost is the form_post response mode page.
//
// See: https://openid.net/specs/oauth-v2-form-post-response-mode-1_0.html#FormPostResponseExample
var testFormPost = template.Must(template.New("form_post").Parse(`<html>
<head><title>Working...</title></head>
<body onload="javascript:document.forms[0].submit()">
<form method="post" action="{{.Action}}">
{{range $name, $value := .Fields}}<input type="hidden" id="{{$name}}" name="{{$name}}" value="{{$value}}"/>
{{end}}<noscript><p>Script is disabled. Click Submit to continue.</p><input type="submit" value="Submit"/></noscript>
</form>
</body>
</html>`))

// TestProvider is a local server that fakes the Entra ID endpoints used by a
// relying party: cloud instance discovery, openid configuration, authorize
// (form_post responses only), token (authorization_code with PKCE and
// refresh_token grants), keys, userinfo and logout.  Most of this is from
// Consul's oauthtest package with a few changes so it could become part of
// this package's public testing API.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	jwks *jose.JSONWebKeySet

	signingKey *TestSigningKey

	t *testing.T

	mu                  sync.Mutex
	tenantID            string
	homeTenantID        string
	clientID            string
	clientSecret        string
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}
	customClaims        map[string]interface{}
	customAudience      string
	omitIDToken         bool
	omitRefreshToken    bool
	grantedScopes       []string
	consentedScopes     []string
	accessTokenExpiry   time.Duration
	idTokenExpiry       time.Duration
	authorizeErrCode    string
	authorizeErrDesc    string
	refreshErrCode      string
	refreshErrDesc      string
	disableDiscovery    bool
	nowFunc             func() time.Time

	authCodes     map[string]*testAuthRequest
	refreshTokens map[string][]string
	accessTokens  map[string]bool

	tokenRequests     int
	refreshRequests   int
	discoveryRequests int
	logoutRequests    int
}

type testAuthRequest struct {
	clientID    string
	redirectURI string
	challenge   string
	nonce       string
	scopes      []string
}

// StartTestProvider creates a disposable TestProvider, which is stopped when
// the test completes.
//
// Supported options: WithTestPort
func StartTestProvider(t *testing.T, opt ...Option) *TestProvider {
	t.Helper()
	require := require.New(t)
	opts := getTestProviderOpts(opt...)

	p := &TestProvider{
		t:                   t,
		tenantID:            TestTenantID,
		homeTenantID:        TestTenantID,
		clientID:            testDefaultClientID,
		clientSecret:        testDefaultClientSecret,
		allowedRedirectURIs: []string{"https://example.com/auth/redirect"},
		replySubject:        "r3qXcK2bix9eFECzsU3Sbmh0K16fatW6",
		replyUserinfo: map[string]interface{}{
			"given_name":  "Alice",
			"family_name": "Liddell",
		},
		accessTokenExpiry: time.Hour,
		idTokenExpiry:     5 * time.Minute,
		nowFunc:           time.Now,
		authCodes:         map[string]*testAuthRequest{},
		refreshTokens:     map[string][]string{},
		accessTokens:      map[string]bool{},
	}
	p.signingKey = TestGenerateSigningKey(t)
	p.jwks = p.signingKey.JWKS()

	if opts.withPort != 0 {
		p.httpServer = httptestNewUnstartedServerWithPort(t, p, opts.withPort)
	} else {
		p.httpServer = httptest.NewUnstartedServer(p)
	}
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()
	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

// testProviderOptions is the set of available options for StartTestProvider
type testProviderOptions struct {
	withPort int
}

func testProviderDefaults() testProviderOptions {
	return testProviderOptions{}
}

func getTestProviderOpts(opt ...Option) testProviderOptions {
	opts := testProviderDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTestPort provides an optional port for the test provider.
//
// Valid for: TestProvider
func WithTestPort(port int) Option {
	return func(o interface{}) {
		if o, ok := o.(*testProviderOptions); ok {
			o.withPort = port
		}
	}
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// Addr returns the current base URL for the test provider's running webserver.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// Authority returns the authority for the provider's tenant.
func (p *TestProvider) Authority() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Addr() + "/" + p.tenantID
}

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// HTTPClient returns an http client which trusts the provider's CA cert and
// doesn't follow redirects.
func (p *TestProvider) HTTPClient() *http.Client {
	c := p.httpServer.Client()
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// SigningKey returns the key the test provider signs id_tokens with.
func (p *TestProvider) SigningKey() *TestSigningKey {
	return p.signingKey
}

// ClientCreds returns the client id and secret the provider accepts.
func (p *TestProvider) ClientCreds() (clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clientID, p.clientSecret
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetTenantID configures the tenant of the provider's authority.  A multi
// tenant authority ("common", "organizations") advertises a {tenantid}
// issuer template and issues tokens from the home tenant.
func (p *TestProvider) SetTenantID(tenantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tenantID = tenantID
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs for
// the OIDC workflow. If not configured a sample of
// "https://example.com/auth/redirect" is used.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetCustomClaims lets you set claims to return in the JWT issued by the OIDC
// workflow.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures what audience value to embed in the JWT issued
// by the OIDC workflow.
func (p *TestProvider) SetCustomAudience(customAudience string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// SetGrantedScopes limits the scopes granted to issued access tokens.  By
// default every requested scope is granted.
func (p *TestProvider) SetGrantedScopes(scopes ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grantedScopes = scopes
}

// SetConsentedScopes adds scopes the user has consented to since their
// refresh tokens were issued.  A refresh grants the requested scopes which
// were consented to.
func (p *TestProvider) SetConsentedScopes(scopes ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.consentedScopes = scopes
}

// SetAccessTokenExpiry configures the lifetime of issued access tokens.
func (p *TestProvider) SetAccessTokenExpiry(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokenExpiry = d
}

// SetNowFunc configures the time used when issuing tokens.
func (p *TestProvider) SetNowFunc(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nowFunc = now
}

// SetAuthorizeError forces the authorize endpoint to respond with an error.
// An empty code clears the error.
func (p *TestProvider) SetAuthorizeError(code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authorizeErrCode = code
	p.authorizeErrDesc = description
}

// SetRefreshError forces the token endpoint to reject refresh_token grants
// with the oauth error code.  An empty code clears the error.
func (p *TestProvider) SetRefreshError(code, description string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshErrCode = code
	p.refreshErrDesc = description
}

// OmitIDTokens forces an error state where the token endpoint does not return
// id_token.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitRefreshTokens stops the token endpoint from returning refresh tokens.
func (p *TestProvider) OmitRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitRefreshToken = true
}

// DisableDiscovery makes the instance discovery and openid configuration
// endpoints return 500.
func (p *TestProvider) DisableDiscovery() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableDiscovery = true
}

// TokenRequests returns the number of requests made to the token endpoint.
func (p *TestProvider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

// RefreshRequests returns the number of refresh_token grants requested.
func (p *TestProvider) RefreshRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshRequests
}

// DiscoveryRequests returns the number of requests made to the instance
// discovery and openid configuration endpoints.
func (p *TestProvider) DiscoveryRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discoveryRequests
}

// LogoutRequests returns the number of requests made to the logout endpoint.
func (p *TestProvider) LogoutRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logoutRequests
}

// IssueRefreshToken returns a valid refresh token for the scopes, as if it
// had been issued by a code exchange.
func (p *TestProvider) IssueRefreshToken(scopes ...string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	rt := "rt_" + p.newID()
	p.refreshTokens[rt] = scopes
	return rt
}

// issuer is the issuer advertised in the openid configuration.
func (p *TestProvider) issuer() string {
	if multiTenantAuthorities[p.tenantID] {
		return p.Addr() + "/" + tenantIDTemplate + "/v2.0"
	}
	return p.Addr() + "/" + p.tenantID + "/v2.0"
}

// tokenIssuer is the issuer of issued tokens.
func (p *TestProvider) tokenIssuer() string {
	return strings.ReplaceAll(p.issuer(), tenantIDTemplate, p.homeTenantID)
}

func (p *TestProvider) newID() string {
	id, err := NewID()
	require.NoError(p.t, err)
	return id
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeFormPost(w http.ResponseWriter, action string, fields map[string]string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = testFormPost.Execute(w, struct {
		Action string
		Fields map[string]string
	}{
		Action: action,
		Fields: fields,
	})
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, redirectURI, state, errorCode, errorMessage string) {
	fields := map[string]string{
		"error": errorCode,
	}
	if state != "" {
		fields["state"] = state
	}
	if errorMessage != "" {
		fields["error_description"] = errorMessage
	}
	p.writeFormPost(w, redirectURI, fields)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(&body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	if req.URL.Path == DefaultInstanceDiscoveryPath {
		p.handleInstanceDiscovery(w, req)
		return
	}
	if req.URL.Path == "/oidc/userinfo" {
		p.handleUserInfo(w, req)
		return
	}
	prefix := "/" + p.tenantID
	if !strings.HasPrefix(req.URL.Path, prefix+"/") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch strings.TrimPrefix(req.URL.Path, prefix) {
	case "/v2.0/.well-known/openid-configuration":
		p.handleOpenIDConfiguration(w, req)
	case "/oauth2/v2.0/authorize":
		p.handleAuthorize(w, req)
	case "/oauth2/v2.0/token":
		p.handleToken(w, req)
	case "/discovery/v2.0/keys":
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = p.writeJSON(w, p.jwks)
	case "/oauth2/v2.0/logout":
		p.handleLogout(w, req)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *TestProvider) handleInstanceDiscovery(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.discoveryRequests++
	if p.disableDiscovery {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if req.URL.Query().Get("api-version") != "1.1" || req.URL.Query().Get("authorization_endpoint") == "" {
		_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "missing api-version or authorization_endpoint")
		return
	}
	host := p.httpServer.Listener.Addr().String()
	reply := cloudDiscovery{
		TenantDiscoveryEndpoint: p.Addr() + "/" + p.tenantID + "/v2.0/.well-known/openid-configuration",
		APIVersion:              "1.1",
		Metadata: []CloudInstance{
			{
				PreferredNetwork: host,
				PreferredCache:   host,
				Aliases:          []string{host},
			},
		},
	}
	_ = p.writeJSON(w, &reply)
}

func (p *TestProvider) handleOpenIDConfiguration(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.discoveryRequests++
	if p.disableDiscovery {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	base := p.Addr() + "/" + p.tenantID
	reply := Endpoints{
		Issuer:        p.issuer(),
		AuthURL:       base + "/oauth2/v2.0/authorize",
		TokenURL:      base + "/oauth2/v2.0/token",
		JWKSURL:       base + "/discovery/v2.0/keys",
		EndSessionURL: base + "/oauth2/v2.0/logout",
		UserInfoURL:   p.Addr() + "/oidc/userinfo",
		Algorithms:    []string{string(ES256)},
	}
	_ = p.writeJSON(w, &reply)
}

func (p *TestProvider) handleAuthorize(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri")
	if qv.Get("client_id") != p.clientID || !strutils.StrListContains(p.allowedRedirectURIs, redirectURI) {
		// never redirect to an unregistered uri
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("AADSTS50011: redirect_uri or client_id is not registered"))
		return
	}
	state := qv.Get("state")
	switch {
	case qv.Get("response_mode") != ResponseModeFormPost:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("only the form_post response mode is supported"))
		return
	case qv.Get("response_type") != "code":
		p.writeAuthErrorResponse(w, redirectURI, state, "unsupported_response_type", "")
		return
	case !strutils.StrListContains(strings.Fields(qv.Get("scope")), "openid"):
		p.writeAuthErrorResponse(w, redirectURI, state, "invalid_scope", "openid scope is required")
		return
	case qv.Get("code_challenge_method") != string(S256) || qv.Get("code_challenge") == "":
		p.writeAuthErrorResponse(w, redirectURI, state, "invalid_request", "a S256 code_challenge is required")
		return
	case p.authorizeErrCode != "":
		p.writeAuthErrorResponse(w, redirectURI, state, p.authorizeErrCode, p.authorizeErrDesc)
		return
	}

	code := "ac_" + p.newID()
	p.authCodes[code] = &testAuthRequest{
		clientID:    qv.Get("client_id"),
		redirectURI: redirectURI,
		challenge:   qv.Get("code_challenge"),
		nonce:       qv.Get("nonce"),
		scopes:      strings.Fields(qv.Get("scope")),
	}
	fields := map[string]string{"code": code}
	if state != "" {
		fields["state"] = state
	}
	p.writeFormPost(w, redirectURI, fields)
}

func (p *TestProvider) handleToken(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.tokenRequests++

	clientID, clientSecret, ok := req.BasicAuth()
	if !ok {
		clientID, clientSecret = req.FormValue("client_id"), req.FormValue("client_secret")
	}
	if clientID != p.clientID || subtle.ConstantTimeCompare([]byte(clientSecret), []byte(p.clientSecret)) != 1 {
		_ = p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "AADSTS7000215: Invalid client secret provided")
		return
	}

	switch req.FormValue("grant_type") {
	case "authorization_code":
		code := req.FormValue("code")
		ar, ok := p.authCodes[code]
		delete(p.authCodes, code)
		switch {
		case !ok:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "AADSTS70008: the code has expired or was already used")
			return
		case ar.clientID != clientID:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "code was issued to another client")
			return
		case req.FormValue("redirect_uri") != ar.redirectURI:
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "AADSTS50148: redirect_uri does not match the authorization request")
			return
		case !testVerifyChallenge(req.FormValue("code_verifier"), ar.challenge):
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "AADSTS501481: the code_verifier does not match the code_challenge")
			return
		}
		p.issueTokens(w, ar.scopes, ar.scopes, ar.nonce)

	case "refresh_token":
		p.refreshRequests++
		if p.refreshErrCode != "" {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, p.refreshErrCode, p.refreshErrDesc)
			return
		}
		rt := req.FormValue("refresh_token")
		consented, ok := p.refreshTokens[rt]
		if !ok {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "AADSTS700082: the refresh token has expired")
			return
		}
		requested := strings.Fields(req.FormValue("scope"))
		if len(requested) == 0 {
			_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_request", "AADSTS90014: the required field 'scope' is missing")
			return
		}
		delete(p.refreshTokens, rt)
		consented = strutils.RemoveDuplicatesStable(append(append([]string{}, consented...), p.consentedScopes...), true)
		p.issueTokens(w, testIntersectScopes(requested, consented), consented, "")

	default:
		_ = p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "")
	}
}

func testVerifyChallenge(verifier, challenge string) bool {
	if verifier == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

// testIntersectScopes returns the requested scopes which are in allowed,
// compared case insensitively.
func testIntersectScopes(requested, allowed []string) []string {
	lower := make([]string, 0, len(allowed))
	for _, a := range allowed {
		lower = append(lower, strings.ToLower(a))
	}
	out := make([]string, 0, len(requested))
	for _, r := range requested {
		if strutils.StrListContains(lower, strings.ToLower(r)) {
			out = append(out, r)
		}
	}
	return out
}

// issueTokens replies with tokens granting scopes.  A refresh token is issued
// when offline_access is granted; it remembers the consented scopes.
func (p *TestProvider) issueTokens(w http.ResponseWriter, scopes, consented []string, nonce string) {
	now := p.nowFunc()
	granted := scopes
	if p.grantedScopes != nil {
		granted = p.grantedScopes
	}

	reply := struct {
		TokenType    string `json:"token_type"`
		Scope        string `json:"scope"`
		ExpiresIn    int64  `json:"expires_in"`
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token,omitempty"`
		IDToken      string `json:"id_token,omitempty"`
	}{
		TokenType:   "Bearer",
		Scope:       strings.Join(granted, " "),
		ExpiresIn:   int64(p.accessTokenExpiry / time.Second),
		AccessToken: "at_" + p.newID(),
	}
	p.accessTokens[reply.AccessToken] = true
	if !p.omitRefreshToken && strutils.StrListContains(scopes, ScopeOfflineAccess) {
		reply.RefreshToken = "rt_" + p.newID()
		p.refreshTokens[reply.RefreshToken] = consented
	}

	if !p.omitIDToken {
		claims := TestIdTokenClaims{
			Issuer:            p.tokenIssuer(),
			Subject:           p.replySubject,
			Audience:          p.clientID,
			Nonce:             nonce,
			ObjectID:          TestObjectID,
			TenantID:          p.homeTenantID,
			PreferredUsername: TestUsername,
			Name:              "Alice Liddell",
			IssuedAt:          now,
			Expiry:            now.Add(p.idTokenExpiry),
			Extra:             p.customClaims,
		}
		if p.customAudience != "" {
			claims.Audience = p.customAudience
		}
		reply.IDToken = TestSignIdToken(p.t, p.signingKey, claims)
	}
	w.Header().Set("Cache-Control", "no-store")
	_ = p.writeJSON(w, &reply)
}

func (p *TestProvider) handleUserInfo(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	at := strings.TrimPrefix(req.Header.Get("Authorization"), "Bearer ")
	if !p.accessTokens[at] {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	reply := map[string]interface{}{
		"sub":   p.replySubject,
		"name":  "Alice Liddell",
		"email": TestUsername,
	}
	for k, v := range p.replyUserinfo {
		reply[k] = v
	}
	_ = p.writeJSON(w, reply)
}

func (p *TestProvider) handleLogout(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.logoutRequests++
	if u := req.URL.Query().Get("post_logout_redirect_uri"); u != "" {
		http.Redirect(w, req, u, http.StatusFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("You have signed out of your account."))
}

// TestParseFormPost parses a form_post response page, returning the form's
// action and its hidden fields.  It's a stand-in for the browser which
// submits the form to the relying party.
func TestParseFormPost(t *testing.T, body io.Reader) (action string, fields url.Values) {
	t.Helper()
	require := require.New(t)
	root, err := html.Parse(body)
	require.NoError(err)
	form, ok := scrape.Find(root, scrape.ByTag(atom.Form))
	require.True(ok, "response has no form")
	require.Equal("post", scrape.Attr(form, "method"))
	action = scrape.Attr(form, "action")
	require.NotEmpty(action)

	fields = url.Values{}
	for _, n := range scrape.FindAll(form, scrape.ByTag(atom.Input)) {
		if scrape.Attr(n, "type") != "hidden" {
			continue
		}
		fields.Set(scrape.Attr(n, "name"), scrape.Attr(n, "value"))
	}
	return action, fields
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t *testing.T, handler http.Handler, port int) *httptest.Server {
	t.Helper()
	require := require.New(t)
	require.NotEmpty(port)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	require.NoError(err)

	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}
