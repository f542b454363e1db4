// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/cap-webflow/oidc/internal/strutils"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
)

// Provider provides integration with an Entra ID (OIDC) provider using the
// authorization code flow with PKCE.
type Provider struct {
	config *Config
	client *http.Client
	logger hclog.Logger

	mu sync.Mutex

	// cloudDiscovery and authorityMetadata are cached once fetched or
	// configured.
	cloudDiscovery    json.RawMessage
	authorityMetadata json.RawMessage

	// provider and providerKeys are rebuilt when the jwks url of the
	// metadata changes.
	provider     *oidc.Provider
	providerKeys string

	// backgroundCtx is the context used by the provider for background
	// activities like: refreshing JWKs key sets.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// NewProvider creates and initializes a Provider.  No http requests are made;
// metadata is fetched when first needed unless it's part of the Config.
//
// Supported options: WithLogger
//
// See Provider.Done() which must be called to release provider resources.
func NewProvider(c *Config, opt ...Option) (*Provider, error) {
	const op = "NewProvider"
	if c == nil {
		return nil, fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: provider config is invalid: %w", op, err)
	}
	opts := getProviderOpts(opt...)

	client, err := c.HTTPClient()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		config:              c,
		client:              client,
		logger:              opts.withLogger,
		backgroundCtx:       HTTPClientContext(ctx, client),
		backgroundCtxCancel: cancel,
	}
	if c.CloudDiscoveryMetadata != "" {
		p.cloudDiscovery = json.RawMessage(c.CloudDiscoveryMetadata)
	}
	if c.AuthorityMetadata != "" {
		p.authorityMetadata = json.RawMessage(c.AuthorityMetadata)
	}
	return p, nil
}

// Done with the provider's background resources and must be called for every
// Provider created
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// Config returns the provider's config.
func (p *Provider) Config() *Config {
	return p.config
}

// providerOptions is the set of available options for Provider functions
type providerOptions struct {
	withLogger hclog.Logger
}

// providerDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func providerDefaults() providerOptions {
	return providerOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getProviderOpts gets the provider defaults and applies the opt overrides
// passed in
func getProviderOpts(opt ...Option) providerOptions {
	opts := providerDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// oauth2Config returns an oauth2 config for the endpoints and redirect uri.
// Client credentials are always sent in the request body, so a consumed code
// is never sent twice during auth style detection.
func (p *Provider) oauth2Config(e Endpoints, redirectURI string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.config.ClientID,
		ClientSecret: string(p.config.ClientSecret),
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   e.AuthURL,
			TokenURL:  e.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		Scopes: scopes,
	}
}

// AuthURL will generate a URL the caller can use to kick off an OIDC
// authorization code flow with PKCE.  The response is requested as a form
// POST to the request's RedirectURI.
//
// See NewLoginAttempt() to create a request with a valid state, nonce and
// code challenge.
func (p *Provider) AuthURL(ctx context.Context, r *AuthCodeURLRequest) (string, error) {
	const op = "Provider.AuthURL"
	switch {
	case r == nil:
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	case r.State == "":
		return "", fmt.Errorf("%s: request state is empty: %w", op, ErrInvalidParameter)
	case r.Nonce == "":
		return "", fmt.Errorf("%s: request nonce is empty: %w", op, ErrInvalidParameter)
	case r.State == r.Nonce:
		return "", fmt.Errorf("%s: request state and nonce cannot be equal: %w", op, ErrInvalidParameter)
	case r.CodeChallenge == "":
		return "", fmt.Errorf("%s: request code challenge is empty: %w", op, ErrInvalidParameter)
	case r.CodeChallengeMethod != S256:
		return "", fmt.Errorf("%s: %s: %w", op, r.CodeChallengeMethod, ErrUnsupportedChallengeMethod)
	}
	redirectURI := r.RedirectURI
	if redirectURI == "" {
		redirectURI = p.config.RedirectURL
	}
	md, err := p.Metadata(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	responseMode := r.ResponseMode
	if responseMode == "" {
		responseMode = ResponseModeFormPost
	}

	authCodeOpts := []oauth2.AuthCodeOption{
		oidc.Nonce(r.Nonce),
		oauth2.SetAuthURLParam("response_mode", responseMode),
		oauth2.SetAuthURLParam("code_challenge", r.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", string(r.CodeChallengeMethod)),
	}
	if len(r.Prompts) > 0 {
		prompts := make([]string, 0, len(r.Prompts))
		for _, pr := range r.Prompts {
			prompts = append(prompts, string(pr))
		}
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("prompt", strings.Join(prompts, " ")))
	}
	if r.LoginHint != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("login_hint", r.LoginHint))
	}
	if r.DomainHint != "" {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("domain_hint", r.DomainHint))
	}
	if len(r.UILocales) > 0 {
		authCodeOpts = append(authCodeOpts, oauth2.SetAuthURLParam("ui_locales", strings.Join(r.UILocales, " ")))
	}
	return p.oauth2Config(md.Endpoints, redirectURI, r.Scopes).AuthCodeURL(r.State, authCodeOpts...), nil
}

// Exchange will request a token from the token endpoint, using the
// authorization code and PKCE verifier of the request.  The request's Code is
// the code received in a successful authentication response.  It is never
// retried: the code is single use.
//
// On success, the Token returned will include the IdToken, AccessToken and,
// depending on the scopes, a RefreshToken.  The TokenCache returned holds the
// tokens for the Token's Account.
func (p *Provider) Exchange(ctx context.Context, r *AuthCodeRequest) (*Token, *TokenCache, error) {
	const op = "Provider.Exchange"
	switch {
	case r == nil:
		return nil, nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	case r.Code == "":
		return nil, nil, fmt.Errorf("%s: %w", op, ErrMissingCode)
	case r.CodeVerifier == "":
		return nil, nil, fmt.Errorf("%s: code verifier is empty: %w", op, ErrInvalidCodeVerifier)
	}
	redirectURI := r.RedirectURI
	if redirectURI == "" {
		redirectURI = p.config.RedirectURL
	}
	md, err := p.Metadata(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	oidcCtx := HTTPClientContext(ctx, p.client)
	oauth2Token, err := p.oauth2Config(md.Endpoints, redirectURI, r.Scopes).Exchange(oidcCtx, r.Code, oauth2.VerifierOption(r.CodeVerifier))
	if err != nil {
		return nil, nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w", op, p.providerError(err, false))
	}

	rawIdToken, ok := oauth2Token.Extra("id_token").(string)
	if !ok || rawIdToken == "" {
		return nil, nil, fmt.Errorf("%s: id_token is missing from auth code exchange: %w", op, ErrMissingIdToken)
	}
	claims, err := p.VerifyIdToken(ctx, IdToken(rawIdToken), r.Nonce)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: id_token failed verification: %w", op, err)
	}
	account, err := NewAccount(claims)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	t := newToken(oauth2Token, IdToken(rawIdToken), account, r.Scopes)
	cache := NewTokenCache()
	cache.Add(t)
	return t, cache, nil
}

// AcquireTokenSilent returns a token for the account without any user
// interaction.  An unexpired cached access token which covers the scopes is
// returned as is; otherwise the cached refresh token is redeemed and the new
// tokens are written to the cache.
//
// When the tokens can only be acquired by an interactive login, the error
// returned matches ErrInteractionRequired (see IsInteractionRequired).
func (p *Provider) AcquireTokenSilent(ctx context.Context, cache *TokenCache, account *Account, scopes []string) (*Token, error) {
	const op = "Provider.AcquireTokenSilent"
	if cache == nil || account == nil || account.HomeAccountID == "" {
		return nil, fmt.Errorf("%s: no cached account: %w", op, ErrInteractionRequired)
	}
	cached, ok := cache.Lookup(account.HomeAccountID)
	if !ok {
		return nil, fmt.Errorf("%s: account %s is not cached: %w", op, account.HomeAccountID, ErrInteractionRequired)
	}
	resourceScopes := nonOIDCScopes(scopes)
	if cached.Valid(WithNow(p.config.Now)) && coversScopes(cached.Scopes, resourceScopes) {
		p.logger.Debug("using cached access token", "account", account.HomeAccountID)
		return cached, nil
	}
	if cached.RefreshToken == "" {
		return nil, fmt.Errorf("%s: no refresh token: %w", op, ErrInteractionRequired)
	}

	md, err := p.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	requested := strutils.RemoveDuplicatesStable(append(append([]string{}, DefaultOIDCScopes...), scopes...), true)
	oidcCtx := HTTPClientContext(ctx, p.refreshClient(requested))
	ts := p.oauth2Config(md.Endpoints, p.config.RedirectURL, requested).TokenSource(oidcCtx, &oauth2.Token{
		RefreshToken: string(cached.RefreshToken),
	})
	oauth2Token, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to refresh token: %w", op, p.providerError(err, true))
	}

	idToken, acct := cached.IdToken, cached.Account
	if rawIdToken, ok := oauth2Token.Extra("id_token").(string); ok && rawIdToken != "" {
		claims, err := p.VerifyIdToken(ctx, IdToken(rawIdToken), "")
		if err != nil {
			return nil, fmt.Errorf("%s: refreshed id_token failed verification: %w", op, err)
		}
		if acct, err = NewAccount(claims); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if acct.HomeAccountID != account.HomeAccountID {
			return nil, fmt.Errorf("%s: refreshed id_token is for a different account: %w", op, ErrInteractionRequired)
		}
		idToken = IdToken(rawIdToken)
	}

	// the old refresh token may have been rotated out, so the new tokens are
	// cached even when they don't cover the scopes.
	t := newToken(oauth2Token, idToken, acct, cached.Scopes)
	cache.Add(t)
	if !coversScopes(t.Scopes, resourceScopes) {
		return nil, fmt.Errorf("%s: scopes %s were not granted: %w", op, strings.Join(resourceScopes, " "), ErrInteractionRequired)
	}
	p.logger.Debug("refreshed access token", "account", account.HomeAccountID)
	return t, nil
}

// nonOIDCScopes returns the scopes which are granted on access tokens.
func nonOIDCScopes(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, s := range scopes {
		if !strutils.StrListContains(DefaultOIDCScopes, strings.ToLower(s)) {
			out = append(out, s)
		}
	}
	return out
}

// coversScopes is true when every requested scope was granted.  Scopes are
// compared case insensitively.
func coversScopes(granted, requested []string) bool {
	lower := make([]string, 0, len(granted))
	for _, g := range granted {
		lower = append(lower, strings.ToLower(g))
	}
	for _, r := range requested {
		if !strutils.StrListContains(lower, strings.ToLower(r)) {
			return false
		}
	}
	return true
}

// providerError classifies an error returned by the token endpoint.
func (p *Provider) providerError(err error, silent bool) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		pe := newProviderError(re.ErrorCode, re.ErrorDescription, status, err, silent)
		p.logger.Debug("provider rejected token request", "code", pe.Code, "status", status, "interaction_required", errors.Is(pe, ErrInteractionRequired))
		return pe
	}
	return newProviderError("", "", 0, err, silent)
}

// LogoutURL returns the provider's end session URL.  The
// postLogoutRedirectURI defaults to the Config's PostLogoutRedirectURL and is
// omitted when both are empty.
func (p *Provider) LogoutURL(ctx context.Context, postLogoutRedirectURI string) (string, error) {
	const op = "Provider.LogoutURL"
	md, err := p.Metadata(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	u, err := url.Parse(md.Endpoints.EndSessionURL)
	if err != nil {
		return "", fmt.Errorf("%s: invalid end session url: %w", op, ErrInvalidParameter)
	}
	if postLogoutRedirectURI == "" {
		postLogoutRedirectURI = p.config.PostLogoutRedirectURL
	}
	if postLogoutRedirectURI != "" {
		q := u.Query()
		q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// oidcProvider returns a go-oidc provider for the metadata's endpoints.
func (p *Provider) oidcProvider(md *Metadata) (*oidc.Provider, error) {
	const op = "Provider.oidcProvider"
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.provider != nil && p.providerKeys == md.Endpoints.JWKSURL {
		return p.provider, nil
	}
	pc := &oidc.ProviderConfig{
		IssuerURL:   md.Endpoints.Issuer,
		AuthURL:     md.Endpoints.AuthURL,
		TokenURL:    md.Endpoints.TokenURL,
		UserInfoURL: md.Endpoints.UserInfoURL,
		JWKSURL:     md.Endpoints.JWKSURL,
		Algorithms:  p.signingAlgs(md),
	}
	provider := pc.NewProvider(p.backgroundCtx)
	if provider == nil {
		return nil, fmt.Errorf("%s: unable to create provider: %w", op, ErrInvalidParameter)
	}
	p.provider = provider
	p.providerKeys = md.Endpoints.JWKSURL
	return provider, nil
}

// signingAlgs returns the configured algorithms, or the supported algorithms
// advertised by the provider, or RS256.
func (p *Provider) signingAlgs(md *Metadata) []string {
	algs := make([]string, 0, len(supportedAlgorithms))
	for _, a := range p.config.SupportedSigningAlgs {
		algs = append(algs, string(a))
	}
	if len(algs) > 0 {
		return algs
	}
	for _, a := range md.Endpoints.Algorithms {
		if supportedAlgorithms[Alg(a)] {
			algs = append(algs, a)
		}
	}
	if len(algs) > 0 {
		return algs
	}
	return []string{string(RS256)}
}

// VerifyIdToken will verify the inbound IdToken and return its claims.  It
// verifies it's been signed by the provider, it's audience is the client ID,
// it's not expired and its issuer.  The nonce is validated unless it's empty,
// which is only the case for id_tokens returned by a refresh.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#IDTokenValidation
func (p *Provider) VerifyIdToken(ctx context.Context, t IdToken, nonce string) (map[string]interface{}, error) {
	const op = "Provider.VerifyIdToken"
	if t == "" {
		return nil, fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	md, err := p.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	provider, err := p.oidcProvider(md)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	issuerTemplate := strings.Contains(md.Endpoints.Issuer, tenantIDTemplate)
	verifier := provider.Verifier(&oidc.Config{
		ClientID:             p.config.ClientID,
		SupportedSigningAlgs: p.signingAlgs(md),
		SkipIssuerCheck:      issuerTemplate,
		Now:                  p.config.Now,
	})
	oidcIdToken, err := verifier.Verify(HTTPClientContext(ctx, p.client), string(t))
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, err, ErrIdTokenVerificationFailed)
	}
	if nonce != "" && oidcIdToken.Nonce != nonce {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidNonce)
	}
	var claims map[string]interface{}
	if err := oidcIdToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%s: unable to get claims: %s: %w", op, err, ErrIdTokenVerificationFailed)
	}
	if issuerTemplate {
		tid, _ := claims["tid"].(string)
		want := strings.ReplaceAll(md.Endpoints.Issuer, tenantIDTemplate, tid)
		if tid == "" || oidcIdToken.Issuer != want {
			return nil, fmt.Errorf("%s: issuer %q is not %q: %w", op, oidcIdToken.Issuer, want, ErrInvalidIssuer)
		}
	}
	return claims, nil
}

// UserInfo gets the UserInfo claims from the provider using the token produced
// by the tokenSource.
func (p *Provider) UserInfo(ctx context.Context, tokenSource oauth2.TokenSource, claims interface{}) error {
	const op = "Provider.UserInfo"
	if tokenSource == nil {
		return fmt.Errorf("%s: token source is nil: %w", op, ErrNilParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	md, err := p.Metadata(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if md.Endpoints.UserInfoURL == "" {
		return fmt.Errorf("%s: provider has no userinfo endpoint: %w", op, ErrMetadataUnavailable)
	}
	provider, err := p.oidcProvider(md)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	userinfo, err := provider.UserInfo(HTTPClientContext(ctx, p.client), tokenSource)
	if err != nil {
		return fmt.Errorf("%s: provider UserInfo request failed: %w", op, p.providerError(err, false))
	}
	if err := userinfo.Claims(claims); err != nil {
		return fmt.Errorf("%s: failed to get UserInfo claims: %w", op, err)
	}
	return nil
}
