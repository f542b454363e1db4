// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/cap-webflow/oidc/internal/strutils"
	"golang.org/x/text/language"
)

const (
	// ResponseModeFormPost asks the provider to return the authentication
	// response as an auto-submitted html form POSTed to the redirect uri.
	ResponseModeFormPost = "form_post"

	// ScopeProfile and ScopeOfflineAccess are requested for every login along
	// with the required openid scope.
	ScopeProfile       = "profile"
	ScopeOfflineAccess = "offline_access"

	// DefaultLoginAttemptExpiry is how long a pending login attempt will wait
	// for an authentication response.
	DefaultLoginAttemptExpiry = 10 * time.Minute
)

// DefaultOIDCScopes are always requested, ahead of any additional scopes.
var DefaultOIDCScopes = []string{oidc.ScopeOpenID, ScopeProfile, ScopeOfflineAccess}

// AuthCodeURLRequest is the pending authorization request for one login
// attempt.  It's rendered into the provider's authorize URL by
// Provider.AuthURL and kept in the server side session.
type AuthCodeURLRequest struct {
	State               string          `json:"state"`
	Nonce               string          `json:"nonce"`
	Scopes              []string        `json:"scopes"`
	RedirectURI         string          `json:"redirectUri"`
	ResponseMode        string          `json:"responseMode"`
	CodeChallenge       string          `json:"codeChallenge"`
	CodeChallengeMethod ChallengeMethod `json:"codeChallengeMethod"`
	Prompts             []Prompt        `json:"prompts,omitempty"`
	LoginHint           string          `json:"loginHint,omitempty"`
	DomainHint          string          `json:"domainHint,omitempty"`
	UILocales           []string        `json:"uiLocales,omitempty"`
	ExpiresAt           time.Time       `json:"expiresAt"`
}

// AuthCodeRequest holds the parameters for redeeming the authorization code
// of a login attempt.  Code is empty until the authentication response is
// received and CodeVerifier is only set from the session at exchange time.
type AuthCodeRequest struct {
	State        string    `json:"state"`
	Nonce        string    `json:"nonce"`
	Scopes       []string  `json:"scopes"`
	RedirectURI  string    `json:"redirectUri"`
	Code         string    `json:"code"`
	CodeVerifier string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// IsExpired returns true if the pending request has expired.
func (r *AuthCodeRequest) IsExpired(now time.Time) bool {
	if r == nil {
		return true
	}
	if r.ExpiresAt.IsZero() {
		return false
	}
	return r.ExpiresAt.Before(now)
}

// LoginAttempt is everything a relying party must remember between sending
// the user to the provider and receiving the authentication response.
type LoginAttempt struct {
	URLRequest  *AuthCodeURLRequest
	CodeRequest *AuthCodeRequest
	PKCE        PKCECodes
	State       *AuthState
}

// NewLoginAttempt creates a new LoginAttempt with a fresh PKCE verifier, state
// and nonce.  The scopes requested are DefaultOIDCScopes followed by any
// WithScopes, without duplicates.
//
// Supported options: WithNow, WithScopes, WithSuccessRedirect, WithPrompts,
// WithLoginHint, WithDomainHint, WithUILocales, WithPKCE
func NewLoginAttempt(expireIn time.Duration, redirectURI string, opt ...Option) (*LoginAttempt, error) {
	const op = "oidc.NewLoginAttempt"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("%s: redirect uri is empty: %w", op, ErrInvalidParameter)
	}
	opts := getLoginOpts(opt...)
	if err := validPrompts(opts.withPrompts); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	verifier := opts.withVerifier
	if verifier == nil {
		v, err := NewCodeVerifier()
		if err != nil {
			return nil, fmt.Errorf("%s: unable to create code verifier: %w", op, err)
		}
		verifier = v
	}
	st, err := NewAuthState(opts.withSuccessRedirect)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	state, err := st.Encode()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	nonce, err := NewID(WithPrefix("n"))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate a nonce: %w", op, err)
	}

	scopes := strutils.RemoveDuplicatesStable(append(append([]string{}, DefaultOIDCScopes...), opts.withScopes...), true)
	expiresAt := opts.withNowFunc().Add(expireIn)

	locales := make([]string, 0, len(opts.withUILocales))
	for _, l := range opts.withUILocales {
		locales = append(locales, l.String())
	}

	return &LoginAttempt{
		URLRequest: &AuthCodeURLRequest{
			State:               state,
			Nonce:               nonce,
			Scopes:              scopes,
			RedirectURI:         redirectURI,
			ResponseMode:        ResponseModeFormPost,
			CodeChallenge:       verifier.Challenge(),
			CodeChallengeMethod: verifier.Method(),
			Prompts:             opts.withPrompts,
			LoginHint:           opts.withLoginHint,
			DomainHint:          opts.withDomainHint,
			UILocales:           locales,
			ExpiresAt:           expiresAt,
		},
		CodeRequest: &AuthCodeRequest{
			State:       state,
			Nonce:       nonce,
			Scopes:      scopes,
			RedirectURI: redirectURI,
			ExpiresAt:   expiresAt,
		},
		PKCE: PKCECodes{
			Verifier:        verifier.Verifier(),
			Challenge:       verifier.Challenge(),
			ChallengeMethod: verifier.Method(),
		},
		State: st,
	}, nil
}

func validPrompts(prompts []Prompt) error {
	for _, p := range prompts {
		if !supportedPrompts[p] {
			return fmt.Errorf("unsupported prompt %q: %w", p, ErrInvalidParameter)
		}
		if p == None && len(prompts) > 1 {
			return fmt.Errorf("prompt none must be used alone: %w", ErrInvalidParameter)
		}
	}
	return nil
}

// loginOptions is the set of available options for NewLoginAttempt
type loginOptions struct {
	withNowFunc         func() time.Time
	withScopes          []string
	withSuccessRedirect string
	withPrompts         []Prompt
	withLoginHint       string
	withDomainHint      string
	withUILocales       []language.Tag
	withVerifier        CodeVerifier
}

// loginDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func loginDefaults() loginOptions {
	return loginOptions{
		withNowFunc:         time.Now,
		withSuccessRedirect: DefaultSuccessRedirect,
	}
}

// getLoginOpts gets the login attempt defaults and applies the opt overrides
// passed in
func getLoginOpts(opt ...Option) loginOptions {
	opts := loginDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithSuccessRedirect provides the path the user is sent to once the login
// completes.
//
// Valid for: LoginAttempt
func WithSuccessRedirect(path string) Option {
	return func(o interface{}) {
		if o, ok := o.(*loginOptions); ok && path != "" {
			o.withSuccessRedirect = path
		}
	}
}

// WithPrompts provides an optional list of values that specifies whether the
// Authorization Server prompts the End-User for reauthentication and consent.
// "none" must not be combined with any other value.
//
// Valid for: LoginAttempt
func WithPrompts(prompts ...Prompt) Option {
	return func(o interface{}) {
		if o, ok := o.(*loginOptions); ok {
			o.withPrompts = prompts
		}
	}
}

// WithLoginHint provides an optional hint about the login identifier the
// End-User might use to log in.
//
// Valid for: LoginAttempt
func WithLoginHint(hint string) Option {
	return func(o interface{}) {
		if o, ok := o.(*loginOptions); ok {
			o.withLoginHint = hint
		}
	}
}

// WithDomainHint provides an optional Entra ID domain_hint which skips the
// home realm discovery page.
//
// Valid for: LoginAttempt
func WithDomainHint(hint string) Option {
	return func(o interface{}) {
		if o, ok := o.(*loginOptions); ok {
			o.withDomainHint = hint
		}
	}
}

// WithUILocales provides a list of End-User's preferred languages and scripts
// for the user interface, ordered by preference.
//
// Valid for: LoginAttempt
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		if o, ok := o.(*loginOptions); ok {
			o.withUILocales = locales
		}
	}
}

// WithPKCE provides an optional PKCE code verifier.  A new verifier is
// generated when one isn't provided.
//
// Valid for: LoginAttempt
func WithPKCE(v CodeVerifier) Option {
	return func(o interface{}) {
		if o, ok := o.(*loginOptions); ok && v != nil {
			o.withVerifier = v.Copy()
		}
	}
}
