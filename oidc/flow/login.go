// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"fmt"
	"net/http"

	"github.com/hashicorp/cap-webflow/oidc"
	"github.com/hashicorp/cap-webflow/session"
)

// LoginOptions configure the logins started by Login.
type LoginOptions struct {
	// Scopes are requested in addition to openid, profile and
	// offline_access.
	Scopes []string

	// RedirectURI is where the provider posts its response.  It defaults to
	// the Flow's redirect URI.
	RedirectURI string

	// SuccessRedirect is the local path users are sent to once signed in.
	// The request's successRedirect query parameter overrides it.
	SuccessRedirect string

	Prompts    []oidc.Prompt
	LoginHint  string
	DomainHint string
}

// Login returns a handler which starts a new login: a fresh PKCE verifier,
// state and nonce are created, the pending login is saved in the session and
// the user is redirected to the provider's authorize URL.
func (f *Flow) Login(o LoginOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		const op = "Flow.Login"
		rec, err := f.sessions.Load(req)
		if err != nil {
			f.errorFn("", nil, fmt.Errorf("%s: unable to load session: %w", op, err), w, req)
			return
		}
		lo := o
		if sr := req.URL.Query().Get(SuccessRedirectParam); sr != "" {
			lo.SuccessRedirect = sr
		}
		if err := f.login(w, req, rec, lo); err != nil {
			f.errorFn("", nil, fmt.Errorf("%s: %w", op, err), w, req)
		}
	}
}

// login saves a new pending login in the record and redirects to the
// provider.  The response is only written on success.
func (f *Flow) login(w http.ResponseWriter, req *http.Request, rec *session.Record, o LoginOptions) error {
	const op = "Flow.login"
	redirectURI := o.RedirectURI
	if redirectURI == "" {
		redirectURI = f.redirectURI
	}
	attempt, err := oidc.NewLoginAttempt(f.loginExpiry, redirectURI,
		oidc.WithNow(f.now),
		oidc.WithScopes(o.Scopes...),
		oidc.WithSuccessRedirect(safeRedirect(o.SuccessRedirect)),
		oidc.WithPrompts(o.Prompts...),
		oidc.WithLoginHint(o.LoginHint),
		oidc.WithDomainHint(o.DomainHint),
	)
	if err != nil {
		return fmt.Errorf("%s: unable to create login attempt: %w", op, err)
	}
	authURL, err := f.client.AuthURL(req.Context(), attempt.URLRequest)
	if err != nil {
		return fmt.Errorf("%s: unable to create auth url: %w", op, err)
	}
	rec.SetPendingLogin(attempt)
	if err := f.sessions.Save(w, req, rec); err != nil {
		return fmt.Errorf("%s: unable to save session: %w", op, err)
	}
	f.metrics.IncrementLoginRedirects()
	f.logger.Debug("redirecting to provider", "scopes", attempt.URLRequest.Scopes, "redirect_uri", redirectURI)
	http.Redirect(w, req, authURL, http.StatusFound)
	return nil
}
