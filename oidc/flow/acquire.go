// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"fmt"
	"net/http"

	"github.com/hashicorp/cap-webflow/oidc"
)

// AcquireTokenOptions configure the acquisitions of AcquireToken.
type AcquireTokenOptions struct {
	// Scopes the access token must be granted.
	Scopes []string

	// RedirectURI and SuccessRedirect are used by the login started when
	// the user must interact with the provider.
	RedirectURI     string
	SuccessRedirect string
}

// AcquireToken returns a handler which acquires an access token for the
// session's account without user interaction, using the cached access token
// or redeeming the cached refresh token.  When the provider requires
// interaction, a new login is started with the same scopes, redirect URI and
// success redirect.
func (f *Flow) AcquireToken(o AcquireTokenOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		const op = "Flow.AcquireToken"
		rec, err := f.sessions.Load(req)
		if err != nil {
			f.errorFn("", nil, fmt.Errorf("%s: unable to load session: %w", op, err), w, req)
			return
		}
		o := o
		if sr := req.URL.Query().Get(SuccessRedirectParam); sr != "" {
			o.SuccessRedirect = sr
		}
		successRedirect := safeRedirect(o.SuccessRedirect)

		var tk *oidc.Token
		cache, err := rec.Cache()
		if err == nil {
			var before *oidc.Token
			if rec.Account != nil {
				before, _ = cache.Lookup(rec.Account.HomeAccountID)
			}
			tk, err = f.client.AcquireTokenSilent(req.Context(), cache, rec.Account, o.Scopes)
			if err == nil {
				outcome := OutcomeRefreshed
				if before != nil && before.AccessToken == tk.AccessToken {
					outcome = OutcomeCached
				}
				f.metrics.IncrementSilentAcquires(outcome)
			}
		}
		switch {
		case oidc.IsInteractionRequired(err):
			f.metrics.IncrementSilentAcquires(OutcomeInteractionRequired)
			f.logger.Debug("interaction required, starting login", "error", err)
			// refresh tokens rotated by a refresh which didn't grant the
			// scopes are kept for the next acquisition
			if rec.IsAuthenticated && cache != nil {
				if err := rec.SetCache(cache); err != nil {
					f.logger.Warn("unable to keep token cache", "error", err)
				}
			}
			lo := LoginOptions{
				Scopes:          o.Scopes,
				RedirectURI:     o.RedirectURI,
				SuccessRedirect: successRedirect,
			}
			if err := f.login(w, req, rec, lo); err != nil {
				f.errorFn("", nil, fmt.Errorf("%s: %w", op, err), w, req)
			}
			return
		case err != nil:
			f.metrics.IncrementSilentAcquires(OutcomeError)
			f.errorFn("", nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}

		if err := rec.SetTokens(tk, cache); err != nil {
			f.errorFn("", nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		if err := f.sessions.Save(w, req, rec); err != nil {
			f.errorFn("", nil, fmt.Errorf("%s: unable to save session: %w", op, err), w, req)
			return
		}
		f.successFn(successRedirect, tk, w, req)
	}
}
