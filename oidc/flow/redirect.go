// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"fmt"
	"net/http"

	"github.com/hashicorp/cap-webflow/oidc"
	"github.com/hashicorp/cap-webflow/session"
)

// HandleRedirect returns a handler for the provider's form_post
// authentication response.  The response's state must equal the state of
// the session's pending login before its code is exchanged; the pending login
// is single use and is cleared once its code has been sent to the provider.
//
// On success the session becomes authenticated, its ID is renewed and the
// SuccessResponseFunc is called with the login's success redirect.
func (f *Flow) HandleRedirect() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		const op = "Flow.HandleRedirect"
		fail := func(state string, respErr *AuthenErrorResponse, err error) {
			f.metrics.IncrementRedirects(redirectOutcome(err))
			f.errorFn(state, respErr, err, w, req)
		}

		if err := req.ParseForm(); err != nil {
			fail("", nil, fmt.Errorf("%s: unable to parse form: %s: %w", op, err, oidc.ErrProtocol))
			return
		}
		// FormValue prioritizes body values, if found
		reqState := req.FormValue("state")
		if reqState == "" {
			fail("", nil, fmt.Errorf("%s: %w", op, oidc.ErrMissingState))
			return
		}

		rec, err := f.sessions.Load(req)
		if err != nil {
			fail(reqState, nil, fmt.Errorf("%s: unable to load session: %w", op, err))
			return
		}

		if e := req.FormValue("error"); e != "" {
			respErr := &AuthenErrorResponse{
				Error:       e,
				Description: req.FormValue("error_description"),
				Uri:         req.FormValue("error_uri"),
			}
			if rec.HasPendingLogin() && rec.AuthCodeURLRequest.State == reqState {
				rec.ClearPendingLogin()
				if err := f.sessions.Save(w, req, rec); err != nil {
					f.logger.Warn("unable to clear pending login", "error", err)
				}
			}
			fail(reqState, respErr, fmt.Errorf("%s: provider returned %s: %w", op, e, oidc.ErrLoginFailed))
			return
		}

		if !rec.HasPendingLogin() {
			fail(reqState, nil, fmt.Errorf("%s: %w", op, oidc.ErrNotFound))
			return
		}
		if rec.AuthCodeURLRequest.State != reqState {
			fail(reqState, nil, fmt.Errorf("%s: %w", op, oidc.ErrResponseStateInvalid))
			return
		}
		if rec.AuthCodeRequest.IsExpired(f.now()) {
			rec.ClearPendingLogin()
			if err := f.sessions.Save(w, req, rec); err != nil {
				f.logger.Warn("unable to clear expired login", "error", err)
			}
			fail(reqState, nil, fmt.Errorf("%s: pending login: %w", op, oidc.ErrExpiredRequest))
			return
		}
		code := req.FormValue("code")
		if code == "" {
			fail(reqState, nil, fmt.Errorf("%s: %w", op, oidc.ErrMissingCode))
			return
		}
		st, err := oidc.DecodeAuthState(reqState)
		if err != nil {
			fail(reqState, nil, fmt.Errorf("%s: %w", op, err))
			return
		}
		verifier, err := oidc.NewCodeVerifierFromString(rec.PKCECodes.Verifier)
		if err != nil {
			fail(reqState, nil, fmt.Errorf("%s: stored verifier: %w", op, err))
			return
		}

		codeReq := *rec.AuthCodeRequest
		codeReq.Code = code
		codeReq.CodeVerifier = verifier.Verifier()
		tk, cache, err := f.client.Exchange(req.Context(), &codeReq)

		// the code and verifier have been sent; the login can't be reused
		rec.ClearPendingLogin()
		if err != nil {
			if saveErr := f.sessions.Save(w, req, rec); saveErr != nil {
				f.logger.Warn("unable to clear pending login", "error", saveErr)
			}
			fail(reqState, nil, fmt.Errorf("%s: unable to exchange authorization code: %w", op, err))
			return
		}
		if err := f.authenticate(w, req, rec, tk, cache); err != nil {
			fail(reqState, nil, fmt.Errorf("%s: %w", op, err))
			return
		}
		f.metrics.IncrementRedirects(OutcomeSuccess)
		f.logger.Info("user signed in", "account", tk.Account.HomeAccountID)
		f.successFn(safeRedirect(st.SuccessRedirect), tk, w, req)
	}
}

// authenticate stores the tokens in the record and saves it under a new
// session ID.
func (f *Flow) authenticate(w http.ResponseWriter, req *http.Request, rec *session.Record, tk *oidc.Token, cache *oidc.TokenCache) error {
	const op = "Flow.authenticate"
	if err := rec.SetTokens(tk, cache); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := f.sessions.Renew(w, req, rec); err != nil {
		return fmt.Errorf("%s: unable to save session: %w", op, err)
	}
	return nil
}
