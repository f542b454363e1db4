// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/cap-webflow/oidc"
	"github.com/hashicorp/cap-webflow/oidc/flow"
	"github.com/hashicorp/cap-webflow/session"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/oauth2"
)

type app struct {
	cfg      *config
	logger   hclog.Logger
	provider *oidc.Provider
	sessions *session.Manager
	flow     *flow.Flow
	registry *prometheus.Registry
}

func newRouter(a *app) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.Get("/", a.home)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/signin", a.flow.Login(flow.LoginOptions{
			Scopes:      a.cfg.Scopes,
			RedirectURI: a.cfg.RedirectURI,
		}))
		r.Post("/redirect", a.flow.HandleRedirect())
		r.Get("/acquireToken", a.flow.AcquireToken(flow.AcquireTokenOptions{
			Scopes:      a.cfg.Scopes,
			RedirectURI: a.cfg.RedirectURI,
		}))
		r.Get("/signout", a.flow.Logout(flow.LogoutOptions{
			PostLogoutRedirectURI: a.cfg.PostLogoutRedirectURI,
		}))
	})
	r.Group(func(r chi.Router) {
		r.Use(a.flow.RequireAuthentication)
		r.Get("/id", a.id)
		r.Get("/me", a.me)
		r.Get("/userinfo", a.userInfo)
	})
	return r
}

func (a *app) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("failed to write response", "error", err)
	}
}

func (a *app) home(w http.ResponseWriter, req *http.Request) {
	rec, err := a.sessions.Load(req)
	if err != nil {
		flow.DefaultErrorResponse(a.logger)("", nil, err, w, req)
		return
	}
	body := struct {
		IsAuthenticated bool   `json:"isAuthenticated"`
		Username        string `json:"username,omitempty"`
	}{IsAuthenticated: rec.IsAuthenticated}
	if rec.IsAuthenticated && rec.Account != nil {
		body.Username = rec.Account.Username
	}
	a.writeJSON(w, http.StatusOK, body)
}

func (a *app) id(w http.ResponseWriter, req *http.Request) {
	var raw string
	if rec, ok := flow.RecordFromContext(req.Context()); ok {
		raw = rec.IdToken
	}
	// the session only ever holds id_tokens which were verified on receipt
	var claims map[string]interface{}
	if err := oidc.IdToken(raw).Claims(&claims); err != nil {
		flow.DefaultErrorResponse(a.logger)("", nil, fmt.Errorf("unable to read id_token claims: %w", err), w, req)
		return
	}
	a.writeJSON(w, http.StatusOK, struct {
		IdTokenClaims map[string]interface{} `json:"idTokenClaims"`
	}{claims})
}

func (a *app) me(w http.ResponseWriter, req *http.Request) {
	rec, _ := flow.RecordFromContext(req.Context())
	body := struct {
		Username string `json:"username"`
		Name     string `json:"name,omitempty"`
		Email    string `json:"email,omitempty"`
	}{}
	if rec.Account != nil {
		body.Username = rec.Account.Username
		body.Name = rec.Account.Name
		if email, ok := rec.Account.Claims["email"].(string); ok {
			body.Email = email
		}
	}
	a.writeJSON(w, http.StatusOK, body)
}

// userInfo calls the provider's userinfo endpoint with the session's access
// token.  An expired token is refreshed with /auth/acquireToken first.
func (a *app) userInfo(w http.ResponseWriter, req *http.Request) {
	const op = "userInfo"
	rec, _ := flow.RecordFromContext(req.Context())
	if rec.AccessToken == "" {
		flow.DefaultErrorResponse(a.logger)("", nil, fmt.Errorf("%s: session has no access token: %w", op, oidc.ErrInteractionRequired), w, req)
		return
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: rec.AccessToken, TokenType: "Bearer"})
	var claims map[string]interface{}
	if err := a.provider.UserInfo(req.Context(), ts, &claims); err != nil {
		flow.DefaultErrorResponse(a.logger)("", nil, fmt.Errorf("%s: %w", op, err), w, req)
		return
	}
	a.writeJSON(w, http.StatusOK, claims)
}
