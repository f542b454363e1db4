// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/cap-webflow/oidc"
	"github.com/hashicorp/cap-webflow/session"
	"github.com/hashicorp/go-hclog"
)

const (
	// DefaultLoginPath is where RequireAuthentication sends anonymous users.
	DefaultLoginPath = "/auth/signin"

	// DefaultLoginExpiry is how long a login may stay pending.
	DefaultLoginExpiry = oidc.DefaultLoginAttemptExpiry

	// SuccessRedirectParam is the query parameter which overrides a login's
	// success redirect.
	SuccessRedirectParam = "successRedirect"
)

// Client is the provider the flow signs users in with.  *oidc.Provider
// satisfies it.
type Client interface {
	AuthURL(ctx context.Context, r *oidc.AuthCodeURLRequest) (string, error)
	Exchange(ctx context.Context, r *oidc.AuthCodeRequest) (*oidc.Token, *oidc.TokenCache, error)
	AcquireTokenSilent(ctx context.Context, cache *oidc.TokenCache, account *oidc.Account, scopes []string) (*oidc.Token, error)
	LogoutURL(ctx context.Context, postLogoutRedirectURI string) (string, error)
}

// Sessions loads and saves the session of a request.  *session.Manager
// satisfies it.
type Sessions interface {
	Load(req *http.Request) (*session.Record, error)
	Save(w http.ResponseWriter, req *http.Request, r *session.Record) error
	Renew(w http.ResponseWriter, req *http.Request, r *session.Record) error
	Destroy(w http.ResponseWriter, req *http.Request) error
}

// Flow drives a user's session through sign in, silent token acquisition and
// sign out:
//
//	Anonymous -> PendingRedirect (Login)
//	PendingRedirect -> Authenticated (HandleRedirect)
//	Authenticated -> Authenticated (AcquireToken)
//	Authenticated -> PendingRedirect (AcquireToken, when interaction is required)
//	Authenticated -> Anonymous (Logout)
//
// A Flow is safe for concurrent use; all of its state is in the sessions.
type Flow struct {
	client      Client
	sessions    Sessions
	logger      hclog.Logger
	metrics     *Metrics
	errorFn     ErrorResponseFunc
	successFn   SuccessResponseFunc
	loginPath   string
	loginExpiry time.Duration
	redirectURI string
	now         func() time.Time
}

// New creates a new Flow.
//
// Supported options: WithLogger, WithMetrics, WithErrorResponse,
// WithSuccessResponse, WithLoginPath, WithLoginExpiry, WithRedirectURI,
// WithNow
func New(c Client, s Sessions, opt ...Option) (*Flow, error) {
	const op = "flow.New"
	switch {
	case c == nil:
		return nil, fmt.Errorf("%s: client is nil: %w", op, oidc.ErrNilParameter)
	case s == nil:
		return nil, fmt.Errorf("%s: sessions is nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getFlowOpts(opt...)
	f := &Flow{
		client:      c,
		sessions:    s,
		logger:      opts.withLogger,
		metrics:     opts.withMetrics,
		errorFn:     opts.withErrorResponse,
		successFn:   opts.withSuccessResponse,
		loginPath:   opts.withLoginPath,
		loginExpiry: opts.withLoginExpiry,
		redirectURI: opts.withRedirectURI,
		now:         opts.withNowFunc,
	}
	if f.errorFn == nil {
		f.errorFn = DefaultErrorResponse(f.logger)
	}
	if f.successFn == nil {
		f.successFn = redirectResponse
	}
	return f, nil
}

// safeRedirect returns the path when it's local to the application, and "/"
// otherwise.
func safeRedirect(path string) string {
	switch {
	case path == "":
		return oidc.DefaultSuccessRedirect
	case !strings.HasPrefix(path, "/"),
		strings.HasPrefix(path, "//"),
		strings.HasPrefix(path, "/\\"),
		strings.ContainsAny(path, "\r\n"):
		return oidc.DefaultSuccessRedirect
	}
	return path
}

func redirectResponse(successRedirect string, _ *oidc.Token, w http.ResponseWriter, req *http.Request) {
	http.Redirect(w, req, successRedirect, http.StatusFound)
}
