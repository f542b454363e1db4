// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package flow provides http handlers which sign users in to a web application
with the OIDC authorization code flow with PKCE, keeping their tokens in a
server side session.

	f, _ := flow.New(provider, sessions, flow.WithRedirectURI("https://app/auth/redirect"))
	r.Get("/auth/signin", f.Login(flow.LoginOptions{Scopes: []string{"User.Read"}}))
	r.Post("/auth/redirect", f.HandleRedirect())
	r.Get("/auth/acquireToken", f.AcquireToken(flow.AcquireTokenOptions{Scopes: []string{"User.Read"}}))
	r.Get("/auth/signout", f.Logout(flow.LogoutOptions{}))
	r.With(f.RequireAuthentication).Get("/id", idHandler)

Errors are written by an ErrorResponseFunc (see DefaultErrorResponse and
ErrorStatus); successful logins call a SuccessResponseFunc, which redirects to
the login's success redirect by default.
*/
package flow
