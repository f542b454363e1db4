// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
Package oidc is a package for writing relying party integrations with Entra ID
(Azure AD) using the OIDC authorization code flow with PKCE.

Primary types provided by the package

* Config: provides the configuration for the flow (for example: authority,
client ID/Secret, redirect URL, supported signing algorithms, additional scopes
requested, pre-fetched provider metadata, etc).

* Provider: provides integration with the provider.  It caches the provider's
metadata (cloud instance discovery and openid configuration), generates
authorize URLs, exchanges authorization codes for tokens, silently acquires
tokens using refresh tokens, verifies id_tokens and builds logout URLs.

* LoginAttempt: everything a relying party must remember between sending the
user to the provider and receiving the form_post authentication response: the
AuthCodeURLRequest, the pending AuthCodeRequest and the PKCE codes.

* AuthState: the payload of the oauth state parameter, which carries the
post-login navigation target.

* CodeVerifier: a PKCE code verifier and its S256 challenge.

* Token and TokenCache: the tokens of an Account.  The TokenCache serializes
to an opaque string suitable for a server side session.

* TestProvider: a fake Entra ID for tests.

The oidc/flow package

The flow package provides the http.HandlerFuncs of a web application: login,
the redirect callback, silent token acquisition and logout.
*/
package oidc
