// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// webflow provides a collection of related packages which sign users in to a
// confidential client web app with the Microsoft identity platform.
//
// The oidc package is the client of the Entra ID authority: its discovery
// metadata, authorization code requests with PKCE, token redemption, id_token
// verification and a token cache with silent renewal.  The session package
// persists those tokens between requests in memory or redis.  The oidc/flow
// package provides the http.Handlers for sign in, the authentication response,
// token acquisition and sign out.  cmd/webapp is a web app built from them.
package webflow
