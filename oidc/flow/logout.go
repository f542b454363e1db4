// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"fmt"
	"net/http"
)

// LogoutOptions configure Logout.
type LogoutOptions struct {
	// PostLogoutRedirectURI is where the provider sends the user once signed
	// out.  It defaults to the provider's configured post logout redirect.
	PostLogoutRedirectURI string
}

// Logout returns a handler which destroys the session and redirects the user
// to the provider's end session endpoint.
func (f *Flow) Logout(o LogoutOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		const op = "Flow.Logout"
		if err := f.sessions.Destroy(w, req); err != nil {
			f.errorFn("", nil, fmt.Errorf("%s: unable to destroy session: %w", op, err), w, req)
			return
		}
		logoutURL, err := f.client.LogoutURL(req.Context(), o.PostLogoutRedirectURI)
		if err != nil {
			f.errorFn("", nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		f.metrics.IncrementLogouts()
		http.Redirect(w, req, logoutURL, http.StatusFound)
	}
}
