// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/hashicorp/cap-webflow/session"
)

type recordKey struct{}

// RecordFromContext returns the session record RequireAuthentication added to
// the request context.
func RecordFromContext(ctx context.Context) (*session.Record, bool) {
	r, ok := ctx.Value(recordKey{}).(*session.Record)
	return r, ok
}

// RequireAuthentication is middleware which only lets authenticated sessions
// through to next; anonymous users are redirected to the login path with the
// requested path as their success redirect.  The session record is available
// to next via RecordFromContext.
func (f *Flow) RequireAuthentication(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		const op = "Flow.RequireAuthentication"
		rec, err := f.sessions.Load(req)
		if err != nil {
			f.errorFn("", nil, fmt.Errorf("%s: unable to load session: %w", op, err), w, req)
			return
		}
		if !rec.IsAuthenticated {
			q := url.Values{}
			q.Set(SuccessRedirectParam, safeRedirect(req.URL.RequestURI()))
			http.Redirect(w, req, f.loginPath+"?"+q.Encode(), http.StatusFound)
			return
		}
		next.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), recordKey{}, rec)))
	})
}
