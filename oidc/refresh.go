// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// refreshScopeTransport adds a scope parameter to refresh_token grants.  The
// v2.0 token endpoint requires it, and oauth2's refreshing TokenSource never
// sends one.
type refreshScopeTransport struct {
	base  http.RoundTripper
	scope string
}

// RoundTrip implements http.RoundTripper.  The request is cloned before its
// body is replaced.
func (t *refreshScopeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	const op = "refreshScopeTransport.RoundTrip"
	if req.Method != http.MethodPost || req.Body == nil || t.scope == "" ||
		!strings.HasPrefix(req.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return t.base.RoundTrip(req)
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read request body: %w", op, err)
	}
	if form, err := url.ParseQuery(string(body)); err == nil &&
		form.Get("grant_type") == "refresh_token" && form.Get("scope") == "" {
		form.Set("scope", t.scope)
		body = []byte(form.Encode())
	}
	r := req.Clone(req.Context())
	r.Body = io.NopCloser(bytes.NewReader(body))
	r.ContentLength = int64(len(body))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return t.base.RoundTrip(r)
}

// refreshClient returns a copy of the provider's client which requests the
// scopes when redeeming refresh tokens.
func (p *Provider) refreshClient(scopes []string) *http.Client {
	base := p.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c := *p.client
	c.Transport = &refreshScopeTransport{base: base, scope: strings.Join(scopes, " ")}
	return &c
}
