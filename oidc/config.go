// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/cap-webflow/oidc/internal/strutils"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-multierror"
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// DefaultInstanceDiscoveryPath is appended to the authority's host when no
// InstanceDiscoveryURL is configured.
const DefaultInstanceDiscoveryPath = "/common/discovery/instance"

// Config represents the configuration for an OIDC provider used by a relying
// party.
type Config struct {
	// Authority is the Entra ID authority, for example
	// https://login.microsoftonline.com/{tenant}.  It must use the https
	// scheme.
	Authority string

	// ClientID is the relying party ID.
	ClientID string

	// ClientSecret is the relying party secret.
	ClientSecret ClientSecret

	// RedirectURL is the default URL the provider sends the authentication
	// response to.
	RedirectURL string

	// PostLogoutRedirectURL is an optional URL the provider sends the user to
	// after a logout.
	PostLogoutRedirectURL string

	// Scopes is a list of default scopes to request.  The openid, profile and
	// offline_access scopes are always requested.
	Scopes []string

	// SupportedSigningAlgs is a list of supported signing algorithms. When
	// empty, the algorithms from the provider's metadata are used.
	SupportedSigningAlgs []Alg

	// ProviderCA is an optional CA certs (PEM encoded) to use when sending
	// requests to the provider.
	ProviderCA string

	// InstanceDiscoveryURL is the cloud instance discovery endpoint.  It
	// defaults to the authority's host plus DefaultInstanceDiscoveryPath.
	InstanceDiscoveryURL string

	// CloudDiscoveryMetadata is optional pre-fetched cloud instance discovery
	// metadata (JSON).  When it's provided, the instance discovery endpoint
	// is never called.
	CloudDiscoveryMetadata string

	// AuthorityMetadata is optional pre-fetched openid configuration (JSON).
	// When it's provided, the openid configuration endpoint is never called.
	AuthorityMetadata string

	// NowFunc is a time func that returns the current time.
	NowFunc func() time.Time `json:"-"`
}

// NewConfig composes a new config for a provider.
//
// The "oidc" scope will always be added to the new configuration's Scopes,
// regardless of what additional scopes are requested via the WithScopes
// option.
//
// Supported options: WithProviderCA, WithScopes, WithNow,
// WithSupportedSigningAlgs, WithPostLogoutRedirectURL,
// WithInstanceDiscoveryURL, WithCloudDiscoveryMetadata,
// WithAuthorityMetadata
func NewConfig(authority string, clientID string, clientSecret ClientSecret, redirectURL string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		Authority:              strings.TrimSuffix(authority, "/"),
		ClientID:               clientID,
		ClientSecret:           clientSecret,
		RedirectURL:            redirectURL,
		PostLogoutRedirectURL:  opts.withPostLogoutRedirectURL,
		Scopes:                 opts.withScopes,
		SupportedSigningAlgs:   opts.withSupportedSigningAlgs,
		ProviderCA:             opts.withProviderCA,
		InstanceDiscoveryURL:   opts.withInstanceDiscoveryURL,
		CloudDiscoveryMetadata: opts.withCloudDiscoveryMetadata,
		AuthorityMetadata:      opts.withAuthorityMetadata,
		NowFunc:                opts.withNowFunc,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid provider config: %w", op, err)
	}
	return c, nil
}

// Validate the provider configuration.  Among other validations, it verifies
// the authority is not empty, but it doesn't verify the authority is
// discoverable via an http request.  Every problem found is reported.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: provider config is nil: %w", op, ErrNilParameter)
	}

	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("client ID is empty: %w", ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("client secret is empty: %w", ErrInvalidParameter))
	}
	if c.RedirectURL == "" {
		result = multierror.Append(result, fmt.Errorf("redirect URL is empty: %w", ErrInvalidParameter))
	} else if err := validURL(c.RedirectURL, "http", "https"); err != nil {
		result = multierror.Append(result, fmt.Errorf("redirect URL: %w", err))
	}
	if c.Authority == "" {
		result = multierror.Append(result, fmt.Errorf("authority is empty: %w", ErrInvalidParameter))
	} else if err := validURL(c.Authority, "https"); err != nil {
		result = multierror.Append(result, fmt.Errorf("authority: %w", err))
	}
	if c.PostLogoutRedirectURL != "" {
		if err := validURL(c.PostLogoutRedirectURL, "http", "https"); err != nil {
			result = multierror.Append(result, fmt.Errorf("post logout redirect URL: %w", err))
		}
	}
	if c.InstanceDiscoveryURL != "" {
		if err := validURL(c.InstanceDiscoveryURL, "https"); err != nil {
			result = multierror.Append(result, fmt.Errorf("instance discovery URL: %w", err))
		}
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			result = multierror.Append(result, fmt.Errorf("unsupported algorithm %q: %w", a, ErrInvalidParameter))
		}
	}
	if c.CloudDiscoveryMetadata != "" {
		if _, err := parseCloudDiscovery([]byte(c.CloudDiscoveryMetadata)); err != nil {
			result = multierror.Append(result, fmt.Errorf("cloud discovery metadata: %w", err))
		}
	}
	if c.AuthorityMetadata != "" {
		if _, err := parseAuthorityMetadata([]byte(c.AuthorityMetadata)); err != nil {
			result = multierror.Append(result, fmt.Errorf("authority metadata: %w", err))
		}
	}
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			result = multierror.Append(result, fmt.Errorf("provider CA: %w", ErrInvalidCACert))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func validURL(u string, schemes ...string) error {
	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("%q is invalid: %s: %w", u, err, ErrInvalidParameter)
	}
	if !strutils.StrListContains(schemes, parsed.Scheme) {
		return fmt.Errorf("%q scheme is not %s: %w", u, strings.Join(schemes, " or "), ErrInvalidParameter)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%q has no host: %w", u, ErrInvalidParameter)
	}
	return nil
}

// Now will return the current time which can be overridden by the NowFunc
func (c *Config) Now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now() // fallback to this default
}

// instanceDiscoveryURL returns the configured instance discovery endpoint or
// the default for the authority's host.
func (c *Config) instanceDiscoveryURL() string {
	if c.InstanceDiscoveryURL != "" {
		return c.InstanceDiscoveryURL
	}
	u, err := url.Parse(c.Authority)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, DefaultInstanceDiscoveryPath)
}

// HTTPClient returns a pooled http client for the provider.  The optional
// ProviderCA is used as the only trusted root.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	tr := cleanhttp.DefaultPooledTransport()
	if c.ProviderCA != "" {
		certPool := x509.NewCertPool()
		if ok := certPool.AppendCertsFromPEM([]byte(c.ProviderCA)); !ok {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCACert)
		}
		tr.TLSClientConfig = &tls.Config{
			RootCAs:    certPool,
			MinVersion: tls.VersionTLS12,
		}
	}
	return &http.Client{
		Transport: tr,
	}, nil
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

// configOptions is the set of available options
type configOptions struct {
	withScopes                 []string
	withProviderCA             string
	withNowFunc                func() time.Time
	withSupportedSigningAlgs   []Alg
	withPostLogoutRedirectURL  string
	withInstanceDiscoveryURL   string
	withCloudDiscoveryMetadata string
	withAuthorityMetadata      string
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithProviderCA provides optional CA certs (PEM encoded) for the provider's
// config.  These certs will can be used when making http requests to the
// provider.
//
// Valid for: Config
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithSupportedSigningAlgs provides the list of id_token signing algorithms
// the relying party accepts.
//
// Valid for: Config
func WithSupportedSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSupportedSigningAlgs = algs
		}
	}
}

// WithPostLogoutRedirectURL provides the URL the provider sends the user to
// after a logout.
//
// Valid for: Config
func WithPostLogoutRedirectURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withPostLogoutRedirectURL = u
		}
	}
}

// WithInstanceDiscoveryURL overrides the cloud instance discovery endpoint.
//
// Valid for: Config
func WithInstanceDiscoveryURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withInstanceDiscoveryURL = u
		}
	}
}

// WithCloudDiscoveryMetadata provides pre-fetched cloud instance discovery
// metadata (JSON).
//
// Valid for: Config
func WithCloudDiscoveryMetadata(md string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withCloudDiscoveryMetadata = md
		}
	}
}

// WithAuthorityMetadata provides a pre-fetched openid configuration (JSON).
//
// Valid for: Config
func WithAuthorityMetadata(md string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAuthorityMetadata = md
		}
	}
}
