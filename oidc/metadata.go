// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
)

// tenantIDTemplate is the placeholder Entra ID uses in the issuer of
// multi-tenant authorities.
const tenantIDTemplate = "{tenantid}"

// maxMetadataSize bounds the size of a metadata document read from the
// provider.
const maxMetadataSize = 1 << 20

// multiTenantAuthorities are authority tenants whose tokens are issued by the
// user's home tenant.
var multiTenantAuthorities = map[string]bool{
	"common":        true,
	"organizations": true,
	"consumers":     true,
}

// Endpoints are the provider endpoints used by the relying party.
type Endpoints struct {
	Issuer        string   `json:"issuer"`
	AuthURL       string   `json:"authorization_endpoint"`
	TokenURL      string   `json:"token_endpoint"`
	JWKSURL       string   `json:"jwks_uri"`
	EndSessionURL string   `json:"end_session_endpoint,omitempty"`
	UserInfoURL   string   `json:"userinfo_endpoint,omitempty"`
	Algorithms    []string `json:"id_token_signing_alg_values_supported,omitempty"`
}

// CloudInstance is one entry of the cloud instance discovery metadata.
type CloudInstance struct {
	PreferredNetwork string   `json:"preferred_network"`
	PreferredCache   string   `json:"preferred_cache"`
	Aliases          []string `json:"aliases"`
}

// cloudDiscovery is the cloud instance discovery document.
type cloudDiscovery struct {
	TenantDiscoveryEndpoint string          `json:"tenant_discovery_endpoint"`
	APIVersion              string          `json:"api-version"`
	Metadata                []CloudInstance `json:"metadata"`
}

// Metadata is the provider metadata used for one operation.
type Metadata struct {
	// CloudDiscoveryMetadata is the raw cloud instance discovery document,
	// it's nil when unavailable.
	CloudDiscoveryMetadata json.RawMessage

	// AuthorityMetadata is the raw openid configuration, it's nil when
	// unavailable.
	AuthorityMetadata json.RawMessage

	// Endpoints are parsed from AuthorityMetadata, or derived from the
	// authority when it's unavailable.
	Endpoints Endpoints

	// Instances are parsed from CloudDiscoveryMetadata.
	Instances []CloudInstance
}

// UsingDefaults is true when the endpoints are derived from the authority
// rather than the provider's openid configuration.
func (m *Metadata) UsingDefaults() bool {
	return m == nil || len(m.AuthorityMetadata) == 0
}

// KnownHost is true when host is an alias of a cloud instance.  It's always
// true when there is no cloud discovery metadata.
func (m *Metadata) KnownHost(host string) bool {
	if m == nil || len(m.Instances) == 0 {
		return true
	}
	for _, inst := range m.Instances {
		for _, a := range inst.Aliases {
			if strings.EqualFold(a, host) {
				return true
			}
		}
	}
	return false
}

func parseCloudDiscovery(data []byte) (*cloudDiscovery, error) {
	var cd cloudDiscovery
	if err := json.Unmarshal(data, &cd); err != nil {
		return nil, fmt.Errorf("unable to parse cloud discovery metadata: %s: %w", err, ErrInvalidParameter)
	}
	return &cd, nil
}

func parseAuthorityMetadata(data []byte) (*Endpoints, error) {
	var e Endpoints
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unable to parse authority metadata: %s: %w", err, ErrInvalidParameter)
	}
	switch {
	case e.AuthURL == "":
		return nil, fmt.Errorf("authority metadata is missing authorization_endpoint: %w", ErrInvalidParameter)
	case e.TokenURL == "":
		return nil, fmt.Errorf("authority metadata is missing token_endpoint: %w", ErrInvalidParameter)
	case e.JWKSURL == "":
		return nil, fmt.Errorf("authority metadata is missing jwks_uri: %w", ErrInvalidParameter)
	}
	return &e, nil
}

// defaultEndpoints derives the Entra ID v2.0 endpoints from the authority.
func defaultEndpoints(authority string) Endpoints {
	authority = strings.TrimSuffix(authority, "/")
	issuer := authority + "/v2.0"
	if u, err := url.Parse(authority); err == nil {
		if multiTenantAuthorities[strings.ToLower(strings.Trim(u.Path, "/"))] {
			issuer = fmt.Sprintf("%s://%s/%s/v2.0", u.Scheme, u.Host, tenantIDTemplate)
		}
	}
	return Endpoints{
		Issuer:        issuer,
		AuthURL:       authority + "/oauth2/v2.0/authorize",
		TokenURL:      authority + "/oauth2/v2.0/token",
		JWKSURL:       authority + "/discovery/v2.0/keys",
		EndSessionURL: authority + "/oauth2/v2.0/logout",
		Algorithms:    []string{string(RS256)},
	}
}

// GetCloudDiscoveryMetadata fetches the cloud instance discovery metadata for
// the authority.
func (p *Provider) GetCloudDiscoveryMetadata(ctx context.Context, authority string) (json.RawMessage, error) {
	const op = "Provider.GetCloudDiscoveryMetadata"
	u, err := url.Parse(p.config.instanceDiscoveryURL())
	if err != nil {
		return nil, fmt.Errorf("%s: invalid instance discovery url: %w", op, ErrInvalidParameter)
	}
	q := u.Query()
	q.Set("api-version", "1.1")
	q.Set("authorization_endpoint", strings.TrimSuffix(authority, "/")+"/oauth2/v2.0/authorize")
	u.RawQuery = q.Encode()

	data, err := p.getJSON(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := parseCloudDiscovery(data); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}

// GetAuthorityMetadata fetches the openid configuration of the authority.
func (p *Provider) GetAuthorityMetadata(ctx context.Context, authority string) (json.RawMessage, error) {
	const op = "Provider.GetAuthorityMetadata"
	wellKnown := strings.TrimSuffix(authority, "/") + "/v2.0/.well-known/openid-configuration"
	data, err := p.getJSON(ctx, wellKnown)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := parseAuthorityMetadata(data); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return data, nil
}

func (p *Provider) getJSON(ctx context.Context, u string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to get %s: %w", u, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataSize))
	if err != nil {
		return nil, fmt.Errorf("unable to read response from %s: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned %s: %w", u, resp.Status, ErrMetadataUnavailable)
	}
	return json.RawMessage(body), nil
}

// Metadata returns the provider metadata, fetching whatever isn't cached or
// configured.  The two documents are fetched concurrently.  Fetch failures are
// logged and never returned: the endpoints fall back to the Entra ID defaults
// for the authority and the fetch is retried on the next call.
func (p *Provider) Metadata(ctx context.Context) (*Metadata, error) {
	const op = "Provider.Metadata"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	p.mu.Lock()
	cloud, authority := p.cloudDiscovery, p.authorityMetadata
	p.mu.Unlock()

	if cloud == nil || authority == nil {
		var g errgroup.Group
		if cloud == nil {
			g.Go(func() error {
				data, err := p.GetCloudDiscoveryMetadata(ctx, p.config.Authority)
				if err != nil {
					p.logger.Warn("cloud instance discovery failed, continuing without it", "authority", p.config.Authority, "error", err)
					return nil
				}
				cloud = data
				return nil
			})
		}
		if authority == nil {
			g.Go(func() error {
				data, err := p.GetAuthorityMetadata(ctx, p.config.Authority)
				if err != nil {
					p.logger.Warn("openid configuration unavailable, using default endpoints", "authority", p.config.Authority, "error", err)
					return nil
				}
				authority = data
				return nil
			})
		}
		_ = g.Wait()

		p.mu.Lock()
		if p.cloudDiscovery == nil {
			p.cloudDiscovery = cloud
		}
		if p.authorityMetadata == nil {
			p.authorityMetadata = authority
		}
		p.mu.Unlock()
	}

	md := &Metadata{
		CloudDiscoveryMetadata: cloud,
		AuthorityMetadata:      authority,
		Endpoints:              defaultEndpoints(p.config.Authority),
	}
	if len(authority) > 0 {
		e, err := parseAuthorityMetadata(authority)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		md.Endpoints = *e
		if md.Endpoints.EndSessionURL == "" {
			md.Endpoints.EndSessionURL = defaultEndpoints(p.config.Authority).EndSessionURL
		}
	}
	if len(cloud) > 0 {
		cd, err := parseCloudDiscovery(cloud)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		md.Instances = cd.Metadata
		if u, err := url.Parse(p.config.Authority); err == nil && !md.KnownHost(u.Host) {
			p.logger.Warn("authority host is not a known cloud instance alias", "host", u.Host)
		}
	}
	return md, nil
}
