// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
)

// List of configuration environment variables
const (
	envAuthority             = "AUTHORITY"
	envCloudInstance         = "CLOUD_INSTANCE"
	envTenantID              = "TENANT_ID"
	envClientID              = "CLIENT_ID"
	envClientSecret          = "CLIENT_SECRET"
	envRedirectURI           = "REDIRECT_URI"
	envPostLogoutRedirectURI = "POST_LOGOUT_REDIRECT_URI"
	envScopes                = "SCOPES"
	envAddr                  = "ADDR"
	envSessionTTL            = "SESSION_TTL"
	envRedisURL              = "REDIS_URL"
	envLogLevel              = "LOG_LEVEL"
	envLogJSON               = "LOG_JSON"
	envDev                   = "DEV"
)

const (
	defaultCloudInstance = "https://login.microsoftonline.com/"
	defaultAddr          = ":3000"
	defaultSessionTTL    = 24 * time.Hour
	defaultScopes        = "User.Read"
)

type config struct {
	Authority             string
	ClientID              string
	ClientSecret          string
	RedirectURI           string
	PostLogoutRedirectURI string
	Scopes                []string
	Addr                  string
	SessionTTL            time.Duration
	RedisURL              string
	LogLevel              string
	LogJSON               bool
	Dev                   bool
}

// envConfig reads the web app's config from the environment.  The authority
// is either AUTHORITY or CLOUD_INSTANCE joined with TENANT_ID.
func envConfig(getenv func(string) string) (*config, error) {
	const op = "envConfig"
	get := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}
	c := &config{
		Authority:             get(envAuthority, ""),
		ClientID:              get(envClientID, ""),
		ClientSecret:          get(envClientSecret, ""),
		RedirectURI:           get(envRedirectURI, ""),
		PostLogoutRedirectURI: get(envPostLogoutRedirectURI, ""),
		Scopes:                strings.Fields(get(envScopes, defaultScopes)),
		Addr:                  get(envAddr, defaultAddr),
		SessionTTL:            defaultSessionTTL,
		RedisURL:              get(envRedisURL, ""),
		LogLevel:              get(envLogLevel, "info"),
	}

	var result *multierror.Error
	if c.Authority == "" {
		tenantID := get(envTenantID, "")
		if tenantID == "" {
			result = multierror.Append(result, fmt.Errorf("%s or %s is required", envAuthority, envTenantID))
		}
		c.Authority = strings.TrimSuffix(get(envCloudInstance, defaultCloudInstance), "/") + "/" + tenantID
	}
	for k, v := range map[string]string{
		envClientID:     c.ClientID,
		envClientSecret: c.ClientSecret,
		envRedirectURI:  c.RedirectURI,
	} {
		if v == "" {
			result = multierror.Append(result, fmt.Errorf("%s is empty", k))
		}
	}
	if v := get(envSessionTTL, ""); v != "" {
		ttl, err := time.ParseDuration(v)
		switch {
		case err != nil:
			result = multierror.Append(result, fmt.Errorf("%s: %w", envSessionTTL, err))
		case ttl <= 0:
			result = multierror.Append(result, fmt.Errorf("%s must be positive", envSessionTTL))
		default:
			c.SessionTTL = ttl
		}
	}
	for k, dst := range map[string]*bool{envLogJSON: &c.LogJSON, envDev: &c.Dev} {
		v := get(k, "")
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", k, err))
			continue
		}
		*dst = b
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}
