// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithTTL provides an optional session lifetime.
//
// Valid for: Manager
func WithTTL(ttl time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok && ttl > 0 {
			o.withTTL = ttl
		}
	}
}

// WithCookieName provides an optional name for the session cookie.
//
// Valid for: Manager
func WithCookieName(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok && name != "" {
			o.withCookieName = name
		}
	}
}

// WithInsecureCookies allows the session cookie to be sent over plain http,
// which is only appropriate for local development.  The cookie is sent
// without a SameSite attribute.
//
// Valid for: Manager
func WithInsecureCookies() Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok {
			o.withInsecureCookies = true
		}
	}
}

// WithLogger provides an optional logger.
//
// Valid for: Manager
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*managerOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
//
// Valid for: Manager and MemoryStore
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *managerOptions:
			v.withNowFunc = now
		case *memoryOptions:
			v.withNowFunc = now
		}
	}
}

// WithKeyPrefix provides an optional prefix for the keys of stored sessions.
//
// Valid for: RedisStore
func WithKeyPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*redisOptions); ok {
			o.withKeyPrefix = prefix
		}
	}
}
