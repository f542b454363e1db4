// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package flow

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

// flowOptions is the set of available options for New
type flowOptions struct {
	withLogger          hclog.Logger
	withMetrics         *Metrics
	withErrorResponse   ErrorResponseFunc
	withSuccessResponse SuccessResponseFunc
	withLoginPath       string
	withLoginExpiry     time.Duration
	withRedirectURI     string
	withNowFunc         func() time.Time
}

func flowDefaults() flowOptions {
	return flowOptions{
		withLogger:      hclog.NewNullLogger(),
		withLoginPath:   DefaultLoginPath,
		withLoginExpiry: DefaultLoginExpiry,
		withNowFunc:     time.Now,
	}
}

func getFlowOpts(opt ...Option) flowOptions {
	opts := flowDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithMetrics provides optional metrics.
func WithMetrics(m *Metrics) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withMetrics = m
		}
	}
}

// WithErrorResponse provides an optional ErrorResponseFunc.  The default is
// DefaultErrorResponse.
func WithErrorResponse(fn ErrorResponseFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok && fn != nil {
			o.withErrorResponse = fn
		}
	}
}

// WithSuccessResponse provides an optional SuccessResponseFunc.  The default
// redirects to the success redirect.
func WithSuccessResponse(fn SuccessResponseFunc) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok && fn != nil {
			o.withSuccessResponse = fn
		}
	}
}

// WithLoginPath provides the path RequireAuthentication sends anonymous
// users to.
func WithLoginPath(path string) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok && path != "" {
			o.withLoginPath = path
		}
	}
}

// WithLoginExpiry provides how long a login may stay pending before its
// redirect is rejected.
func WithLoginExpiry(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok && d > 0 {
			o.withLoginExpiry = d
		}
	}
}

// WithRedirectURI provides the default redirect URI of logins.
func WithRedirectURI(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok {
			o.withRedirectURI = u
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*flowOptions); ok && now != nil {
			o.withNowFunc = now
		}
	}
}
