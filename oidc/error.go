// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrInvalidIssuer              = errors.New("invalid issuer")
	ErrIDGeneratorFailed          = errors.New("id generation failed")
	ErrUnsupportedChallengeMethod = errors.New("unsupported PKCE challenge method")
	ErrInvalidCodeVerifier        = errors.New("invalid PKCE code verifier")
	ErrMissingIdToken             = errors.New("id_token is missing")
	ErrIdTokenVerificationFailed  = errors.New("id_token verification failed")
	ErrInvalidNonce               = errors.New("invalid id_token nonce")
	ErrInvalidAudience            = errors.New("invalid id_token audience")
	ErrMalformedToken             = errors.New("malformed jwt")
	ErrMetadataUnavailable        = errors.New("provider metadata unavailable")
	ErrLoginFailed                = errors.New("login failed")

	// ErrProtocol is the parent of every error caused by a malformed or
	// unexpected authentication response.  These are client errors.
	ErrProtocol = errors.New("protocol error")

	ErrMissingState         = fmt.Errorf("response state is missing: %w", ErrProtocol)
	ErrMissingCode          = fmt.Errorf("response code is missing: %w", ErrProtocol)
	ErrInvalidState         = fmt.Errorf("response state is malformed: %w", ErrProtocol)
	ErrResponseStateInvalid = fmt.Errorf("response state does not match request: %w", ErrProtocol)
	ErrNotFound             = fmt.Errorf("pending request not found: %w", ErrProtocol)
	ErrExpiredRequest       = fmt.Errorf("request is expired: %w", ErrProtocol)

	// ErrInteractionRequired means a token can not be acquired silently and
	// the user must be sent through an interactive login.
	ErrInteractionRequired = errors.New("interaction required")

	// ErrProviderFailure is any other failure reported by the provider.
	ErrProviderFailure = errors.New("provider failure")
)

// interactionRequiredCodes are the oauth error codes which indicate a refresh
// can not succeed without the user.
var interactionRequiredCodes = map[string]bool{
	"invalid_grant":        true,
	"interaction_required": true,
	"login_required":       true,
	"consent_required":     true,
}

// ProviderError is an oauth error response returned by the provider's token
// endpoint.  It matches either ErrInteractionRequired or ErrProviderFailure
// via errors.Is, depending on its Code.
type ProviderError struct {
	// Code is the oauth "error" field
	Code string

	// Description is the oauth "error_description" field
	Description string

	// StatusCode is the http status code of the provider's response
	StatusCode int

	kind    error
	wrapped error
}

func newProviderError(code, desc string, status int, wrapped error, silent bool) *ProviderError {
	kind := ErrProviderFailure
	if silent && interactionRequiredCodes[code] {
		kind = ErrInteractionRequired
	}
	return &ProviderError{
		Code:        code,
		Description: desc,
		StatusCode:  status,
		kind:        kind,
		wrapped:     wrapped,
	}
}

// Error satisfies the error interface.
func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" {
		if e.wrapped != nil {
			return fmt.Sprintf("%s: %s", e.kind, e.wrapped)
		}
		return e.kind.Error()
	}
	msg := fmt.Sprintf("%s: %s", e.kind, e.Code)
	if e.Description != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Description)
	}
	return msg
}

// Is reports whether target is the kind of the provider error.
func (e *ProviderError) Is(target error) bool {
	return e != nil && target == e.kind
}

// Unwrap returns the underlying transport error.
func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.wrapped
}

// IsInteractionRequired is true when err indicates the user must be sent
// through an interactive login.
func IsInteractionRequired(err error) bool {
	return errors.Is(err, ErrInteractionRequired)
}

// IsProtocolError is true when err was caused by a malformed or unexpected
// authentication response.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocol)
}
