// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
)

// IdToken is an oidc id_token
type IdToken string

// RedactedIdToken is the redacted string or json for an oidc id_token
const RedactedIdToken = "[REDACTED: id_token]"

// String will redact the token
func (t IdToken) String() string {
	return RedactedIdToken
}

// MarshalJSON will redact the token
func (t IdToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIdToken)
}

// Claims decodes the payload of an id_token into claims without verifying
// it, so the token must already have passed Provider.VerifyIdToken.
func (t IdToken) Claims(claims interface{}) error {
	const op = "IdToken.Claims"
	switch {
	case t == "":
		return fmt.Errorf("%s: missing id_token: %w", op, ErrInvalidParameter)
	case claims == nil:
		return fmt.Errorf("%s: missing claims: %w", op, ErrNilParameter)
	}
	if err := UnmarshalClaims(string(t), claims); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
