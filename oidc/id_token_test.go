// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdToken_String(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert := assert.New(t)
		const want = RedactedIdToken
		tk := IdToken("super secret token")
		assert.Equalf(want, tk.String(), "IdToken.String() = %v, want %v", tk.String(), want)
	})
}

func TestIdToken_MarshalJSON(t *testing.T) {
	t.Parallel()
	t.Run("redacted", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		want := fmt.Sprintf(`"%s"`, RedactedIdToken)
		tk := IdToken("super secret token")
		got, err := tk.MarshalJSON()
		require.NoError(err)
		assert.Equalf([]byte(want), got, "IdToken.MarshalJSON() = %s, want %s", got, want)
	})
}

type testEntraClaims struct {
	ObjectID          string `json:"oid"`
	TenantID          string `json:"tid"`
	PreferredUsername string `json:"preferred_username"`
}

func TestIdToken_Claims(t *testing.T) {
	t.Parallel()
	testJwt := TestSignIdToken(t, TestGenerateSigningKey(t), TestIdTokenClaims{
		Subject:           "r3qXcK2bix9eFECzsU3Sbmh0K16fatW6",
		ObjectID:          TestObjectID,
		TenantID:          TestTenantID,
		PreferredUsername: TestUsername,
		Name:              "Alice Liddell",
	})
	t.Run("all-claims", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tk := IdToken(testJwt)
		var claims map[string]interface{}
		err := tk.Claims(&claims)
		require.NoError(err)
		assert.Equal(map[string]interface{}{
			"sub":                "r3qXcK2bix9eFECzsU3Sbmh0K16fatW6",
			"oid":                TestObjectID,
			"tid":                TestTenantID,
			"preferred_username": TestUsername,
			"name":               "Alice Liddell",
			"ver":                "2.0",
		}, claims)
	})
	t.Run("account-claims", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tk := IdToken(testJwt)
		var got testEntraClaims
		err := tk.Claims(&got)
		require.NoError(err)
		assert.Equal(testEntraClaims{ObjectID: TestObjectID, TenantID: TestTenantID, PreferredUsername: TestUsername}, got)
	})
	t.Run("no-token", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tk := IdToken("")
		var claims map[string]interface{}
		err := tk.Claims(&claims)
		require.Error(err)
		assert.Truef(errors.Is(err, ErrInvalidParameter), "wanted \"%s\" but got \"%s\"", ErrInvalidParameter, err)
	})
	t.Run("malformed", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tk := IdToken("header.!!!.sig")
		var claims map[string]interface{}
		err := tk.Claims(&claims)
		require.Error(err)
		assert.Truef(errors.Is(err, ErrMalformedToken), "wanted \"%s\" but got \"%s\"", ErrMalformedToken, err)
		assert.Contains(err.Error(), "IdToken.Claims")
	})
	t.Run("nil-claims", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		tk := IdToken(testJwt)
		err := tk.Claims(nil)
		require.Error(err)
		assert.Truef(errors.Is(err, ErrNilParameter), "wanted \"%s\" but got \"%s\"", ErrNilParameter, err)
	})
}
