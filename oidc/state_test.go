// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuthState(t *testing.T) {
	t.Parallel()
	t.Run("defaults", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s, err := NewAuthState("")
		require.NoError(err)
		assert.Equal(DefaultSuccessRedirect, s.SuccessRedirect)
		assert.True(strings.HasPrefix(s.ID, "st_"))
	})
	t.Run("unique", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		s1, err := NewAuthState("/dashboard")
		require.NoError(err)
		s2, err := NewAuthState("/dashboard")
		require.NoError(err)
		e1, err := s1.Encode()
		require.NoError(err)
		e2, err := s2.Encode()
		require.NoError(err)
		assert.NotEqual(e1, e2)
	})
}

func TestAuthState_RoundTrip(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	s, err := NewAuthState("/dashboard")
	require.NoError(err)
	encoded, err := s.Encode()
	require.NoError(err)
	assert.NotContains(encoded, "=")

	got, err := DecodeAuthState(encoded)
	require.NoError(err)
	assert.Equal(s, got)
	assert.Equal("/dashboard", got.SuccessRedirect)
}

func TestDecodeAuthState(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		encoded   string
		want      *AuthState
		wantIsErr error
	}{
		{
			name:    "padded-std-encoding",
			encoded: base64.StdEncoding.EncodeToString([]byte(`{"successRedirect":"/dashboard"}`)),
			want:    &AuthState{SuccessRedirect: "/dashboard"},
		},
		{
			name:    "missing-redirect",
			encoded: base64.RawURLEncoding.EncodeToString([]byte(`{"id":"st_1"}`)),
			want:    &AuthState{SuccessRedirect: DefaultSuccessRedirect, ID: "st_1"},
		},
		{
			name:      "empty",
			encoded:   "",
			wantIsErr: ErrMissingState,
		},
		{
			name:      "not-base64",
			encoded:   "%%%",
			wantIsErr: ErrInvalidState,
		},
		{
			name:      "not-json",
			encoded:   base64.RawURLEncoding.EncodeToString([]byte("not json")),
			wantIsErr: ErrInvalidState,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			got, err := DecodeAuthState(tt.encoded)
			if tt.wantIsErr != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantIsErr)
				assert.ErrorIs(err, ErrProtocol)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}
