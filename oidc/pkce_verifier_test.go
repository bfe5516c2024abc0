// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeVerifier(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	got, err := NewCodeVerifier()
	require.NoError(err)
	assert.Len(got.Verifier(), verifierLen)
	assert.Equal(S256, got.Method())

	challenge, err := CreateCodeChallenge(S256, got)
	require.NoError(err)
	assert.Equal(challenge, got.Challenge())

	other, err := NewCodeVerifier()
	require.NoError(err)
	assert.NotEqual(got.Verifier(), other.Verifier())

	cp := got.Copy()
	assert.Equal(got.Verifier(), cp.Verifier())
	assert.Equal(got.Challenge(), cp.Challenge())
	assert.Equal(got.Method(), cp.Method())
}

func TestCreateCodeChallenge(t *testing.T) {
	t.Parallel()
	calcHash := func(data []byte) string {
		sum := sha256.Sum256(data)
		return base64.RawURLEncoding.EncodeToString(sum[:])
	}
	t.Run("basics", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewCodeVerifier()
		require.NoError(err)
		challenge, err := CreateCodeChallenge(S256, v)
		require.NoError(err)
		assert.Equal(calcHash([]byte(v.Verifier())), challenge)
	})
	t.Run("rfc-7636-appendix-b", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v := &S256Verifier{verifier: "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk", method: S256}
		challenge, err := CreateCodeChallenge(S256, v)
		require.NoError(err)
		assert.Equal("E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", challenge)
	})
	t.Run("invalid-method", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		v, err := NewCodeVerifier()
		require.NoError(err)
		challenge, err := CreateCodeChallenge(ChallengeMethod("S512"), v)
		require.Error(err)
		assert.Empty(challenge)
		assert.ErrorIs(err, ErrUnsupportedChallengeMethod)
	})
	t.Run("nil-verifier", func(t *testing.T) {
		_, err := CreateCodeChallenge(S256, nil)
		require.ErrorIs(t, err, ErrNilParameter)
	})
}

func TestChallengeMethod_Valid(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.True(S256.Valid())
	assert.True(Plain.Valid())
	assert.False(ChallengeMethod("S512").Valid())
	assert.False(ChallengeMethod("").Valid())
}
