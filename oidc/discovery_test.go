// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverDescriptor(t *testing.T) {
	t.Parallel()
	p := StartTestProvider(t)

	t.Run("valid", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		d, err := DiscoverDescriptor(context.Background(), p.Addr(), WithProviderCA(p.CACert()), WithTimeout(5*time.Second))
		require.NoError(err)
		assert.Equal(p.Addr(), d.Name)
		assert.Equal(p.Addr()+TestAuthPath, d.AuthEndpoint())
		assert.Equal(p.Addr()+TestTokenPath, d.TokenEndpoint())
		assert.Equal(p.Addr()+TestUserInfoPath, d.UserInfoURL)
		assert.Equal("query", d.ResponseMode)
		assert.Equal(S256, d.ChallengeMethod())
		assert.True(d.OIDC)
		assert.Equal([]string{"openid"}, d.Scopes())
	})
	t.Run("usable-by-client", func(t *testing.T) {
		require := require.New(t)
		d, err := DiscoverDescriptor(context.Background(), p.Addr(), WithProviderCA(p.CACert()))
		require.NoError(err)
		clientID, secret := p.ClientCreds()
		c, err := NewConfig(clientID, ClientSecret(secret), "https://example.com", WithProviderCA(p.CACert()))
		require.NoError(err)
		client, err := NewClient(d, c)
		require.NoError(err)
		_, err = client.Exchange(context.Background(), ClientCredentialsGrant)
		require.NoError(err)
	})
	t.Run("untrusted-ca", func(t *testing.T) {
		_, err := DiscoverDescriptor(context.Background(), p.Addr())
		assert.ErrorIs(t, err, ErrTransport)
	})
	t.Run("bad-ca", func(t *testing.T) {
		_, err := DiscoverDescriptor(context.Background(), p.Addr(), WithProviderCA("not a pem"))
		assert.ErrorIs(t, err, ErrInvalidCACert)
	})
	t.Run("empty-issuer", func(t *testing.T) {
		_, err := DiscoverDescriptor(context.Background(), "")
		assert.ErrorIs(t, err, ErrInvalidParameter)
	})
	t.Run("issuer-mismatch", func(t *testing.T) {
		_, err := DiscoverDescriptor(context.Background(), p.Addr()+"/", WithProviderCA(p.CACert()))
		assert.ErrorIs(t, err, ErrTransport)
	})
}
