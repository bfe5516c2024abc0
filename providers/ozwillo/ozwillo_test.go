// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ozwillo

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/ozwillo/oauth2-client/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDescriptor(t *testing.T) {
	t.Parallel()
	t.Run("default", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		d := Descriptor()
		require.NoError(d.Validate())
		assert.Equal(Name, d.Name)
		assert.Equal("https://accounts.ozwillo-preprod.eu/a/auth", d.AuthEndpoint())
		assert.Equal("https://accounts.ozwillo-preprod.eu/a/token", d.TokenEndpoint())
		assert.Equal("https://accounts.ozwillo-preprod.eu/a/userinfo", d.UserInfoURL)
		got, err := d.DeprovisionEndpoint("42")
		require.NoError(err)
		assert.Equal("https://accounts.ozwillo-preprod.eu/apps/pending-instance/42", got)
		assert.Equal([]string{"openid", "email", "profile", "address", "phone", "offline_access"}, d.Scopes())
		assert.Equal(" ", d.Separator())
		assert.Equal("query", d.ResponseMode)
		assert.Equal(oidc.S256, d.ChallengeMethod())
		assert.Equal(oidc.FormEncoding, d.Encoding())
	})
	t.Run("with-base-url", func(t *testing.T) {
		assert := assert.New(t)
		d := Descriptor(WithBaseURL("https://accounts.ozwillo.com/"))
		assert.Equal("https://accounts.ozwillo.com/a/auth", d.AuthEndpoint())
		assert.Equal("https://accounts.ozwillo.com/a/token", d.TokenEndpoint())
	})
	t.Run("default-scopes-are-copies", func(t *testing.T) {
		s := DefaultScopes()
		s[0] = "changed"
		assert.Equal(t, "openid", DefaultScopes()[0])
	})
}

func TestNewClient_AuthURL(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	cfg, err := oidc.NewConfig("dc-client", "dc-secret", "https://portal.example.org/callback", oidc.WithScopes("email", "datacore"))
	require.NoError(err)
	c, err := NewClient(cfg)
	require.NoError(err)

	v, err := oidc.NewCodeVerifier()
	require.NoError(err)
	authURL, params, err := c.AuthURL(context.Background(), oidc.WithPKCE(v))
	require.NoError(err)

	u, err := url.Parse(authURL)
	require.NoError(err)
	assert.True(strings.HasPrefix(authURL, AuthURL+"?"))
	q := u.Query()
	assert.Equal("openid email profile address phone offline_access datacore", q.Get("scope"))
	assert.Equal("query", q.Get("response_mode"))
	assert.Equal("code", q.Get("response_type"))
	assert.Equal("dc-client", q.Get("client_id"))
	assert.Equal("https://portal.example.org/callback", q.Get("redirect_uri"))
	assert.Equal(v.Challenge(), q.Get("code_challenge"))
	assert.Equal("S256", q.Get("code_challenge_method"))
	assert.Equal(params.Nonce(), q.Get("nonce"))
	for _, absent := range []string{"prompt", "id_token_hint", "max_age", "claims", "ui_locales"} {
		assert.False(q.Has(absent), "%s should be omitted", absent)
	}
}

// testOzwilloClient returns a client for a TestProvider standing in for the
// Ozwillo kernel.
func testOzwilloClient(t *testing.T, p *oidc.TestProvider) *oidc.Client {
	t.Helper()
	require := require.New(t)
	clientID, secret := p.ClientCreds()
	cfg, err := oidc.NewConfig(clientID, oidc.ClientSecret(secret), "https://example.com", oidc.WithProviderCA(p.CACert()))
	require.NoError(err)
	c, err := NewClient(cfg, WithBaseURL(p.Addr()))
	require.NoError(err)
	return c
}

func TestDismissInstance(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("dismissed", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := oidc.StartTestProvider(t)
		c := testOzwilloClient(t, p)
		ok, err := DismissInstance(ctx, c, "9b5b6f6e-instance")
		require.NoError(err)
		assert.True(ok)
		assert.Equal([]string{"9b5b6f6e-instance"}, p.DismissedInstances())
	})
	t.Run("empty-instance", func(t *testing.T) {
		assert, require := assert.New(t), require.New(t)
		p := oidc.StartTestProvider(t)
		c := testOzwilloClient(t, p)
		ok, err := DismissInstance(ctx, c, "")
		require.NoError(err)
		assert.False(ok)
		assert.Empty(p.DismissedInstances())
	})
	t.Run("rejected", func(t *testing.T) {
		assert := assert.New(t)
		p := oidc.StartTestProvider(t)
		p.SetStructuredErrors(true)
		p.SetDismissStatus(http.StatusForbidden)
		c := testOzwilloClient(t, p)
		ok, err := DismissInstance(ctx, c, "instance")
		assert.False(ok)
		var idpErr *oidc.IdentityProviderError
		if assert.True(errors.As(err, &idpErr)) {
			assert.Equal(http.StatusForbidden, idpErr.Code)
			assert.Equal("invalid_request", idpErr.Message)
		}
	})
	t.Run("nil-client", func(t *testing.T) {
		_, err := DismissInstance(ctx, nil, "instance")
		assert.ErrorIs(t, err, oidc.ErrNilParameter)
	})
}

func TestExchange_structuredErrors(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := oidc.StartTestProvider(t)
	p.SetStructuredErrors(true)
	c := testOzwilloClient(t, p)

	_, err := c.ExchangeCode(context.Background(), "not-the-code")
	require.Error(err)
	var idpErr *oidc.IdentityProviderError
	require.True(errors.As(err, &idpErr))
	assert.Equal(http.StatusBadRequest, idpErr.Code)
	assert.Equal("invalid_grant", idpErr.Message)
	assert.Equal("unexpected auth code", idpErr.Description)
}
