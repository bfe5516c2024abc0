// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_StartTestProvider(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	require.NotEmpty(p.Addr())
	require.NotEmpty(p.CACert())
	pub, priv := p.SigningKeys()
	assert.NotEmpty(pub)
	assert.NotEmpty(priv)
	require.NoError(p.Descriptor().Validate())

	resp, err := p.HTTPClient().Get(p.Addr() + "/.well-known/openid-configuration")
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusOK, resp.StatusCode)
	var doc map[string]interface{}
	require.NoError(json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(p.Addr(), doc["issuer"])
	assert.Equal(p.Addr()+TestTokenPath, doc["token_endpoint"])
}

func Test_WithTestPort(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(l.Close())

	p := StartTestProvider(t, WithTestPort(port))
	u, err := url.Parse(p.Addr())
	require.NoError(err)
	assert.Equal(t, strconv.Itoa(port), u.Port())
}

func TestTestProvider_idTokenVerifies(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	p.SetExpectedAuthNonce("n_expected")
	p.SetCustomClaims(map[string]interface{}{"app_user": true})

	clientID, secret := p.ClientCreds()
	form := url.Values{
		"grant_type":    {GrantTypeAuthorizationCode},
		"code":          {"test-auth-code"},
		"client_id":     {clientID},
		"client_secret": {secret},
		"redirect_uri":  {"https://example.com"},
	}
	resp, err := p.HTTPClient().PostForm(p.Addr()+TestTokenPath, form)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)
	var reply map[string]interface{}
	require.NoError(json.NewDecoder(resp.Body).Decode(&reply))
	raw, ok := reply["id_token"].(string)
	require.True(ok)

	ctx := HTTPClientContext(context.Background(), p.HTTPClient())
	provider, err := oidc.NewProvider(ctx, p.Addr())
	require.NoError(err)
	idt, err := provider.Verifier(&oidc.Config{ClientID: clientID}).Verify(ctx, raw)
	require.NoError(err)
	assert.Equal("5f2a8b34-6a9f-4c2b-8d0e-0c1b7a1e3f10", idt.Subject)
	assert.Equal("n_expected", idt.Nonce)
	var claims struct {
		AppUser bool `json:"app_user"`
	}
	require.NoError(idt.Claims(&claims))
	assert.True(claims.AppUser)
}

func TestTestProvider_token(t *testing.T) {
	t.Parallel()
	p := StartTestProvider(t)
	clientID, secret := p.ClientCreds()
	v, err := NewCodeVerifier()
	require.NoError(t, err)

	tests := []struct {
		name       string
		setup      func()
		form       url.Values
		jsonBody   string
		wantStatus int
		wantError  string
	}{
		{
			name:       "client-credentials",
			form:       url.Values{"grant_type": {GrantTypeClientCredentials}, "client_id": {clientID}, "client_secret": {secret}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "json-body",
			jsonBody:   `{"grant_type":"client_credentials","client_id":"` + clientID + `","client_secret":"` + secret + `"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "bad-secret",
			form:       url.Values{"grant_type": {GrantTypeClientCredentials}, "client_id": {clientID}, "client_secret": {"nope"}},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_client",
		},
		{
			name:       "unsupported-grant",
			form:       url.Values{"grant_type": {"urn:custom"}, "client_id": {clientID}, "client_secret": {secret}},
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported_grant_type",
		},
		{
			name:       "unknown-refresh-token",
			form:       url.Values{"grant_type": {GrantTypeRefreshToken}, "refresh_token": {"x"}, "client_id": {clientID}, "client_secret": {secret}},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_grant",
		},
		{
			name:  "pkce-mismatch",
			setup: func() { p.SetPKCEVerifier(v) },
			form: url.Values{
				"grant_type":    {GrantTypeAuthorizationCode},
				"code":          {"test-auth-code"},
				"code_verifier": {"wrong"},
				"redirect_uri":  {"https://example.com"},
				"client_id":     {clientID},
				"client_secret": {secret},
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_grant",
		},
		{
			name:  "pkce-match",
			setup: func() { p.SetPKCEVerifier(v) },
			form: url.Values{
				"grant_type":    {GrantTypeAuthorizationCode},
				"code":          {"test-auth-code"},
				"code_verifier": {v.Verifier()},
				"redirect_uri":  {"https://example.com"},
				"client_id":     {clientID},
				"client_secret": {secret},
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "raw-reply",
			setup:      func() { p.SetTokenReply(http.StatusTeapot, "short and stout") },
			form:       url.Values{"grant_type": {GrantTypeClientCredentials}},
			wantStatus: http.StatusTeapot,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			t.Cleanup(func() {
				p.SetPKCEVerifier(nil)
				p.SetTokenReply(0, "")
			})
			if tt.setup != nil {
				tt.setup()
			}
			var resp *http.Response
			var err error
			if tt.jsonBody != "" {
				resp, err = p.HTTPClient().Post(p.Addr()+TestTokenPath, "application/json", strings.NewReader(tt.jsonBody))
			} else {
				resp, err = p.HTTPClient().PostForm(p.Addr()+TestTokenPath, tt.form)
			}
			require.NoError(err)
			defer resp.Body.Close()
			assert.Equal(tt.wantStatus, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(err)
			if tt.wantError != "" {
				var reply map[string]interface{}
				require.NoError(json.Unmarshal(body, &reply))
				assert.Equal(tt.wantError, reply["error"])
			}
			got := p.LastTokenRequest()
			assert.NotEmpty(got["grant_type"])
		})
	}
}

func TestTestProvider_auth(t *testing.T) {
	t.Parallel()
	p := StartTestProvider(t)
	clientID, _ := p.ClientCreds()
	valid := func() url.Values {
		return url.Values{
			"response_type": {"code"},
			"client_id":     {clientID},
			"redirect_uri":  {"https://example.com"},
			"state":         {"st_1"},
			"nonce":         {"n_1"},
		}
	}
	tests := []struct {
		name       string
		mutate     func(url.Values)
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{name: "valid", wantStatus: http.StatusFound, wantCode: "test-auth-code"},
		{name: "unknown-redirect", mutate: func(v url.Values) { v.Set("redirect_uri", "https://evil.example.com") }, wantStatus: http.StatusBadRequest},
		{name: "wrong-client", mutate: func(v url.Values) { v.Set("client_id", "other") }, wantStatus: http.StatusFound, wantError: "unauthorized_client"},
		{name: "no-state", mutate: func(v url.Values) { v.Del("state") }, wantStatus: http.StatusFound, wantError: "invalid_request"},
		{name: "implicit", mutate: func(v url.Values) { v.Set("response_type", "token") }, wantStatus: http.StatusFound, wantError: "unsupported_response_type"},
	}
	hc := *p.HTTPClient()
	hc.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			q := valid()
			if tt.mutate != nil {
				tt.mutate(q)
			}
			resp, err := hc.Get(p.Addr() + TestAuthPath + "?" + q.Encode())
			require.NoError(err)
			defer resp.Body.Close()
			require.Equal(tt.wantStatus, resp.StatusCode)
			if tt.wantStatus != http.StatusFound {
				return
			}
			loc, err := url.Parse(resp.Header.Get("Location"))
			require.NoError(err)
			assert.Equal("example.com", loc.Host)
			assert.Equal(q.Get("state"), loc.Query().Get("state"))
			assert.Equal(tt.wantCode, loc.Query().Get("code"))
			assert.Equal(tt.wantError, loc.Query().Get("error"))
		})
	}
}

func TestTestProvider_writeTokenError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		structured bool
		want       string
	}{
		{
			name: "flat",
			want: `{"error":"invalid_grant","error_description":"expired"}`,
		},
		{
			name:       "structured",
			structured: true,
			want:       `{"error":{"code":400,"message":"invalid_grant"},"error_description":"expired"}`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &TestProvider{structuredErrors: tt.structured}
			rec := httptest.NewRecorder()
			p.writeTokenError(rec, http.StatusBadRequest, "invalid_grant", "expired")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, tt.want, rec.Body.String())
		})
	}
}

func TestTestProvider_deprovision(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := StartTestProvider(t)
	del := func(id string) int {
		req, err := http.NewRequest(http.MethodDelete, p.Addr()+TestDeprovisionPath+id, nil)
		require.NoError(err)
		resp, err := p.HTTPClient().Do(req)
		require.NoError(err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(http.StatusNoContent, del("a"))
	p.SetDismissStatus(http.StatusConflict)
	assert.Equal(http.StatusConflict, del("b"))
	assert.Equal(http.StatusNotFound, del(""))
	assert.Equal([]string{"a", "b"}, p.DismissedInstances())
}
