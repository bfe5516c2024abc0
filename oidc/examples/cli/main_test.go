// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ozwillo/oauth2-client/oidc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_loadConfig(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		want      *config
		wantErr   bool
		wantErrIn string
	}{
		{
			name: "defaults",
			env:  map[string]string{"OZWILLO_CLIENT_ID": "cli"},
			want: &config{
				ClientID:   "cli",
				Port:       8390,
				LogLevel:   "info",
				Timeout:    30 * time.Second,
				AttemptExp: 2 * time.Minute,
			},
		},
		{
			name: "overrides",
			env: map[string]string{
				"OZWILLO_CLIENT_ID":     "cli",
				"OZWILLO_CLIENT_SECRET": "s3cret",
				"OZWILLO_PORT":          "9000",
				"OZWILLO_LOG_LEVEL":     "debug",
				"OZWILLO_TIMEOUT":       "5s",
				"OZWILLO_ATTEMPT_EXP":   "1m",
				"OZWILLO_BASE_URL":      "https://accounts.ozwillo.com",
			},
			want: &config{
				ClientID:     "cli",
				ClientSecret: "s3cret",
				Port:         9000,
				LogLevel:     "debug",
				Timeout:      5 * time.Second,
				AttemptExp:   time.Minute,
				BaseURL:      "https://accounts.ozwillo.com",
			},
		},
		{
			name:      "missing-client-id",
			env:       map[string]string{},
			wantErr:   true,
			wantErrIn: "OZWILLO_CLIENT_ID",
		},
		{
			name:      "bad-port",
			env:       map[string]string{"OZWILLO_CLIENT_ID": "cli", "OZWILLO_PORT": "70000"},
			wantErr:   true,
			wantErrIn: "OZWILLO_PORT",
		},
		{
			name:      "zero-attempt-exp",
			env:       map[string]string{"OZWILLO_CLIENT_ID": "cli", "OZWILLO_ATTEMPT_EXP": "0s"},
			wantErr:   true,
			wantErrIn: "OZWILLO_ATTEMPT_EXP",
		},
		{
			name:      "unknown-log-level",
			env:       map[string]string{"OZWILLO_CLIENT_ID": "cli", "OZWILLO_LOG_LEVEL": "loud"},
			wantErr:   true,
			wantErrIn: "OZWILLO_LOG_LEVEL",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert, require := assert.New(t), require.New(t)
			for _, k := range []string{
				"OZWILLO_CLIENT_ID", "OZWILLO_CLIENT_SECRET", "OZWILLO_PORT",
				"OZWILLO_LOG_LEVEL", "OZWILLO_TIMEOUT", "OZWILLO_ATTEMPT_EXP",
				"OZWILLO_BASE_URL", "OZWILLO_ISSUER",
			} {
				// Setenv restores the original value on cleanup.
				t.Setenv(k, tt.env[k])
				if _, ok := tt.env[k]; !ok {
					require.NoError(os.Unsetenv(k))
				}
			}
			got, err := loadConfig()
			if tt.wantErr {
				require.Error(err)
				assert.Contains(err.Error(), tt.wantErrIn)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
		})
	}
}

func Test_config_redirectURL(t *testing.T) {
	t.Parallel()
	c := &config{Port: 8390}
	assert.Equal(t, "http://localhost:8390/callback", c.redirectURL())
}

func Test_newRouter(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "cli_test_total"})
	require.NoError(reg.Register(c))
	c.Inc()

	var called int
	cb := func(w http.ResponseWriter, _ *http.Request) {
		called++
		w.WriteHeader(http.StatusTeapot)
	}
	r := newRouter(cb, reg)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?code=c&state=s", nil))
	assert.Equal(http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader("code=c")))
	assert.Equal(http.StatusTeapot, rec.Code)
	assert.Equal(2, called)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), "cli_test_total 1")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(http.StatusNotFound, rec.Code)
}

func Test_splitList(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	assert.Nil(splitList(""))
	assert.Equal([]string{"a", "b"}, splitList(" a, ,b ,"))
}

func Test_printableToken(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	tk, err := oidc.NewToken(map[string]interface{}{
		"access_token":  "access",
		"refresh_token": "refresh",
		"scope":         "openid",
	}, oidc.AuthCodeGrant)
	require.NoError(t, err)
	got := printableToken(tk)
	assert.Equal("access", got.AccessToken)
	assert.Equal("refresh", got.RefreshToken)
	assert.Empty(got.IDToken)
	assert.Equal([]string{"openid"}, got.Scopes)
}
