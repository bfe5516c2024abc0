// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package http

import (
	"crypto/tls"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)
	caPEM := string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}))

	tests := []struct {
		name        string
		caPEM       string
		timeout     time.Duration
		wantErrIs   error
		wantTimeout time.Duration
	}{
		{
			name: "system-roots",
		},
		{
			name:        "with-ca-and-timeout",
			caPEM:       caPEM,
			timeout:     5 * time.Second,
			wantTimeout: 5 * time.Second,
		},
		{
			name:      "bad-pem",
			caPEM:     "not a pem",
			wantErrIs: ErrInvalidCertificatePem,
		},
		{
			name:      "negative-timeout",
			timeout:   -time.Second,
			wantErrIs: ErrInvalidTimeout,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			c, err := NewClient(tt.caPEM, tt.timeout)
			if tt.wantErrIs != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErrIs)
				assert.Nil(c)
				return
			}
			require.NoError(err)
			assert.Equal(tt.wantTimeout, c.Timeout)
			tr, ok := c.Transport.(*http.Transport)
			require.True(ok)
			if tt.caPEM != "" {
				require.NotNil(tr.TLSClientConfig)
				assert.NotNil(tr.TLSClientConfig.RootCAs)
				assert.Equal(uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
			}
		})
	}
	t.Run("trusts-supplied-ca", func(t *testing.T) {
		require := require.New(t)
		c, err := NewClient(caPEM, time.Second)
		require.NoError(err)
		resp, err := c.Get(srv.URL)
		require.NoError(err)
		defer resp.Body.Close()
		require.Equal(http.StatusOK, resp.StatusCode)
	})
}
