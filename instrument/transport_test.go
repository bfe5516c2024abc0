// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package instrument

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/ozwillo/oauth2-client/oidc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func testTransport(status int, err error) oidc.TransportFunc {
	return func(_ context.Context, req *oidc.TransportRequest) (*oidc.TransportResponse, error) {
		if err != nil {
			return nil, err
		}
		return &oidc.TransportResponse{StatusCode: status, Body: []byte(`{}`)}, nil
	}
}

func spanAttr(attrs []attribute.KeyValue, key string) attribute.Value {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestNewTransport(t *testing.T) {
	t.Parallel()
	_, err := NewTransport(nil)
	assert.ErrorIs(t, err, oidc.ErrNilParameter)

	tr, err := NewTransport(testTransport(http.StatusOK, nil))
	require.NoError(t, err)
	assert.NotNil(t, tr.tracer)
	assert.Nil(t, tr.metrics)
}

func TestTransport_Send(t *testing.T) {
	t.Parallel()
	sendErr := errors.New("connection refused")
	tests := []struct {
		name          string
		status        int
		sendErr       error
		wantCode      codes.Code
		wantRequests  float64
		wantFailures  float64
		wantStatusKey string
	}{
		{name: "ok", status: http.StatusOK, wantCode: codes.Unset, wantRequests: 1, wantStatusKey: "200"},
		{name: "provider-error", status: http.StatusBadRequest, wantCode: codes.Error, wantRequests: 1, wantStatusKey: "400"},
		{name: "transport-failure", sendErr: sendErr, wantCode: codes.Error, wantFailures: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			reg := prometheus.NewRegistry()
			m := NewMetrics(reg)
			sr := tracetest.NewSpanRecorder()
			tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

			tr, err := NewTransport(testTransport(tt.status, tt.sendErr), WithMetrics(m), WithTracerProvider(tp))
			require.NoError(err)

			resp, err := tr.Send(context.Background(), &oidc.TransportRequest{
				Method: http.MethodPost,
				URL:    "https://idp.example.com/a/token?secret=x",
			})
			if tt.sendErr != nil {
				assert.ErrorIs(err, tt.sendErr)
				assert.Nil(resp)
			} else {
				require.NoError(err)
				assert.Equal(tt.status, resp.StatusCode)
			}

			if tt.wantStatusKey != "" {
				assert.Equal(tt.wantRequests, testutil.ToFloat64(m.Requests.WithLabelValues("POST", "idp.example.com", tt.wantStatusKey)))
			}
			assert.Equal(tt.wantFailures, testutil.ToFloat64(m.TransportFailures.WithLabelValues("POST", "idp.example.com")))
			assert.Equal(1, testutil.CollectAndCount(m.RequestDuration))

			spans := sr.Ended()
			require.Len(spans, 1)
			span := spans[0]
			assert.Equal("oauth2 POST", span.Name())
			assert.Equal(trace.SpanKindClient, span.SpanKind())
			assert.Equal(tt.wantCode, span.Status().Code)
			assert.Equal("idp.example.com", spanAttr(span.Attributes(), "server.address").AsString())
			assert.Equal("/a/token", spanAttr(span.Attributes(), "url.path").AsString())
			if tt.sendErr == nil {
				assert.Equal(int64(tt.status), spanAttr(span.Attributes(), "http.response.status_code").AsInt64())
			} else {
				assert.NotEmpty(span.Events())
			}
		})
	}
}

func TestTransport_withClient(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	p := oidc.StartTestProvider(t)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	clientID, secret := p.ClientCreds()
	cfg, err := oidc.NewConfig(clientID, oidc.ClientSecret(secret), "https://example.com", oidc.WithProviderCA(p.CACert()))
	require.NoError(err)
	hc, err := cfg.HTTPClient()
	require.NoError(err)
	base, err := oidc.NewHTTPTransport(hc)
	require.NoError(err)
	tr, err := NewTransport(base, WithMetrics(m))
	require.NoError(err)

	c, err := oidc.NewClient(p.Descriptor(), cfg, oidc.WithTransport(tr))
	require.NoError(err)
	_, err = c.Exchange(context.Background(), oidc.ClientCredentialsGrant)
	require.NoError(err)
	_, err = c.Deprovision(context.Background(), "instance-1")
	require.NoError(err)

	assert.Equal(2, testutil.CollectAndCount(m.Requests))
	n, err := testutil.GatherAndCount(reg, "oauth2_client_provider_requests_total")
	require.NoError(err)
	assert.Equal(2, n)
}
