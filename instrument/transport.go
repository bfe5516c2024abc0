// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package instrument

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ozwillo/oauth2-client/oidc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation name of the spans created by Transport.
const TracerName = "github.com/ozwillo/oauth2-client/instrument"

// Transport decorates an oidc.Transport with Prometheus metrics and
// OpenTelemetry client spans. It never changes the request, the reply or the
// error of the decorated Transport.
type Transport struct {
	next    oidc.Transport
	metrics *Metrics
	tracer  trace.Tracer
}

var _ oidc.Transport = (*Transport)(nil)

// NewTransport wraps next. Without WithMetrics no metrics are recorded;
// without WithTracerProvider spans go to the global otel TracerProvider.
//
// Supported options: WithMetrics, WithTracerProvider
func NewTransport(next oidc.Transport, opt ...oidc.Option) (*Transport, error) {
	const op = "instrument.NewTransport"
	if next == nil {
		return nil, fmt.Errorf("%s: transport is nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getTransportOpts(opt...)
	tp := opts.withTracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Transport{
		next:    next,
		metrics: opts.withMetrics,
		tracer:  tp.Tracer(TracerName),
	}, nil
}

// Send implements the oidc.Transport interface.
func (t *Transport) Send(ctx context.Context, req *oidc.TransportRequest) (*oidc.TransportResponse, error) {
	if req == nil {
		return t.next.Send(ctx, req)
	}
	host, path := hostAndPath(req.URL)
	ctx, span := t.tracer.Start(ctx, "oauth2 "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("server.address", host),
			attribute.String("url.path", path),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := t.next.Send(ctx, req)
	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		if t.metrics != nil {
			t.metrics.ObserveFailure(req.Method, host, start)
		}
	case resp != nil:
		span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		if resp.StatusCode >= http.StatusBadRequest {
			span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		}
		if t.metrics != nil {
			t.metrics.ObserveReply(req.Method, host, resp.StatusCode, start)
		}
	}
	return resp, err
}

// hostAndPath returns the parts of u which are safe to use as labels. The
// query and any user info are dropped.
func hostAndPath(u string) (host, path string) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "unknown", ""
	}
	return parsed.Host, parsed.Path
}

// transportOptions is the set of available options for NewTransport.
type transportOptions struct {
	withMetrics        *Metrics
	withTracerProvider trace.TracerProvider
}

// transportDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func transportDefaults() transportOptions {
	return transportOptions{}
}

// getTransportOpts gets the defaults and applies the opt overrides passed
// in.
func getTransportOpts(opt ...oidc.Option) transportOptions {
	opts := transportDefaults()
	oidc.ApplyOpts(&opts, opt...)
	return opts
}

// WithMetrics provides the Metrics to record.
//
// Valid for: NewTransport
func WithMetrics(m *Metrics) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*transportOptions); ok {
			o.withMetrics = m
		}
	}
}

// WithTracerProvider provides the TracerProvider for spans.
//
// Valid for: NewTransport
func WithTracerProvider(tp trace.TracerProvider) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*transportOptions); ok {
			o.withTracerProvider = tp
		}
	}
}
