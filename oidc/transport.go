// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// maxResponseSize caps how much of a provider response is read.
const maxResponseSize = 1 << 20

// TransportRequest is a request sent to a provider endpoint.
type TransportRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// TransportResponse is a provider's reply.
type TransportResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends one request and returns the provider's reply. It must
// support GET, POST and DELETE. Implementations own TLS, connection pooling
// and any retry policy; the engine never retries.
//
// A failure to get a reply (network, timeout, TLS) must be returned as an
// error wrapping ErrTransport. An HTTP error status is not a transport
// failure.
type Transport interface {
	Send(ctx context.Context, req *TransportRequest) (*TransportResponse, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *TransportRequest) (*TransportResponse, error)

// Send calls f(ctx, req).
func (f TransportFunc) Send(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	return f(ctx, req)
}

// HTTPTransport is the net/http Transport.
type HTTPTransport struct {
	client *http.Client
}

var _ Transport = (*HTTPTransport)(nil)

// NewHTTPTransport creates a Transport which sends requests with client.
func NewHTTPTransport(client *http.Client) (*HTTPTransport, error) {
	const op = "NewHTTPTransport"
	if client == nil {
		return nil, fmt.Errorf("%s: http client is nil: %w", op, ErrNilParameter)
	}
	return &HTTPTransport{client: client}, nil
}

// Send implements the Transport interface.
func (t *HTTPTransport) Send(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	const op = "HTTPTransport.Send"
	if req == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	switch req.Method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
	default:
		return nil, fmt.Errorf("%s: method %q is not supported: %w", op, req.Method, ErrInvalidParameter)
	}
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w: %w", op, ErrInvalidParameter, err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %s %s: %w: %w", op, req.Method, req.URL, ErrTransport, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read response: %w: %w", op, ErrTransport, err)
	}
	return &TransportResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       b,
	}, nil
}
