// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"
	"sync"

	"github.com/ozwillo/oauth2-client/oidc"
)

// RequestReader defines an interface for finding and reading an oidc.Request
//
// Implementations must be concurrently safe, since the reader will likely be
// used within a concurrent http.Handler
type RequestReader interface {
	// Read an existing Request entry.  The returned request's State()
	// must match the state used to look it up. Implementations must be
	// concurrently safe, which likely means returning a deep copy.
	Read(ctx context.Context, state string) (oidc.Request, error)
}

// SingleRequestReader implements the RequestReader interface for a single request.
// It is concurrently safe.
type SingleRequestReader struct {
	Request oidc.Request
}

// Read() will return it's single-request if the state matches it's Request.State(),
// otherwise it returns an error of oidc.ErrNotFound. It satisfies the
// RequestReader interface.  Read() is concurrently safe.
func (sr *SingleRequestReader) Read(ctx context.Context, state string) (oidc.Request, error) {
	if sr.Request == nil || sr.Request.State() != state {
		return nil, oidc.ErrNotFound
	}
	return sr.Request, nil
}

// RequestCache is an in-memory RequestReader for concurrent flows. A request
// can be read once: Read removes it.
type RequestCache struct {
	mu sync.Mutex
	c  map[string]oidc.Request
}

// NewRequestCache creates an empty RequestCache.
func NewRequestCache() *RequestCache {
	return &RequestCache{c: map[string]oidc.Request{}}
}

// Add a request, keyed by its state. Expired requests are swept.
func (rc *RequestCache) Add(r oidc.Request) error {
	const op = "RequestCache.Add"
	if r == nil {
		return fmt.Errorf("%s: request is nil: %w", op, oidc.ErrNilParameter)
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for state, cached := range rc.c {
		if cached.IsExpired() {
			delete(rc.c, state)
		}
	}
	rc.c[r.State()] = r
	return nil
}

// Read implements the RequestReader interface. The request is deleted
// before returning.
func (rc *RequestCache) Read(ctx context.Context, state string) (oidc.Request, error) {
	const op = "RequestCache.Read"
	rc.mu.Lock()
	defer rc.mu.Unlock()
	r, ok := rc.c[state]
	if !ok {
		return nil, fmt.Errorf("%s: state %s not found: %w", op, state, oidc.ErrNotFound)
	}
	delete(rc.c, state)
	if r.IsExpired() {
		return nil, fmt.Errorf("%s: state %s is expired: %w", op, state, oidc.ErrExpiredRequest)
	}
	return r, nil
}

// Len returns the number of cached requests.
func (rc *RequestCache) Len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.c)
}
