// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import "time"

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
//
// Valid for: Client, Request and Token
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if now == nil {
			return
		}
		switch v := o.(type) {
		case *clientOptions:
			v.withNowFunc = now
		case *reqOptions:
			v.withNowFunc = now
		case *tokenOptions:
			v.withNowFunc = now
		}
	}
}

// WithExpirySkew provides an optional expiry skew duration used when checking
// whether a Token or a Request has expired.
//
// Valid for: Token and Request
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *tokenOptions:
			v.withExpirySkew = d
		case *reqOptions:
			v.withExpirySkew = d
		}
	}
}

// WithScopes provides an optional list of scopes.
//
// Valid for: Config (adapter-configured scopes), AuthURL (caller scopes),
// Request and Exchange (scope sent with client_credentials, password and
// refresh_token grants).
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withScopes = scopes
		case *authOptions:
			v.withScopes = scopes
		case *reqOptions:
			v.withScopes = scopes
		case *exchangeOptions:
			v.withScopes = scopes
		}
	}
}

// WithClientID overrides the configured client id for a single call. The
// override never changes the Client's configuration.
//
// Valid for: AuthURL and Exchange
func WithClientID(clientID string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authOptions:
			v.withClientID = clientID
		case *exchangeOptions:
			v.withClientID = clientID
		}
	}
}

// WithRedirectURL overrides the configured redirect_uri for a single call.
// The override never changes the Client's configuration.
//
// Valid for: AuthURL and Exchange
func WithRedirectURL(redirectURL string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authOptions:
			v.withRedirectURL = redirectURL
		case *exchangeOptions:
			v.withRedirectURL = redirectURL
		}
	}
}

// WithPKCE provides a CodeVerifier. For authorization requests it supplies
// the code_challenge and code_challenge_method, for token requests it
// supplies the code_verifier.
//
// Valid for: AuthURL, Request and Exchange
func WithPKCE(v CodeVerifier) Option {
	return func(o interface{}) {
		switch opts := o.(type) {
		case *authOptions:
			opts.withVerifier = v
		case *reqOptions:
			opts.withVerifier = v
		case *exchangeOptions:
			opts.withVerifier = v
		}
	}
}

// WithState provides an optional state value. When it's not provided a
// random state is generated.
//
// Valid for: AuthURL and Request
func WithState(s string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authOptions:
			v.withState = s
		case *reqOptions:
			v.withState = s
		}
	}
}

// WithNonce provides an optional nonce value. When it's not provided a
// random nonce is generated for OIDC providers.
//
// Valid for: AuthURL and Request
func WithNonce(n string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authOptions:
			v.withNonce = n
		case *reqOptions:
			v.withNonce = n
		}
	}
}

// WithProviderCA provides an optional CA cert PEM used when sending requests
// to the provider.
//
// Valid for: Config and DiscoverDescriptor
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withProviderCA = cert
		case *discoveryOptions:
			v.withProviderCA = cert
		}
	}
}
