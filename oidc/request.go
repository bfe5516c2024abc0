// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
)

// Request basically represents one OAuth2 authorization code flow: the
// values sent with the authorization request which must be checked or
// replayed when the code comes back. The caller stores it (keyed by State)
// between the two legs; the engine never does.
type Request interface {
	// State is the unique identifier and it is also used as the state
	// parameter of the authorization request.
	State() string

	// Nonce is the nonce parameter sent with the authorization request.
	Nonce() string

	// IsExpired returns true if the request has expired.
	IsExpired() bool

	// ExpiresAt returns the time the request expires.
	ExpiresAt() time.Time

	// RedirectURL is the redirect_uri used for both legs of the flow.
	RedirectURL() string

	// PKCEVerifier is the optional code verifier of the flow.
	PKCEVerifier() CodeVerifier

	// Scopes are the optional per flow scopes.
	Scopes() []string

	// Prompts are the optional prompt values.
	Prompts() []Prompt

	// MaxAge returns the optional max_age and whether it was set.
	MaxAge() (uint, bool)

	// UILocales are the optional ui_locales.
	UILocales() []language.Tag

	// Display is the optional display value.
	Display() Display

	// ACRValues are the optional acr_values.
	ACRValues() []string
}

// Req represents the oidc request used for oidc flows and implements the Request interface.
type Req struct {
	state       string
	nonce       string
	expiration  time.Time
	redirectURL string
	verifier    CodeVerifier
	scopes      []string
	prompts     []Prompt
	maxAge      *uint
	uiLocales   []language.Tag
	display     Display
	acrValues   []string

	nowFunc    func() time.Time
	expirySkew time.Duration
}

// ensure that Req implements the Request interface.
var _ Request = (*Req)(nil)

// NewRequest creates a new Request. expireIn is how long the caller will wait
// for the code to come back. redirectURL is required.
//
// Supported options: WithState, WithNonce, WithNow, WithExpirySkew,
// WithScopes, WithPKCE, WithPrompts, WithMaxAge, WithUILocales, WithDisplay,
// WithACRValues
func NewRequest(expireIn time.Duration, redirectURL string, opt ...Option) (*Req, error) {
	const op = "NewRequest"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn must be greater than zero: %w", op, ErrInvalidParameter)
	}
	if redirectURL == "" {
		return nil, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter)
	}
	if err := validateAbsURL(redirectURL); err != nil {
		return nil, fmt.Errorf("%s: redirect URL %q: %w", op, redirectURL, err)
	}
	opts := getReqOpts(opt...)

	state := opts.withState
	if state == "" {
		var err error
		if state, err = NewID(WithPrefix("st")); err != nil {
			return nil, fmt.Errorf("%s: unable to generate a request's state: %w", op, err)
		}
	}
	nonce := opts.withNonce
	if nonce == "" {
		var err error
		if nonce, err = NewID(WithPrefix("n")); err != nil {
			return nil, fmt.Errorf("%s: unable to generate a request's nonce: %w", op, err)
		}
	}
	if state == nonce {
		return nil, fmt.Errorf("%s: state and nonce must differ: %w", op, ErrInvalidParameter)
	}

	r := &Req{
		state:       state,
		nonce:       nonce,
		redirectURL: redirectURL,
		verifier:    opts.withVerifier,
		scopes:      opts.withScopes,
		prompts:     opts.withPrompts,
		maxAge:      opts.withMaxAge,
		uiLocales:   opts.withUILocales,
		display:     opts.withDisplay,
		acrValues:   opts.withACRValues,
		nowFunc:     opts.withNowFunc,
		expirySkew:  opts.withExpirySkew,
	}
	r.expiration = r.now().Add(expireIn)
	return r, nil
}

// State implements the Request.State() interface function.
func (r *Req) State() string { return r.state }

// Nonce implements the Request.Nonce() interface function.
func (r *Req) Nonce() string { return r.nonce }

// ExpiresAt implements the Request.ExpiresAt() interface function.
func (r *Req) ExpiresAt() time.Time { return r.expiration }

// RedirectURL implements the Request.RedirectURL() interface function.
func (r *Req) RedirectURL() string { return r.redirectURL }

// PKCEVerifier implements the Request.PKCEVerifier() interface function and
// returns a copy of the CodeVerifier.
func (r *Req) PKCEVerifier() CodeVerifier {
	if r.verifier == nil {
		return nil
	}
	return r.verifier.Copy()
}

// Scopes implements the Request.Scopes() interface function.
func (r *Req) Scopes() []string { return r.scopes }

// Prompts implements the Request.Prompts() interface function.
func (r *Req) Prompts() []Prompt { return r.prompts }

// MaxAge implements the Request.MaxAge() interface function.
func (r *Req) MaxAge() (uint, bool) {
	if r.maxAge == nil {
		return 0, false
	}
	return *r.maxAge, true
}

// UILocales implements the Request.UILocales() interface function.
func (r *Req) UILocales() []language.Tag { return r.uiLocales }

// Display implements the Request.Display() interface function.
func (r *Req) Display() Display { return r.display }

// ACRValues implements the Request.ACRValues() interface function.
func (r *Req) ACRValues() []string { return r.acrValues }

// IsExpired returns true if the request has expired.
func (r *Req) IsExpired() bool {
	return r.expiration.Before(r.now().Add(r.expirySkew))
}

// now returns the current time using the optional timeFn
func (r *Req) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now() // fallback to this default
}

// requestAuthOptions converts a request into the options of its
// authorization request.
func requestAuthOptions(r Request) []Option {
	opts := []Option{
		WithState(r.State()),
		WithNonce(r.Nonce()),
		WithRedirectURL(r.RedirectURL()),
	}
	if v := r.PKCEVerifier(); v != nil {
		opts = append(opts, WithPKCE(v))
	}
	if len(r.Scopes()) > 0 {
		opts = append(opts, WithScopes(r.Scopes()...))
	}
	if len(r.Prompts()) > 0 {
		opts = append(opts, WithPrompts(r.Prompts()...))
	}
	if maxAge, ok := r.MaxAge(); ok {
		opts = append(opts, WithMaxAge(maxAge))
	}
	if len(r.UILocales()) > 0 {
		opts = append(opts, WithUILocales(r.UILocales()...))
	}
	if r.Display() != "" {
		opts = append(opts, WithDisplay(r.Display()))
	}
	if len(r.ACRValues()) > 0 {
		opts = append(opts, WithACRValues(r.ACRValues()...))
	}
	return opts
}

// reqOptions is the set of available options for Req functions
type reqOptions struct {
	withNowFunc    func() time.Time
	withExpirySkew time.Duration
	withScopes     []string
	withVerifier   CodeVerifier
	withState      string
	withNonce      string
	withPrompts    []Prompt
	withMaxAge     *uint
	withUILocales  []language.Tag
	withDisplay    Display
	withACRValues  []string
}

// reqDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func reqDefaults() reqOptions {
	return reqOptions{
		withExpirySkew: 1 * time.Second,
	}
}

// getReqOpts gets the request defaults and applies the opt overrides passed in
func getReqOpts(opt ...Option) reqOptions {
	opts := reqDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
