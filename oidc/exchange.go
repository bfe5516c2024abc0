// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Exchange runs a token request for the grant g: it resolves the client
// identity (per call options first, then the Config), lets g shape the body,
// sends exactly one POST to the token endpoint, validates the response and
// builds the Token. It never retries.
//
// A non JSON body (or a JSON value that isn't an object) fails with
// ErrProtocol, a provider error with an *IdentityProviderError
// (ErrIdentityProvider), a transport failure with ErrTransport and a success
// response without an access_token with ErrMalformedResponse.
//
// The client_id is echoed into the token's Values only when it was supplied
// with WithClientID.
//
// Supported options: WithCode, WithClientID, WithClientSecret,
// WithRedirectURL, WithPKCE, WithScopes, WithRefreshToken,
// WithResourceOwnerCredentials
func (c *Client) Exchange(ctx context.Context, g Grant, opt ...Option) (*Tk, error) {
	const op = "Client.Exchange"
	if g == nil {
		return nil, fmt.Errorf("%s: grant is nil: %w", op, ErrNilParameter)
	}
	opts := getExchangeOpts(opt...)

	clientID, secret := c.credentials(opts)
	if clientID == "" {
		return nil, fmt.Errorf("%s: no client id: %w", op, ErrConfiguration)
	}
	redirectURL := c.config.RedirectURL
	if opts.withRedirectURL != "" {
		if err := validateAbsURL(opts.withRedirectURL); err != nil {
			return nil, fmt.Errorf("%s: redirect URL %q: %w", op, opts.withRedirectURL, err)
		}
		redirectURL = opts.withRedirectURL
	}

	base := url.Values{}
	base.Set(ParamClientID, clientID)
	if secret != "" {
		base.Set("client_secret", string(secret))
	}
	if redirectURL != "" {
		base.Set(ParamRedirectURI, redirectURL)
	}
	gp := GrantParams{
		Code:           opts.withCode,
		RefreshToken:   opts.withRefreshToken,
		Scopes:         MergeScopes(opts.withScopes),
		ScopeSeparator: c.descriptor.Separator(),
		Username:       opts.withUsername,
		Password:       opts.withPassword,
	}
	if opts.withVerifier != nil {
		gp.CodeVerifier = opts.withVerifier.Verifier()
	}
	body, err := g.Prepare(base, gp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	req, err := c.tokenRequest(body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	resp, err := c.send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	data, err := parseJSONObject(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: token endpoint replied with status %d: %w", op, resp.StatusCode, err)
	}
	if err := CheckResponse(resp, data, c.descriptor.Extractor()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if opts.withClientID != "" {
		data[ParamClientID] = opts.withClientID
	}
	tk, err := NewToken(data, g,
		WithNow(c.nowFunc),
		WithResourceOwnerIDKey(c.descriptor.ResourceOwnerIDKey),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("exchanged token",
		"provider", c.descriptor.Name,
		"grant", g.Name(),
		"expiry", tk.Expiry(),
		"has_refresh_token", tk.RefreshToken() != "",
		"has_id_token", tk.IDToken() != "",
	)
	return tk, nil
}

// ExchangeCode exchanges an authorization code for a token.
//
// Supported options: WithClientID, WithClientSecret, WithRedirectURL,
// WithPKCE
func (c *Client) ExchangeCode(ctx context.Context, code string, opt ...Option) (*Tk, error) {
	const op = "Client.ExchangeCode"
	tk, err := c.Exchange(ctx, AuthCodeGrant, append([]Option{WithCode(code)}, opt...)...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tk, nil
}

// Refresh uses a refresh_token to get a new token.
//
// Supported options: WithClientID, WithClientSecret, WithScopes
func (c *Client) Refresh(ctx context.Context, rt RefreshToken, opt ...Option) (*Tk, error) {
	const op = "Client.Refresh"
	tk, err := c.Exchange(ctx, RefreshGrant, append([]Option{WithRefreshToken(rt)}, opt...)...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return tk, nil
}

// tokenRequest encodes body per the descriptor's TokenRequestEncoding.
func (c *Client) tokenRequest(body url.Values) (*TransportRequest, error) {
	const op = "Client.tokenRequest"
	req := &TransportRequest{
		Method: http.MethodPost,
		URL:    c.descriptor.TokenEndpoint(),
		Header: http.Header{"Accept": []string{"application/json"}},
	}
	switch c.descriptor.Encoding() {
	case JSONEncoding:
		m := make(map[string]string, len(body))
		for k := range body {
			m[k] = body.Get(k)
		}
		b, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to encode token request: %w: %w", op, ErrInvalidParameter, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Body = b
	default:
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Body = []byte(body.Encode())
	}
	return req, nil
}

// exchangeOptions is the set of available options for token requests.
type exchangeOptions struct {
	withCode         string
	withClientID     string
	withClientSecret ClientSecret
	withRedirectURL  string
	withVerifier     CodeVerifier
	withScopes       []string
	withRefreshToken RefreshToken
	withUsername     string
	withPassword     string
}

// exchangeDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func exchangeDefaults() exchangeOptions {
	return exchangeOptions{}
}

// getExchangeOpts gets the defaults and applies the opt overrides passed
// in.
func getExchangeOpts(opt ...Option) exchangeOptions {
	opts := exchangeDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithCode provides the authorization code to exchange.
//
// Valid for: Exchange
func WithCode(code string) Option {
	return func(o interface{}) {
		if o, ok := o.(*exchangeOptions); ok {
			o.withCode = code
		}
	}
}

// WithClientSecret overrides the configured client secret for a single call.
//
// Valid for: Exchange and Deprovision
func WithClientSecret(secret ClientSecret) Option {
	return func(o interface{}) {
		if o, ok := o.(*exchangeOptions); ok {
			o.withClientSecret = secret
		}
	}
}

// WithRefreshToken provides the refresh_token of a refresh grant.
//
// Valid for: Exchange
func WithRefreshToken(rt RefreshToken) Option {
	return func(o interface{}) {
		if o, ok := o.(*exchangeOptions); ok {
			o.withRefreshToken = rt
		}
	}
}

// WithResourceOwnerCredentials provides the username and password of a
// password grant.
//
// Valid for: Exchange
func WithResourceOwnerCredentials(username, password string) Option {
	return func(o interface{}) {
		if o, ok := o.(*exchangeOptions); ok {
			o.withUsername = username
			o.withPassword = password
		}
	}
}
