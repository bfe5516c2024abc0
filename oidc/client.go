// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
)

// Client is an OAuth2 authorization code client for one provider (a
// Descriptor) and one relying party (a Config). A Client is immutable: every
// per call value (state, nonce, PKCE, client identity overrides) travels in
// options, so one Client can serve concurrent flows.
type Client struct {
	descriptor *Descriptor
	config     *Config
	transport  Transport
	logger     hclog.Logger
	nowFunc    func() time.Time
}

// NewClient creates a Client. The descriptor and config are validated and
// copied. When no Transport is provided an HTTPTransport is built from the
// config's ProviderCA and Timeout.
//
// Supported options: WithTransport, WithLogger, WithNow
func NewClient(d *Descriptor, c *Config, opt ...Option) (*Client, error) {
	const op = "NewClient"
	if d == nil {
		return nil, fmt.Errorf("%s: descriptor is nil: %w", op, ErrNilParameter)
	}
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid descriptor: %w", op, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	opts := getClientOpts(opt...)

	cfg := *c
	cfg.Scopes = append([]string(nil), c.Scopes...)

	tr := opts.withTransport
	if tr == nil {
		hc, err := cfg.HTTPClient()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if tr, err = NewHTTPTransport(hc); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return &Client{
		descriptor: d.clone(),
		config:     &cfg,
		transport:  tr,
		logger:     opts.withLogger,
		nowFunc:    opts.withNowFunc,
	}, nil
}

// Descriptor returns a copy of the client's provider descriptor.
func (c *Client) Descriptor() *Descriptor { return c.descriptor.clone() }

// Config returns a copy of the client's config.
func (c *Client) Config() *Config {
	cfg := *c.config
	cfg.Scopes = append([]string(nil), c.config.Scopes...)
	return &cfg
}

// Transport returns the client's transport.
func (c *Client) Transport() Transport { return c.transport }

// AuthURL builds the authorization URL the user agent must be redirected
// to. The returned AuthParams carry the generated state and nonce, which the
// caller must keep to validate the callback.
//
// See BuildAuthParams for the supported options.
func (c *Client) AuthURL(ctx context.Context, opt ...Option) (string, *AuthParams, error) {
	const op = "Client.AuthURL"
	p, err := BuildAuthParams(c.descriptor, c.config, opt...)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	u, err := ComposeAuthURL(c.descriptor.AuthEndpoint(), p, c.descriptor.Separator())
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	c.logger.Debug("composed authorization url",
		"provider", c.descriptor.Name,
		"client_id", p.Get(ParamClientID),
		"scopes", p.Scopes,
		"pkce", p.Has(ParamCodeChallenge),
	)
	return u, p, nil
}

// AuthURLForRequest builds the authorization URL for the flow r. Options are
// applied after the request's own values.
func (c *Client) AuthURLForRequest(ctx context.Context, r Request, opt ...Option) (string, error) {
	const op = "Client.AuthURLForRequest"
	if r == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if r.IsExpired() {
		return "", fmt.Errorf("%s: request (%s) is expired: %w", op, r.State(), ErrExpiredRequest)
	}
	u, _, err := c.AuthURL(ctx, append(requestAuthOptions(r), opt...)...)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// UserInfo gets the resource owner's claims from the provider's userinfo
// endpoint and unmarshals them into claims.
//
// For OIDC providers, when the token's resource owner is known, the
// userinfo "sub" must match it.
func (c *Client) UserInfo(ctx context.Context, t Token, claims interface{}) error {
	const op = "Client.UserInfo"
	switch {
	case t == nil:
		return fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	case claims == nil:
		return fmt.Errorf("%s: claims is nil: %w", op, ErrNilParameter)
	case t.AccessToken() == "":
		return fmt.Errorf("%s: access_token is empty: %w", op, ErrInvalidParameter)
	}
	endpoint, err := c.descriptor.UserInfoEndpoint(t)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req := &TransportRequest{
		Method: http.MethodGet,
		URL:    endpoint,
		Header: http.Header{
			"Accept":        []string{"application/json"},
			"Authorization": []string{"Bearer " + string(t.AccessToken())},
		},
	}
	resp, err := c.send(ctx, req)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrUserInfoFailed, err)
	}
	data, perr := parseJSONObject(resp.Body)
	if err := CheckResponse(resp, data, c.descriptor.Extractor()); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrUserInfoFailed, err)
	}
	if perr != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrUserInfoFailed, perr)
	}
	if c.descriptor.OIDC && t.ResourceOwnerID() != "" {
		if sub := stringValue(data["sub"]); sub != t.ResourceOwnerID() {
			return fmt.Errorf("%s: userinfo sub %q doesn't match token subject: %w", op, sub, ErrUserInfoFailed)
		}
	}
	if err := json.Unmarshal(resp.Body, claims); err != nil {
		return fmt.Errorf("%s: unable to unmarshal claims: %w: %w", op, ErrUserInfoFailed, err)
	}
	return nil
}

// Deprovision sends the provider's housekeeping DELETE for instanceID. An
// empty instanceID is a no-op which returns false. It returns true once the
// provider accepted the request. The client credentials (config or per call
// overrides) are sent with HTTP basic auth when a secret is known.
//
// Supported options: WithClientID, WithClientSecret
func (c *Client) Deprovision(ctx context.Context, instanceID string, opt ...Option) (bool, error) {
	const op = "Client.Deprovision"
	if strings.TrimSpace(instanceID) == "" {
		return false, nil
	}
	endpoint, err := c.descriptor.DeprovisionEndpoint(instanceID)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	opts := getExchangeOpts(opt...)
	clientID, secret := c.credentials(opts)
	req := &TransportRequest{
		Method: http.MethodDelete,
		URL:    endpoint,
		Header: http.Header{"Accept": []string{"application/json"}},
	}
	if clientID != "" && secret != "" {
		req.Header.Set("Authorization", "Basic "+basicAuth(clientID, string(secret)))
	}
	resp, err := c.send(ctx, req)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := parseJSONObject(resp.Body)
		if err := CheckResponse(resp, data, c.descriptor.Extractor()); err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
	}
	c.logger.Debug("deprovisioned instance", "provider", c.descriptor.Name, "instance_id", instanceID, "status", resp.StatusCode)
	return true, nil
}

// send runs one request through the transport. Failures which don't already
// wrap ErrTransport are wrapped with it.
func (c *Client) send(ctx context.Context, req *TransportRequest) (*TransportResponse, error) {
	const op = "Client.send"
	start := time.Now()
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		c.logger.Debug("provider request failed", "method", req.Method, "url", redactURL(req.URL), "error", err)
		if errors.Is(err, ErrTransport) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%s: transport returned no response: %w", op, ErrTransport)
	}
	c.logger.Debug("provider request", "method", req.Method, "url", redactURL(req.URL), "status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}

// credentials resolves the client id and secret of a call. The secret never
// falls back to the client id.
func (c *Client) credentials(opts exchangeOptions) (string, ClientSecret) {
	clientID := c.config.ClientID
	if opts.withClientID != "" {
		clientID = opts.withClientID
	}
	secret := c.config.ClientSecret
	if opts.withClientSecret != "" {
		secret = opts.withClientSecret
	}
	return clientID, secret
}

func basicAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(url.QueryEscape(username) + ":" + url.QueryEscape(password)))
}

// redactURL drops the query of u for logging.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return "[unparsable url]"
	}
	parsed.RawQuery = ""
	parsed.User = nil
	return parsed.String()
}

// clientOptions is the set of available options for NewClient.
type clientOptions struct {
	withTransport Transport
	withLogger    hclog.Logger
	withNowFunc   func() time.Time
}

// clientDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func clientDefaults() clientOptions {
	return clientOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getClientOpts gets the defaults and applies the opt overrides passed
// in.
func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTransport provides an optional Transport.
//
// Valid for: Client
func WithTransport(tr Transport) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && tr != nil {
			o.withTransport = tr
		}
	}
}

// WithLogger provides an optional hclog.Logger. The default logger discards
// everything.
//
// Valid for: Client
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}
