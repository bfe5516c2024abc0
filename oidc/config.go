// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-multierror"
	"github.com/ozwillo/oauth2-client/oidc/internal/strutils"
	sdkHttp "github.com/ozwillo/oauth2-client/sdk/http"
)

// ClientSecret is an oauth client Secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the relying party side of an OAuth2 authorization code
// flow: who the client is and where the provider sends the user back. The
// provider side lives in a Descriptor.
type Config struct {
	// ClientID is the relying party id. It may be left empty when every call
	// supplies WithClientID.
	ClientID string

	// ClientSecret is the relying party secret. It's optional for public
	// clients and is omitted from token requests when empty.
	ClientSecret ClientSecret

	// RedirectURL is the default redirect_uri sent with authorization and
	// token requests.
	RedirectURL string

	// Scopes is a list of additional scopes to request. They're requested
	// after the Descriptor's default scopes.
	Scopes []string

	// ProviderCA is an optional CA cert PEM to use when sending requests to
	// the provider.
	ProviderCA string

	// Timeout is an optional timeout for every request sent to the provider.
	// Zero means no timeout beyond the caller's context.
	Timeout time.Duration
}

// NewConfig composes a new config for a relying party.
//
// Supported options: WithScopes, WithProviderCA, WithTimeout
func NewConfig(clientID string, clientSecret ClientSecret, redirectURL string, opt ...Option) (*Config, error) {
	const op = "NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       opts.withScopes,
		ProviderCA:   opts.withProviderCA,
		Timeout:      opts.withTimeout,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// Validate the config. Every problem found is reported in the returned
// *multierror.Error.
func (c *Config) Validate() error {
	const op = "Config.Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.RedirectURL != "" {
		if err := validateAbsURL(c.RedirectURL); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: redirect URL %q: %w", op, c.RedirectURL, err))
		}
	}
	if c.ProviderCA != "" {
		if _, err := sdkHttp.NewClient(c.ProviderCA, 0); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", op, ErrInvalidCACert))
		}
	}
	if c.Timeout < 0 {
		result = multierror.Append(result, fmt.Errorf("%s: timeout %s is negative: %w", op, c.Timeout, ErrInvalidParameter))
	}
	return result.ErrorOrNil()
}

// HTTPClient is a helper function that creates a new http client for the
// provider configured.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "Config.HTTPClient"
	client, err := sdkHttp.NewClient(c.ProviderCA, c.Timeout)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w: %w", op, ErrInvalidParameter, err)
	}
	return client, nil
}

// HTTPClientContext is a helper function that returns a new Context that
// carries the provided HTTP client. This method sets the same context key used
// by the github.com/coreos/go-oidc and golang.org/x/oauth2 packages, so the
// returned context works for those packages as well.
func HTTPClientContext(ctx context.Context, client *http.Client) context.Context {
	// simple to implement as a wrapper for the coreos package
	return oidc.ClientContext(ctx, client)
}

// validateAbsURL checks that s is an absolute http(s) URL.
func validateAbsURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
	}
	if !strutils.StrListContains([]string{"https", "http"}, u.Scheme) || u.Host == "" {
		return fmt.Errorf("not an absolute http(s) URL: %w", ErrInvalidParameter)
	}
	return nil
}

// configOptions is the set of available options.
type configOptions struct {
	withScopes     []string
	withProviderCA string
	withTimeout    time.Duration
}

// configDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func configDefaults() configOptions {
	return configOptions{}
}

// getConfigOpts gets the defaults and applies the opt overrides passed
// in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithTimeout provides an optional timeout for requests sent to the
// provider.
//
// Valid for: Config and DiscoverDescriptor
func WithTimeout(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *configOptions:
			v.withTimeout = d
		case *discoveryOptions:
			v.withTimeout = d
		}
	}
}
