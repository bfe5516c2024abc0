// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/ozwillo/oauth2-client/oidc/internal/strutils"
	sdkHttp "github.com/ozwillo/oauth2-client/sdk/http"
)

// DiscoverDescriptor builds an OIDC Descriptor from the issuer's
// /.well-known/openid-configuration document.
//
// Supported options: WithProviderCA, WithTimeout
func DiscoverDescriptor(ctx context.Context, issuer string, opt ...Option) (*Descriptor, error) {
	const op = "DiscoverDescriptor"
	if issuer == "" {
		return nil, fmt.Errorf("%s: issuer is empty: %w", op, ErrInvalidParameter)
	}
	opts := getDiscoveryOpts(opt...)
	hc, err := sdkHttp.NewClient(opts.withProviderCA, opts.withTimeout)
	if err != nil {
		if errors.Is(err, sdkHttp.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: unable to create http client: %w: %w", op, ErrInvalidParameter, err)
	}
	p, err := oidc.NewProvider(HTTPClientContext(ctx, hc), issuer)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to discover provider %s: %w: %w", op, issuer, ErrTransport, err)
	}
	var meta struct {
		ChallengeMethods []string `json:"code_challenge_methods_supported"`
		ResponseModes    []string `json:"response_modes_supported"`
	}
	if err := p.Claims(&meta); err != nil {
		return nil, fmt.Errorf("%s: unable to read provider metadata: %w: %w", op, ErrMalformedResponse, err)
	}
	d := &Descriptor{
		Name:          issuer,
		AuthURL:       p.Endpoint().AuthURL,
		TokenURL:      p.Endpoint().TokenURL,
		UserInfoURL:   p.UserInfoEndpoint(),
		DefaultScopes: []string{oidc.ScopeOpenID},
		OIDC:          true,
	}
	if !strutils.StrListContains(meta.ChallengeMethods, string(S256)) && strutils.StrListContains(meta.ChallengeMethods, string(Plain)) {
		d.DefaultChallengeMethod = Plain
	}
	if strutils.StrListContains(meta.ResponseModes, "query") {
		d.ResponseMode = "query"
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%s: discovered descriptor is invalid: %w", op, err)
	}
	return d, nil
}

// discoveryOptions is the set of available options for DiscoverDescriptor.
type discoveryOptions struct {
	withProviderCA string
	withTimeout    time.Duration
}

// discoveryDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func discoveryDefaults() discoveryOptions {
	return discoveryOptions{}
}

// getDiscoveryOpts gets the defaults and applies the opt overrides passed
// in.
func getDiscoveryOpts(opt ...Option) discoveryOptions {
	opts := discoveryDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
