// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-multierror"
)

// TokenRequestEncoding defines how a token request body is encoded.
type TokenRequestEncoding string

const (
	// FormEncoding sends application/x-www-form-urlencoded bodies (RFC 6749).
	FormEncoding TokenRequestEncoding = "form"

	// JSONEncoding sends application/json bodies.
	JSONEncoding TokenRequestEncoding = "json"
)

// InstanceIDPlaceholder is replaced by the (path escaped) instance id in a
// Descriptor's DeprovisionURL.
const InstanceIDPlaceholder = "{instance_id}"

// DefaultScopeSeparator joins scopes when a Descriptor doesn't define its own
// separator.
const DefaultScopeSeparator = " "

// ErrorExtractor inspects a decoded provider response and returns the
// provider's error, or nil when the response doesn't carry one.
type ErrorExtractor func(data map[string]interface{}) *IdentityProviderError

// Descriptor describes one identity provider: its endpoints, default scopes,
// scope separator, parameter defaults and error shape. New providers are
// added by building a new Descriptor, never by changing the engine.
//
// A Descriptor is treated as immutable once handed to NewClient.
type Descriptor struct {
	// Name is a display name used in logs.
	Name string

	// AuthURL is the provider's authorization endpoint.
	AuthURL string

	// TokenURL is the provider's token endpoint.
	TokenURL string

	// UserInfoURL is the provider's resource owner (userinfo) endpoint.
	UserInfoURL string

	// UserInfoURLFunc optionally derives the resource owner URL from a token.
	// It takes precedence over UserInfoURL.
	UserInfoURLFunc func(t Token) string

	// DeprovisionURL is an optional housekeeping endpoint. It must contain
	// InstanceIDPlaceholder, which is replaced by the instance id.
	DeprovisionURL string

	// DefaultScopes are requested before any configured or per call scopes.
	DefaultScopes []string

	// ScopeSeparator joins scopes. Defaults to DefaultScopeSeparator.
	ScopeSeparator string

	// ResponseMode is the optional default response_mode.
	ResponseMode string

	// DefaultChallengeMethod is the PKCE method used when a code_challenge is
	// supplied without a method. Defaults to S256.
	DefaultChallengeMethod ChallengeMethod

	// OIDC marks an OpenID Connect provider: "openid" is always the first
	// scope and a nonce is sent with every authorization request.
	OIDC bool

	// TokenRequestEncoding of token request bodies. Defaults to FormEncoding.
	TokenRequestEncoding TokenRequestEncoding

	// ErrorExtractor optionally overrides DefaultErrorExtractor.
	ErrorExtractor ErrorExtractor

	// ResourceOwnerIDKey optionally names the token response field holding
	// the resource owner id.
	ResourceOwnerIDKey string
}

// AuthEndpoint returns the authorization endpoint.
func (d *Descriptor) AuthEndpoint() string { return d.AuthURL }

// TokenEndpoint returns the token endpoint.
func (d *Descriptor) TokenEndpoint() string { return d.TokenURL }

// UserInfoEndpoint returns the resource owner endpoint for the token.
func (d *Descriptor) UserInfoEndpoint(t Token) (string, error) {
	const op = "Descriptor.UserInfoEndpoint"
	var u string
	switch {
	case d.UserInfoURLFunc != nil:
		u = d.UserInfoURLFunc(t)
	default:
		u = d.UserInfoURL
	}
	if u == "" {
		return "", fmt.Errorf("%s: provider %q has no user info endpoint: %w", op, d.Name, ErrNotFound)
	}
	return u, nil
}

// DeprovisionEndpoint returns the housekeeping endpoint for the instance.
func (d *Descriptor) DeprovisionEndpoint(instanceID string) (string, error) {
	const op = "Descriptor.DeprovisionEndpoint"
	if d.DeprovisionURL == "" {
		return "", fmt.Errorf("%s: provider %q has no deprovisioning endpoint: %w", op, d.Name, ErrNotFound)
	}
	if instanceID == "" {
		return "", fmt.Errorf("%s: instance id is empty: %w", op, ErrInvalidParameter)
	}
	return strings.ReplaceAll(d.DeprovisionURL, InstanceIDPlaceholder, url.PathEscape(instanceID)), nil
}

// Separator returns the scope separator.
func (d *Descriptor) Separator() string {
	if d.ScopeSeparator == "" {
		return DefaultScopeSeparator
	}
	return d.ScopeSeparator
}

// ChallengeMethod returns the default PKCE challenge method.
func (d *Descriptor) ChallengeMethod() ChallengeMethod {
	if d.DefaultChallengeMethod == "" {
		return S256
	}
	return d.DefaultChallengeMethod
}

// Encoding returns the token request encoding.
func (d *Descriptor) Encoding() TokenRequestEncoding {
	if d.TokenRequestEncoding == "" {
		return FormEncoding
	}
	return d.TokenRequestEncoding
}

// Extractor returns the error extraction rule.
func (d *Descriptor) Extractor() ErrorExtractor {
	if d.ErrorExtractor == nil {
		return DefaultErrorExtractor
	}
	return d.ErrorExtractor
}

// Scopes returns the descriptor's default scopes. For OIDC providers "openid"
// is always first.
func (d *Descriptor) Scopes() []string {
	scopes := make([]string, 0, len(d.DefaultScopes)+1)
	if d.OIDC {
		scopes = append(scopes, oidc.ScopeOpenID)
	}
	return append(scopes, d.DefaultScopes...)
}

// Validate the descriptor. Every problem found is reported in the returned
// *multierror.Error.
func (d *Descriptor) Validate() error {
	const op = "Descriptor.Validate"
	if d == nil {
		return fmt.Errorf("%s: descriptor is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if d.AuthURL == "" {
		result = multierror.Append(result, fmt.Errorf("%s: auth URL is empty: %w", op, ErrInvalidParameter))
	} else if err := validateAbsURL(d.AuthURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: auth URL %q: %w", op, d.AuthURL, err))
	}
	if d.TokenURL == "" {
		result = multierror.Append(result, fmt.Errorf("%s: token URL is empty: %w", op, ErrInvalidParameter))
	} else if err := validateAbsURL(d.TokenURL); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: token URL %q: %w", op, d.TokenURL, err))
	}
	if d.UserInfoURL != "" {
		if err := validateAbsURL(d.UserInfoURL); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: user info URL %q: %w", op, d.UserInfoURL, err))
		}
	}
	if d.DeprovisionURL != "" {
		u := strings.ReplaceAll(d.DeprovisionURL, InstanceIDPlaceholder, "id")
		if err := validateAbsURL(u); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: deprovision URL %q: %w", op, d.DeprovisionURL, err))
		}
		if !strings.Contains(d.DeprovisionURL, InstanceIDPlaceholder) {
			result = multierror.Append(result, fmt.Errorf("%s: deprovision URL %q has no %s: %w", op, d.DeprovisionURL, InstanceIDPlaceholder, ErrInvalidParameter))
		}
	}
	if d.DefaultChallengeMethod != "" && !d.DefaultChallengeMethod.Valid() {
		result = multierror.Append(result, fmt.Errorf("%s: challenge method %q: %w", op, d.DefaultChallengeMethod, ErrUnsupportedChallengeMethod))
	}
	switch d.TokenRequestEncoding {
	case "", FormEncoding, JSONEncoding:
	default:
		result = multierror.Append(result, fmt.Errorf("%s: token request encoding %q: %w", op, d.TokenRequestEncoding, ErrInvalidParameter))
	}
	return result.ErrorOrNil()
}

// clone returns a copy which doesn't share slices with d.
func (d *Descriptor) clone() *Descriptor {
	cp := *d
	if d.DefaultScopes != nil {
		cp.DefaultScopes = make([]string, len(d.DefaultScopes))
		copy(cp.DefaultScopes, d.DefaultScopes)
	}
	return &cp
}
