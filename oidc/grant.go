// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/url"
	"strings"
)

// Grant type names.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypePassword          = "password"
)

// GrantParams are the grant specific values of a token request.
type GrantParams struct {
	Code           string
	RefreshToken   RefreshToken
	CodeVerifier   string
	Scopes         []string
	ScopeSeparator string
	Username       string
	Password       string
}

// Grant is an OAuth2 flow variant. Prepare returns the final token request
// body built from the base values (client identity, redirect_uri) and the
// grant's own fields. Prepare must not modify base.
type Grant interface {
	Name() string
	Prepare(base url.Values, p GrantParams) (url.Values, error)
}

var (
	// AuthCodeGrant exchanges an authorization code (RFC 6749 section 4.1.3).
	AuthCodeGrant Grant = authCodeGrant{}

	// RefreshGrant refreshes an access token (RFC 6749 section 6).
	RefreshGrant Grant = refreshGrant{}

	// ClientCredentialsGrant requests a token for the client itself (RFC 6749
	// section 4.4).
	ClientCredentialsGrant Grant = clientCredentialsGrant{}

	// PasswordGrant exchanges resource owner credentials (RFC 6749 section
	// 4.3).
	PasswordGrant Grant = passwordGrant{}
)

// GrantByName returns the built-in grant with the given name.
func GrantByName(name string) (Grant, error) {
	const op = "GrantByName"
	switch name {
	case GrantTypeAuthorizationCode:
		return AuthCodeGrant, nil
	case GrantTypeRefreshToken:
		return RefreshGrant, nil
	case GrantTypeClientCredentials:
		return ClientCredentialsGrant, nil
	case GrantTypePassword:
		return PasswordGrant, nil
	default:
		return nil, fmt.Errorf("%s: %q: %w", op, name, ErrUnsupportedGrant)
	}
}

type authCodeGrant struct{}

func (authCodeGrant) Name() string { return GrantTypeAuthorizationCode }

func (g authCodeGrant) Prepare(base url.Values, p GrantParams) (url.Values, error) {
	const op = "AuthCodeGrant.Prepare"
	if p.Code == "" {
		return nil, fmt.Errorf("%s: code is empty: %w", op, ErrInvalidParameter)
	}
	v := withGrantType(base, g)
	v.Set("code", p.Code)
	if p.CodeVerifier != "" {
		v.Set("code_verifier", p.CodeVerifier)
	}
	return v, nil
}

type refreshGrant struct{}

func (refreshGrant) Name() string { return GrantTypeRefreshToken }

func (g refreshGrant) Prepare(base url.Values, p GrantParams) (url.Values, error) {
	const op = "RefreshGrant.Prepare"
	if p.RefreshToken == "" {
		return nil, fmt.Errorf("%s: refresh token is empty: %w", op, ErrInvalidParameter)
	}
	v := withGrantType(base, g)
	v.Set("refresh_token", string(p.RefreshToken))
	setScope(v, p)
	return v, nil
}

type clientCredentialsGrant struct{}

func (clientCredentialsGrant) Name() string { return GrantTypeClientCredentials }

func (g clientCredentialsGrant) Prepare(base url.Values, p GrantParams) (url.Values, error) {
	v := withGrantType(base, g)
	// the client authenticates itself, there's no redirect leg
	v.Del("redirect_uri")
	setScope(v, p)
	return v, nil
}

type passwordGrant struct{}

func (passwordGrant) Name() string { return GrantTypePassword }

func (g passwordGrant) Prepare(base url.Values, p GrantParams) (url.Values, error) {
	const op = "PasswordGrant.Prepare"
	switch {
	case p.Username == "":
		return nil, fmt.Errorf("%s: username is empty: %w", op, ErrInvalidParameter)
	case p.Password == "":
		return nil, fmt.Errorf("%s: password is empty: %w", op, ErrInvalidParameter)
	}
	v := withGrantType(base, g)
	v.Del("redirect_uri")
	v.Set("username", p.Username)
	v.Set("password", p.Password)
	setScope(v, p)
	return v, nil
}

func withGrantType(base url.Values, g Grant) url.Values {
	v := make(url.Values, len(base)+2)
	for k, vs := range base {
		v[k] = append([]string(nil), vs...)
	}
	v.Set("grant_type", g.Name())
	return v
}

func setScope(v url.Values, p GrantParams) {
	if len(p.Scopes) == 0 {
		return
	}
	sep := p.ScopeSeparator
	if sep == "" {
		sep = DefaultScopeSeparator
	}
	v.Set(ParamScope, strings.Join(p.Scopes, sep))
}
