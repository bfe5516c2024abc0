// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ozwillo/oauth2-client/oidc/internal/strutils"
	"golang.org/x/text/language"
)

// Authorization request parameter names.
const (
	ParamResponseType        = "response_type"
	ParamClientID            = "client_id"
	ParamRedirectURI         = "redirect_uri"
	ParamState               = "state"
	ParamScope               = "scope"
	ParamResponseMode        = "response_mode"
	ParamNonce               = "nonce"
	ParamCodeChallenge       = "code_challenge"
	ParamCodeChallengeMethod = "code_challenge_method"
	ParamPrompt              = "prompt"
	ParamIDTokenHint         = "id_token_hint"
	ParamMaxAge              = "max_age"
	ParamClaims              = "claims"
	ParamUILocales           = "ui_locales"
	ParamDisplay             = "display"
	ParamACRValues           = "acr_values"
)

// Prompt is a string values that specifies whether the Authorization Server
// prompts the End-User for reauthentication and consent.
//
// See MaxAge: https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest.
type Prompt string

const (
	// Defined the Prompt values that specifies whether the Authorization Server
	// prompts the End-User for reauthentication and consent.
	//
	// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
	None          Prompt = "none"
	Login         Prompt = "login"
	Consent       Prompt = "consent"
	SelectAccount Prompt = "select_account"
)

// Display is a string value that specifies how the Authorization Server
// displays the authentication and consent user interface pages to the End-User.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
type Display string

const (
	// Defined the Display values that specifies how the Authorization Server
	// displays the authentication and consent user interface pages to the End-User.
	//
	// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
	Page  Display = "page"
	Popup Display = "popup"
	Touch Display = "touch"
	WAP   Display = "wap"
)

// AuthParams is the parameter set of one authorization request. Omitted
// parameters are absent from Params, never present with an empty value.
// Scopes are kept apart from Params since they're joined with the
// provider's separator when the URL is composed.
type AuthParams struct {
	Params map[string]string
	Scopes []string

	// Verifier is the PKCE verifier supplied with WithPKCE, if any. The caller
	// must keep it until the code is exchanged.
	Verifier CodeVerifier
}

// Get returns the value of the named parameter, or "" when it's omitted.
func (p *AuthParams) Get(name string) string {
	if p == nil {
		return ""
	}
	return p.Params[name]
}

// Has reports whether the named parameter is present.
func (p *AuthParams) Has(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.Params[name]
	return ok
}

// State returns the request's state.
func (p *AuthParams) State() string { return p.Get(ParamState) }

// Nonce returns the request's nonce.
func (p *AuthParams) Nonce() string { return p.Get(ParamNonce) }

// BuildAuthParams builds the parameters of an authorization code request for
// the provider d and relying party c. Per call values override c for this
// call only; neither d nor c are modified.
//
// It fails with ErrConfiguration when no client id can be resolved.
//
// Supported options: WithClientID, WithRedirectURL, WithScopes, WithState,
// WithNonce, WithPKCE, WithCodeChallenge, WithResponseMode, WithPrompts,
// WithIDTokenHint, WithMaxAge, WithClaims, WithUILocales, WithDisplay,
// WithACRValues
func BuildAuthParams(d *Descriptor, c *Config, opt ...Option) (*AuthParams, error) {
	const op = "BuildAuthParams"
	switch {
	case d == nil:
		return nil, fmt.Errorf("%s: descriptor is nil: %w", op, ErrNilParameter)
	case c == nil:
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	opts := getAuthOpts(opt...)

	p := &AuthParams{
		Params:   map[string]string{},
		Verifier: opts.withVerifier,
	}
	set := func(k, v string) {
		if v != "" {
			p.Params[k] = v
		}
	}

	clientID := c.ClientID
	if opts.withClientID != "" {
		clientID = opts.withClientID
	}
	if clientID == "" {
		return nil, fmt.Errorf("%s: no client id: %w", op, ErrConfiguration)
	}
	redirectURL := c.RedirectURL
	if opts.withRedirectURL != "" {
		if err := validateAbsURL(opts.withRedirectURL); err != nil {
			return nil, fmt.Errorf("%s: redirect URL %q: %w", op, opts.withRedirectURL, err)
		}
		redirectURL = opts.withRedirectURL
	}
	set(ParamResponseType, "code")
	set(ParamClientID, clientID)
	set(ParamRedirectURI, redirectURL)

	state := opts.withState
	if state == "" {
		var err error
		if state, err = NewID(WithPrefix("st")); err != nil {
			return nil, fmt.Errorf("%s: unable to generate state: %w", op, err)
		}
	}
	set(ParamState, state)

	nonce := opts.withNonce
	if nonce == "" && d.OIDC {
		var err error
		if nonce, err = NewID(WithPrefix("n")); err != nil {
			return nil, fmt.Errorf("%s: unable to generate nonce: %w", op, err)
		}
	}
	if nonce != "" && nonce == state {
		return nil, fmt.Errorf("%s: state and nonce must differ: %w", op, ErrInvalidParameter)
	}
	set(ParamNonce, nonce)

	responseMode := d.ResponseMode
	if opts.withResponseMode != "" {
		responseMode = opts.withResponseMode
	}
	set(ParamResponseMode, responseMode)

	challenge, method := opts.withCodeChallenge, opts.withChallengeMethod
	if opts.withVerifier != nil {
		if challenge != "" {
			return nil, fmt.Errorf("%s: WithPKCE and WithCodeChallenge are mutually exclusive: %w", op, ErrInvalidParameter)
		}
		challenge, method = opts.withVerifier.Challenge(), opts.withVerifier.Method()
	}
	if challenge != "" {
		if method == "" {
			method = d.ChallengeMethod()
		}
		if !method.Valid() {
			return nil, fmt.Errorf("%s: code challenge method %q: %w", op, method, ErrUnsupportedChallengeMethod)
		}
		set(ParamCodeChallenge, challenge)
		set(ParamCodeChallengeMethod, string(method))
	}

	if len(opts.withPrompts) > 0 {
		prompts := make([]string, 0, len(opts.withPrompts))
		for _, pr := range opts.withPrompts {
			prompts = append(prompts, string(pr))
		}
		prompts = strutils.RemoveDuplicatesStable(prompts, false)
		if strutils.StrListContains(prompts, string(None)) && len(prompts) > 1 {
			return nil, fmt.Errorf("%s: prompt %q cannot be combined with other values: %w", op, None, ErrInvalidParameter)
		}
		set(ParamPrompt, strings.Join(prompts, " "))
	}
	set(ParamIDTokenHint, opts.withIDTokenHint)
	if opts.withMaxAge != nil {
		set(ParamMaxAge, strconv.FormatUint(uint64(*opts.withMaxAge), 10))
	}
	if opts.withClaims != "" {
		if !json.Valid([]byte(opts.withClaims)) {
			return nil, fmt.Errorf("%s: claims is not valid JSON: %w", op, ErrInvalidParameter)
		}
		set(ParamClaims, opts.withClaims)
	}
	if len(opts.withUILocales) > 0 {
		locales := make([]string, 0, len(opts.withUILocales))
		for _, l := range opts.withUILocales {
			locales = append(locales, l.String())
		}
		set(ParamUILocales, strings.Join(strutils.RemoveDuplicatesStable(locales, true), " "))
	}
	set(ParamDisplay, string(opts.withDisplay))
	set(ParamACRValues, strings.Join(strutils.RemoveDuplicatesStable(opts.withACRValues, false), " "))

	p.Scopes = MergeScopes(d.Scopes(), c.Scopes, opts.withScopes)
	return p, nil
}

// MergeScopes concatenates the scope lists in order, trims every scope and
// drops empty scopes and duplicates, keeping the first occurrence.
func MergeScopes(lists ...[]string) []string {
	var all []string
	for _, l := range lists {
		for _, s := range l {
			all = append(all, strings.TrimSpace(s))
		}
	}
	return strutils.RemoveDuplicatesStable(all, false)
}

// authOptions is the set of available options for BuildAuthParams and
// Client.AuthURL.
type authOptions struct {
	withScopes          []string
	withClientID        string
	withRedirectURL     string
	withState           string
	withNonce           string
	withVerifier        CodeVerifier
	withCodeChallenge   string
	withChallengeMethod ChallengeMethod
	withResponseMode    string
	withPrompts         []Prompt
	withIDTokenHint     string
	withMaxAge          *uint
	withClaims          string
	withUILocales       []language.Tag
	withDisplay         Display
	withACRValues       []string
}

// authDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func authDefaults() authOptions {
	return authOptions{}
}

// getAuthOpts gets the defaults and applies the opt overrides passed
// in.
func getAuthOpts(opt ...Option) authOptions {
	opts := authDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithCodeChallenge provides a raw PKCE code_challenge and an optional
// method. When method is empty the Descriptor's default method is used.
//
// Valid for: AuthURL
func WithCodeChallenge(challenge string, method ChallengeMethod) Option {
	return func(o interface{}) {
		if o, ok := o.(*authOptions); ok {
			o.withCodeChallenge = challenge
			o.withChallengeMethod = method
		}
	}
}

// WithResponseMode overrides the Descriptor's response_mode.
//
// Valid for: AuthURL
func WithResponseMode(mode string) Option {
	return func(o interface{}) {
		if o, ok := o.(*authOptions); ok {
			o.withResponseMode = mode
		}
	}
}

// WithPrompts provides an optional list of values that specifies whether the
// Authorization Server prompts the End-User for reauthentication and consent.
// None cannot be combined with other values.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
//
// Valid for: AuthURL and Request
func WithPrompts(prompts ...Prompt) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authOptions:
			v.withPrompts = prompts
		case *reqOptions:
			v.withPrompts = prompts
		}
	}
}

// WithIDTokenHint provides an optional id_token_hint.
//
// Valid for: AuthURL
func WithIDTokenHint(hint IDToken) Option {
	return func(o interface{}) {
		if o, ok := o.(*authOptions); ok {
			o.withIDTokenHint = string(hint)
		}
	}
}

// WithMaxAge provides an optional max_age in seconds. A max_age of 0 is
// sent as "0", which asks the provider to actively re-authenticate the user.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#AuthRequest
//
// Valid for: AuthURL and Request
func WithMaxAge(seconds uint) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authOptions:
			v.withMaxAge = &seconds
		case *reqOptions:
			v.withMaxAge = &seconds
		}
	}
}

// WithClaims provides an optional claims request parameter, which must be a
// JSON document.
//
// See: https://openid.net/specs/openid-connect-core-1_0.html#ClaimsParameter
//
// Valid for: AuthURL
func WithClaims(claims []byte) Option {
	return func(o interface{}) {
		if o, ok := o.(*authOptions); ok {
			o.withClaims = string(claims)
		}
	}
}

// WithUILocales provides the End-User's preferred languages for the user
// interface, in order of preference.
//
// Valid for: AuthURL and Request
func WithUILocales(locales ...language.Tag) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authOptions:
			v.withUILocales = locales
		case *reqOptions:
			v.withUILocales = locales
		}
	}
}

// WithDisplay provides an optional display value.
//
// Valid for: AuthURL and Request
func WithDisplay(d Display) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authOptions:
			v.withDisplay = d
		case *reqOptions:
			v.withDisplay = d
		}
	}
}

// WithACRValues provides optional Authentication Context Class Reference
// values, in order of preference.
//
// Valid for: AuthURL and Request
func WithACRValues(values ...string) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *authOptions:
			v.withACRValues = values
		case *reqOptions:
			v.withACRValues = values
		}
	}
}
