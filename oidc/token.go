// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"math"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpirySkew is the default skew applied when checking a token's
// expiry.
const DefaultExpirySkew = 10 * time.Second

// maxExpiresIn is the largest expires_in, in seconds, a time.Duration holds.
const maxExpiresIn = math.MaxInt64 / int64(time.Second)

// Token interface represents an OAuth2 access token (and its optional
// refresh_token and id_token). Tokens are immutable.
type Token interface {
	// AccessToken returns the access_token. It's never empty.
	AccessToken() AccessToken

	// RefreshToken returns the optional refresh_token.
	RefreshToken() RefreshToken

	// IDToken returns the optional id_token.
	IDToken() IDToken

	// TokenType returns the token_type (usually "Bearer").
	TokenType() string

	// Expiry returns the expiration of the access_token. A zero value means
	// the token doesn't expire.
	Expiry() time.Time

	// Scopes returns the granted scopes when the provider reported them.
	Scopes() []string

	// ResourceOwnerID returns the id of the user the token was issued for,
	// when known.
	ResourceOwnerID() string

	// Values returns a copy of every other field of the token response (for
	// example an echoed client_id).
	Values() map[string]interface{}

	// Grant returns the name of the grant which produced the token.
	Grant() string

	// Valid will ensure that the access_token is not empty or expired.
	Valid() bool

	// IsExpired returns true if the token has expired. Implementations should
	// support a time skew (perhaps DefaultExpirySkew) when checking expiration.
	IsExpired() bool

	// StaticTokenSource returns a TokenSource that always returns the same
	// token.
	StaticTokenSource() oauth2.TokenSource
}

// Tk satisfies the Token interface.
type Tk struct {
	accessToken     AccessToken
	refreshToken    RefreshToken
	idToken         IDToken
	tokenType       string
	expiry          time.Time
	scopes          []string
	resourceOwnerID string
	values          map[string]interface{}
	grant           string

	nowFunc    func() time.Time
	expirySkew time.Duration
}

// ensure that Tk implements the Token interface.
var _ Token = (*Tk)(nil)

// known token response fields, everything else goes to Tk.values.
var tokenFields = map[string]struct{}{
	"access_token":  {},
	"token_type":    {},
	"refresh_token": {},
	"expires_in":    {},
	"expires":       {},
	"id_token":      {},
	"scope":         {},
}

// NewToken builds a Token from a validated token response. The response must
// not be an error response (see CheckResponse). It fails with
// ErrMalformedResponse when the access_token is missing or a known field has
// the wrong shape.
//
// The resource owner id is read from the WithResourceOwnerIDKey field when
// provided, otherwise from the "sub" claim of the id_token (if any). An
// id_token which cannot be parsed leaves it empty.
//
// Supported options: WithNow, WithExpirySkew, WithResourceOwnerIDKey
func NewToken(data map[string]interface{}, g Grant, opt ...Option) (*Tk, error) {
	const op = "NewToken"
	if data == nil {
		return nil, fmt.Errorf("%s: token response is nil: %w", op, ErrNilParameter)
	}
	opts := getTokenOpts(opt...)
	if opts.withNowFunc == nil {
		opts.withNowFunc = time.Now
	}

	at, ok := data["access_token"].(string)
	if !ok || at == "" {
		return nil, fmt.Errorf("%s: access_token is missing: %w", op, ErrMalformedResponse)
	}
	t := &Tk{
		accessToken:  AccessToken(at),
		refreshToken: RefreshToken(stringValue(data["refresh_token"])),
		idToken:      IDToken(stringValue(data["id_token"])),
		tokenType:    stringValue(data["token_type"]),
		values:       map[string]interface{}{},
		nowFunc:      opts.withNowFunc,
		expirySkew:   opts.withExpirySkew,
	}
	if g != nil {
		t.grant = g.Name()
	}

	switch {
	case data["expires_in"] != nil:
		secs, ok := int64Value(data["expires_in"])
		if !ok {
			return nil, fmt.Errorf("%s: expires_in %v is not a number: %w", op, data["expires_in"], ErrMalformedResponse)
		}
		if secs > 0 {
			if secs > maxExpiresIn {
				secs = maxExpiresIn
			}
			t.expiry = opts.withNowFunc().Add(time.Duration(secs) * time.Second)
		}
	case data["expires"] != nil:
		ts, ok := int64Value(data["expires"])
		if !ok {
			return nil, fmt.Errorf("%s: expires %v is not a number: %w", op, data["expires"], ErrMalformedResponse)
		}
		if ts > 0 {
			t.expiry = time.Unix(ts, 0)
		}
	}

	if s := stringValue(data["scope"]); s != "" {
		t.scopes = strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	}

	switch {
	case opts.withResourceOwnerIDKey != "":
		if v, ok := int64Value(data[opts.withResourceOwnerIDKey]); ok {
			t.resourceOwnerID = fmt.Sprint(v)
		} else {
			t.resourceOwnerID = stringValue(data[opts.withResourceOwnerIDKey])
		}
	case t.idToken != "":
		// an id_token which isn't a JWT leaves the owner unknown
		var claims struct {
			Sub string `json:"sub"`
		}
		if err := t.idToken.Claims(&claims); err == nil {
			t.resourceOwnerID = claims.Sub
		}
	}

	for k, v := range data {
		if _, known := tokenFields[k]; !known {
			t.values[k] = deepCopy(v)
		}
	}
	return t, nil
}

// AccessToken implements the Token.AccessToken() interface function.
func (t *Tk) AccessToken() AccessToken { return t.accessToken }

// RefreshToken implements the Token.RefreshToken() interface function.
func (t *Tk) RefreshToken() RefreshToken { return t.refreshToken }

// IDToken implements the Token.IDToken() interface function.
func (t *Tk) IDToken() IDToken { return t.idToken }

// TokenType implements the Token.TokenType() interface function.
func (t *Tk) TokenType() string { return t.tokenType }

// Expiry implements the Token.Expiry() interface function.
func (t *Tk) Expiry() time.Time { return t.expiry }

// ResourceOwnerID implements the Token.ResourceOwnerID() interface function.
func (t *Tk) ResourceOwnerID() string { return t.resourceOwnerID }

// Grant implements the Token.Grant() interface function.
func (t *Tk) Grant() string { return t.grant }

// Scopes implements the Token.Scopes() interface function.
func (t *Tk) Scopes() []string {
	if t.scopes == nil {
		return nil
	}
	return append([]string(nil), t.scopes...)
}

// Values implements the Token.Values() interface function.
func (t *Tk) Values() map[string]interface{} {
	return deepCopy(t.values).(map[string]interface{})
}

// deepCopy copies the maps and slices of a decoded JSON value.
func deepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		cp := make(map[string]interface{}, len(t))
		for k, e := range t {
			cp[k] = deepCopy(e)
		}
		return cp
	case []interface{}:
		cp := make([]interface{}, len(t))
		for i, e := range t {
			cp[i] = deepCopy(e)
		}
		return cp
	default:
		return v
	}
}

// Valid will ensure that the access_token is not empty or expired.
func (t *Tk) Valid() bool {
	if t == nil {
		return false
	}
	if t.accessToken == "" {
		return false
	}
	return !t.IsExpired()
}

// IsExpired will return true if the token has expired.
func (t *Tk) IsExpired() bool {
	if t.expiry.IsZero() {
		return false
	}
	now := time.Now
	if t.nowFunc != nil {
		now = t.nowFunc
	}
	return t.expiry.Round(0).Before(now().Add(t.expirySkew))
}

// OAuth2Token returns the token as an *oauth2.Token. The id_token and Values
// are available via its Extra func.
func (t *Tk) OAuth2Token() *oauth2.Token {
	extra := t.Values()
	if t.idToken != "" {
		extra["id_token"] = string(t.idToken)
	}
	tk := &oauth2.Token{
		AccessToken:  string(t.accessToken),
		TokenType:    t.tokenType,
		RefreshToken: string(t.refreshToken),
		Expiry:       t.expiry,
	}
	return tk.WithExtra(extra)
}

// StaticTokenSource returns a TokenSource that always returns the same token.
// Because the provided token t is always returned, it's only appropriate for
// tokens that never expire or for callers which check Valid() first.
func (t *Tk) StaticTokenSource() oauth2.TokenSource {
	return oauth2.StaticTokenSource(t.OAuth2Token())
}

// tokenOptions is the set of available options for NewToken.
type tokenOptions struct {
	withNowFunc            func() time.Time
	withExpirySkew         time.Duration
	withResourceOwnerIDKey string
}

// tokenDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func tokenDefaults() tokenOptions {
	return tokenOptions{
		withExpirySkew: DefaultExpirySkew,
	}
}

// getTokenOpts gets the defaults and applies the opt overrides passed
// in.
func getTokenOpts(opt ...Option) tokenOptions {
	opts := tokenDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithResourceOwnerIDKey names the token response field holding the resource
// owner id.
//
// Valid for: Token
func WithResourceOwnerIDKey(key string) Option {
	return func(o interface{}) {
		if o, ok := o.(*tokenOptions); ok {
			o.withResourceOwnerIDKey = key
		}
	}
}
