// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// IDToken is an oidc id_token.
type IDToken string

// RedactedIDToken is the redacted string or json for an oidc id_token.
const RedactedIDToken = "[REDACTED: id_token]"

// String will redact the token.
func (t IDToken) String() string {
	return RedactedIDToken
}

// MarshalJSON will redact the token.
func (t IDToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedIDToken)
}

// Claims retrieves the IDToken claims. The signature is not verified.
func (t IDToken) Claims(claims interface{}) error {
	const op = "IDToken.Claims"
	if len(t) == 0 {
		return fmt.Errorf("%s: id_token is empty: %w", op, ErrInvalidParameter)
	}
	if claims == nil {
		return fmt.Errorf("%s: claims interface is nil: %w", op, ErrNilParameter)
	}
	if err := UnmarshalClaims(string(t), claims); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// parseAlgs are the JWS algorithms accepted when reading claims. Since the
// signature isn't verified the list only guards against unknown headers.
var parseAlgs = []jose.SignatureAlgorithm{
	jose.EdDSA,
	jose.HS256, jose.HS384, jose.HS512,
	jose.RS256, jose.RS384, jose.RS512,
	jose.ES256, jose.ES384, jose.ES512,
	jose.PS256, jose.PS384, jose.PS512,
}

// UnmarshalClaims will retrieve the claims from the provided raw JWT token
// without verifying its signature.
func UnmarshalClaims(rawToken string, claims interface{}) error {
	const op = "UnmarshalClaims"
	if parts := strings.Split(rawToken, "."); len(parts) != 3 {
		return fmt.Errorf("%s: malformed jwt, expected 3 parts got %d: %w", op, len(parts), ErrInvalidParameter)
	}
	tok, err := jwt.ParseSigned(rawToken, parseAlgs)
	if err != nil {
		return fmt.Errorf("%s: malformed jwt: %w: %w", op, ErrInvalidParameter, err)
	}
	if err := tok.UnsafeClaimsWithoutVerification(claims); err != nil {
		return fmt.Errorf("%s: unable to read claims: %w: %w", op, ErrInvalidParameter, err)
	}
	return nil
}
