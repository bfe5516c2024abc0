// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrConfiguration              = errors.New("configuration error")
	ErrProtocol                   = errors.New("protocol error")
	ErrIdentityProvider           = errors.New("identity provider error")
	ErrTransport                  = errors.New("transport error")
	ErrMalformedResponse          = errors.New("malformed response")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrIDGeneratorFailed          = errors.New("id generation failed")
	ErrExpiredRequest             = errors.New("request is expired")
	ErrNotFound                   = errors.New("not found")
	ErrInvalidNonce               = errors.New("invalid nonce")
	ErrUnsupportedChallengeMethod = errors.New("unsupported PKCE challenge method")
	ErrUnsupportedGrant           = errors.New("unsupported grant")
	ErrUserInfoFailed             = errors.New("user info failed")
	ErrResponseStateInvalid       = errors.New("invalid response state")
)

// IdentityProviderError is returned when a provider reports an application
// level error (invalid_grant, invalid_client, etc). Use errors.As to get at
// the raw response, and errors.Is(err, ErrIdentityProvider) to classify it.
type IdentityProviderError struct {
	// Message is the provider's error (the flat "error" string, or the
	// "message" of a structured error object).
	Message string

	// Code is the provider's numeric error code, zero when the provider
	// didn't send one.
	Code int

	// Description is the optional "error_description".
	Description string

	// StatusCode is the HTTP status of the response, when known.
	StatusCode int

	// Response is the full decoded response body.
	Response map[string]interface{}
}

func (e *IdentityProviderError) Error() string {
	msg := e.Message
	if e.Description != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Description)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s: %d: %s", ErrIdentityProvider, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", ErrIdentityProvider, msg)
}

// Is reports whether target is ErrIdentityProvider.
func (e *IdentityProviderError) Is(target error) bool {
	return target == ErrIdentityProvider
}
