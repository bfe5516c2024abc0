// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"net/http"

	"github.com/ozwillo/oauth2-client/oidc"
)

// SuccessResponseFunc writes the http response once the code has been
// exchanged. The state is the one returned by the provider and t is the
// exchanged token.
type SuccessResponseFunc func(state string, t oidc.Token, w http.ResponseWriter, req *http.Request)

// ErrorResponseFunc writes the http response when the callback fails. Exactly
// one of respErr (the provider redirected with an error) and e (the callback
// itself failed) is set.
type ErrorResponseFunc func(state string, respErr *AuthenErrorResponse, e error, w http.ResponseWriter, req *http.Request)

// AuthenErrorResponse is an authorization error returned in the redirect.
// See: https://www.rfc-editor.org/rfc/rfc6749#section-4.1.2.1
type AuthenErrorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
	URI         string `json:"error_uri,omitempty"`
}

// ProviderError converts the response into an *oidc.IdentityProviderError,
// which matches oidc.ErrIdentityProvider with errors.Is.
func (r *AuthenErrorResponse) ProviderError() *oidc.IdentityProviderError {
	if r == nil {
		return nil
	}
	resp := map[string]interface{}{"error": r.Error}
	if r.Description != "" {
		resp["error_description"] = r.Description
	}
	if r.URI != "" {
		resp["error_uri"] = r.URI
	}
	return &oidc.IdentityProviderError{
		Message:     r.Error,
		Description: r.Description,
		Response:    resp,
	}
}
