// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package callback

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ozwillo/oauth2-client/oidc"
)

// AuthCode creates an authorization code callback handler. It uses a
// RequestReader to find the oidc.Request which started the flow, using the
// response's "state" parameter as the key for the lookup, then exchanges the
// code with c.
//
// When the provider returns an id_token, its nonce must match the request's
// nonce.
//
// The SuccessResponseFunc is used to create a response when callback is
// successful. The ErrorResponseFunc is to create a response when the callback
// fails.
func AuthCode(ctx context.Context, c *oidc.Client, rr RequestReader, sFn SuccessResponseFunc, eFn ErrorResponseFunc) (http.HandlerFunc, error) {
	const op = "callback.AuthCode"
	switch {
	case c == nil:
		return nil, fmt.Errorf("%s: client is nil: %w", op, oidc.ErrInvalidParameter)
	case rr == nil:
		return nil, fmt.Errorf("%s: request reader is nil: %w", op, oidc.ErrInvalidParameter)
	case sFn == nil:
		return nil, fmt.Errorf("%s: success response func is nil: %w", op, oidc.ErrInvalidParameter)
	case eFn == nil:
		return nil, fmt.Errorf("%s: error response func is nil: %w", op, oidc.ErrInvalidParameter)
	}
	return func(w http.ResponseWriter, req *http.Request) {
		// get parameters from either the body or query parameters.
		// FormValue prioritizes body values, if found
		reqState := req.FormValue("state")

		if err := req.FormValue("error"); err != "" {
			reqError := &AuthenErrorResponse{
				Error:       err,
				Description: req.FormValue("error_description"),
				URI:         req.FormValue("error_uri"),
			}
			eFn(reqState, reqError, nil, w, req)
			return
		}

		oidcRequest, err := rr.Read(ctx, reqState)
		if err != nil {
			eFn(reqState, nil, fmt.Errorf("%s: unable to read auth code request: %w", op, err), w, req)
			return
		}
		if oidcRequest == nil {
			// could have expired or it could be invalid... no way to known for sure
			eFn(reqState, nil, fmt.Errorf("%s: auth code request not found: %w", op, oidc.ErrNotFound), w, req)
			return
		}
		if oidcRequest.IsExpired() {
			eFn(reqState, nil, fmt.Errorf("%s: authentication request is expired: %w", op, oidc.ErrExpiredRequest), w, req)
			return
		}
		if reqState != oidcRequest.State() {
			// the reader didn't return the correct request for the key given
			eFn(reqState, nil, fmt.Errorf("%s: authen state and response state are not equal: %w", op, oidc.ErrResponseStateInvalid), w, req)
			return
		}

		reqCode := req.FormValue("code")
		if reqCode == "" {
			eFn(reqState, nil, fmt.Errorf("%s: response has no code: %w", op, oidc.ErrInvalidParameter), w, req)
			return
		}

		opts := []oidc.Option{oidc.WithRedirectURL(oidcRequest.RedirectURL())}
		if v := oidcRequest.PKCEVerifier(); v != nil {
			opts = append(opts, oidc.WithPKCE(v))
		}
		responseToken, err := c.ExchangeCode(ctx, reqCode, opts...)
		if err != nil {
			eFn(reqState, nil, fmt.Errorf("%s: unable to exchange authorization code: %w", op, err), w, req)
			return
		}
		if err := verifyNonce(responseToken, oidcRequest.Nonce()); err != nil {
			eFn(reqState, nil, fmt.Errorf("%s: %w", op, err), w, req)
			return
		}
		sFn(reqState, responseToken, w, req)
	}, nil
}

// verifyNonce checks the id_token's nonce claim, when there's an id_token.
func verifyNonce(t oidc.Token, nonce string) error {
	const op = "verifyNonce"
	if t.IDToken() == "" {
		return nil
	}
	var claims struct {
		Nonce string `json:"nonce"`
	}
	if err := t.IDToken().Claims(&claims); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if claims.Nonce != nonce {
		return fmt.Errorf("%s: id_token nonce doesn't match the request: %w", op, oidc.ErrInvalidNonce)
	}
	return nil
}
