// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// oauth2client provides a collection of related packages which implement the
// client side of OAuth2 and OpenID Connect authorization code flows.
//
//   - oidc: the provider agnostic engine (descriptors, auth URLs, grants,
//     tokens and errors)
//   - oidc/callback: http handlers for the redirect leg of the flow
//   - providers/ozwillo: the Ozwillo kernel adapter
//   - instrument: prometheus metrics and opentelemetry traces for provider
//     requests
package oauth2client
