// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
oidc is a package for talking to OAuth2 and OpenID Connect providers using the
authorization code flow.

Primary types provided by the package

* Descriptor: describes a provider. It holds the authorization, token,
userinfo and deprovisioning endpoints, the default scopes and how the
provider wants its requests encoded. Descriptors are either written by hand
(see the providers packages) or discovered with DiscoverDescriptor.

* Config: the relying party (client id/secret, redirect URL, additional
scopes requested, provider CA and request timeout)

* Client: an immutable pairing of a Descriptor and a Config. It builds auth
URLs, exchanges grants for tokens, fetches user info and deprovisions
instances. Every per-call value (state, nonce, PKCE verifier, client
identity) is passed as an option, so one Client serves concurrent flows.

* Request: represents one authentication attempt for a user. It carries the
state, nonce, PKCE verifier and expiration needed to validate the callback.

* Grant: an OAuth2 flow variant (authorization code, refresh token, client
credentials and resource owner password).

* Token: an OAuth2 access_token with its optional refresh_token, id_token and
expiry. Tokens are redacted when logged or marshaled.

* Transport: sends requests to the provider. HTTPTransport is the default and
the instrument package decorates any Transport with metrics and traces.

* IdentityProviderError: an error reported by the provider, with its message,
code, description and the decoded response.

The oidc.callback package

The callback package includes the ability to create a http.HandlerFunc which
can be used for the 3rd leg of the flow where the authorization code is
exchanged for tokens.

Examples

* Ozwillo authentication CLI: oidc/examples/cli
*/
package oidc
