// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
callback provides http.HandlerFunc callbacks for the redirect leg of an
authorization code flow (with optional PKCE). The pending oidc.Request of each
attempt is looked up by state through a RequestReader, such as a RequestCache.
*/
package callback
