// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/url"
	"strings"
)

// ComposeAuthURL returns baseURL with the parameters of p added to its
// query. Scopes are joined with separator (DefaultScopeSeparator when
// empty). Omitted parameters don't appear at all. Any query already present
// in baseURL is kept unless p overrides the same key. The query is encoded
// with its keys sorted so the same input always gives the same URL.
func ComposeAuthURL(baseURL string, p *AuthParams, separator string) (string, error) {
	const op = "ComposeAuthURL"
	if p == nil {
		return "", fmt.Errorf("%s: auth params are nil: %w", op, ErrNilParameter)
	}
	if err := validateAbsURL(baseURL); err != nil {
		return "", fmt.Errorf("%s: base URL %q: %w", op, baseURL, err)
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("%s: base URL %q: %w: %w", op, baseURL, ErrInvalidParameter, err)
	}
	if separator == "" {
		separator = DefaultScopeSeparator
	}
	q := u.Query()
	for k, v := range p.Params {
		if v == "" {
			continue
		}
		q.Set(k, v)
	}
	if len(p.Scopes) > 0 {
		q.Set(ParamScope, strings.Join(p.Scopes, separator))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
