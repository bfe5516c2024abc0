// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ozwillo

import (
	"context"
	"fmt"
	"strings"

	"github.com/ozwillo/oauth2-client/oidc"
)

// Name of the provider.
const Name = "ozwillo"

// DefaultBaseURL is the Ozwillo kernel the descriptor points to unless
// WithBaseURL is used.
const DefaultBaseURL = "https://accounts.ozwillo-preprod.eu"

// Kernel endpoint paths.
const (
	AuthPath            = "/a/auth"
	TokenPath           = "/a/token"
	UserInfoPath        = "/a/userinfo"
	PendingInstancePath = "/apps/pending-instance/" + oidc.InstanceIDPlaceholder
)

// Endpoints of the default kernel.
const (
	AuthURL            = DefaultBaseURL + AuthPath
	TokenURL           = DefaultBaseURL + TokenPath
	UserInfoURL        = DefaultBaseURL + UserInfoPath
	PendingInstanceURL = DefaultBaseURL + PendingInstancePath
)

// DefaultScopes returns the scopes always requested from Ozwillo. openid is
// first.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile", "address", "phone", "offline_access"}
}

// Descriptor returns the Ozwillo provider descriptor: OIDC, response_mode
// query, space separated scopes, S256 PKCE and form encoded token requests.
//
// Supported options: WithBaseURL
func Descriptor(opt ...oidc.Option) *oidc.Descriptor {
	opts := getDescriptorOpts(opt...)
	base := strings.TrimSuffix(opts.withBaseURL, "/")
	return &oidc.Descriptor{
		Name:                   Name,
		AuthURL:                base + AuthPath,
		TokenURL:               base + TokenPath,
		UserInfoURL:            base + UserInfoPath,
		DeprovisionURL:         base + PendingInstancePath,
		DefaultScopes:          DefaultScopes(),
		ScopeSeparator:         oidc.DefaultScopeSeparator,
		ResponseMode:           "query",
		DefaultChallengeMethod: oidc.S256,
		OIDC:                   true,
		TokenRequestEncoding:   oidc.FormEncoding,
	}
}

// NewClient creates an oidc.Client for Ozwillo. Options are passed to both
// Descriptor and oidc.NewClient.
//
// Supported options: WithBaseURL, oidc.WithTransport, oidc.WithLogger,
// oidc.WithNow
func NewClient(c *oidc.Config, opt ...oidc.Option) (*oidc.Client, error) {
	const op = "ozwillo.NewClient"
	client, err := oidc.NewClient(Descriptor(opt...), c, opt...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return client, nil
}

// DismissInstance tells the kernel that provisioning instanceID failed, so
// the pending instance can be dropped. See
// https://doc.ozwillo.com/#s3-3bis-provider-dismiss
//
// An empty instanceID is a no-op which returns false. Otherwise it returns
// true once the kernel accepted the request.
//
// Supported options: oidc.WithClientID, oidc.WithClientSecret
func DismissInstance(ctx context.Context, c *oidc.Client, instanceID string, opt ...oidc.Option) (bool, error) {
	const op = "ozwillo.DismissInstance"
	if c == nil {
		return false, fmt.Errorf("%s: client is nil: %w", op, oidc.ErrNilParameter)
	}
	ok, err := c.Deprovision(ctx, instanceID, opt...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return ok, nil
}

// descriptorOptions is the set of available options for Descriptor.
type descriptorOptions struct {
	withBaseURL string
}

// descriptorDefaults is a handy way to get the defaults at runtime and
// during unit tests.
func descriptorDefaults() descriptorOptions {
	return descriptorOptions{
		withBaseURL: DefaultBaseURL,
	}
}

// getDescriptorOpts gets the defaults and applies the opt overrides passed
// in.
func getDescriptorOpts(opt ...oidc.Option) descriptorOptions {
	opts := descriptorDefaults()
	oidc.ApplyOpts(&opts, opt...)
	return opts
}

// WithBaseURL points the descriptor to another Ozwillo kernel, for instance
// https://accounts.ozwillo.com. An empty url is ignored.
//
// Valid for: Descriptor and NewClient
func WithBaseURL(url string) oidc.Option {
	return func(o interface{}) {
		if o, ok := o.(*descriptorOptions); ok && url != "" {
			o.withBaseURL = url
		}
	}
}
