// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ozwillo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ozwillo/oauth2-client/oidc"
)

// Address is the structured address claim.
type Address struct {
	Formatted     string `json:"formatted,omitempty"`
	StreetAddress string `json:"street_address,omitempty"`
	Locality      string `json:"locality,omitempty"`
	Region        string `json:"region,omitempty"`
	PostalCode    string `json:"postal_code,omitempty"`
	Country       string `json:"country,omitempty"`
}

// User is an Ozwillo resource owner, as described by the userinfo endpoint.
type User struct {
	Subject             string   `json:"sub"`
	Name                string   `json:"name,omitempty"`
	GivenName           string   `json:"given_name,omitempty"`
	FamilyName          string   `json:"family_name,omitempty"`
	MiddleName          string   `json:"middle_name,omitempty"`
	Nickname            string   `json:"nickname,omitempty"`
	Gender              string   `json:"gender,omitempty"`
	Birthdate           string   `json:"birthdate,omitempty"`
	Email               string   `json:"email,omitempty"`
	EmailVerified       bool     `json:"email_verified,omitempty"`
	PhoneNumber         string   `json:"phone_number,omitempty"`
	PhoneNumberVerified bool     `json:"phone_number_verified,omitempty"`
	Address             *Address `json:"address,omitempty"`
	Locale              string   `json:"locale,omitempty"`
	Zoneinfo            string   `json:"zoneinfo,omitempty"`
	UpdatedAt           int64    `json:"updated_at,omitempty"`

	raw map[string]interface{}
}

// NewUser builds a User from userinfo claims. The sub claim is required.
func NewUser(claims map[string]interface{}) (*User, error) {
	const op = "ozwillo.NewUser"
	if claims == nil {
		return nil, fmt.Errorf("%s: claims are nil: %w", op, oidc.ErrNilParameter)
	}
	b, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to encode claims: %w: %w", op, oidc.ErrInvalidParameter, err)
	}
	u := &User{}
	if err := json.Unmarshal(b, u); err != nil {
		return nil, fmt.Errorf("%s: unable to decode claims: %w: %w", op, oidc.ErrMalformedResponse, err)
	}
	if u.Subject == "" {
		return nil, fmt.Errorf("%s: missing sub claim: %w", op, oidc.ErrMalformedResponse)
	}
	return u, nil
}

// UnmarshalJSON keeps every claim, known or not, for ToMap.
func (u *User) UnmarshalJSON(b []byte) error {
	type user User
	var known user
	if err := json.Unmarshal(b, &known); err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*u = User(known)
	u.raw = raw
	return nil
}

// ID returns the resource owner's identifier, the sub claim.
func (u *User) ID() string { return u.Subject }

// ToMap returns a copy of every claim the user was built from.
func (u *User) ToMap() map[string]interface{} {
	m := make(map[string]interface{}, len(u.raw))
	for k, v := range u.raw {
		m[k] = v
	}
	return m
}

// FetchUser gets the resource owner of t from the userinfo endpoint.
func FetchUser(ctx context.Context, c *oidc.Client, t oidc.Token) (*User, error) {
	const op = "ozwillo.FetchUser"
	if c == nil {
		return nil, fmt.Errorf("%s: client is nil: %w", op, oidc.ErrNilParameter)
	}
	var u User
	if err := c.UserInfo(ctx, t, &u); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if u.Subject == "" {
		return nil, fmt.Errorf("%s: userinfo has no sub claim: %w", op, oidc.ErrMalformedResponse)
	}
	return &u, nil
}
