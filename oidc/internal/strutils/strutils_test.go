// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package strutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrListContains(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	scopes := []string{"openid", "email", "offline_access"}
	assert.False(StrListContains(scopes, "profile"))
	assert.False(StrListContains(scopes, "OpenID"))
	assert.True(StrListContains(scopes, "offline_access"))
	assert.False(StrListContains(nil, ""))
}

func TestRemoveDuplicatesStable(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name            string
		input           []string
		caseInsensitive bool
		want            []string
	}{
		{name: "empty", input: []string{}, want: []string{}},
		{name: "empty-insensitive", input: []string{}, caseInsensitive: true, want: []string{}},
		{name: "scopes", input: []string{"openid", "email", "openid"}, want: []string{"openid", "email"}},
		{name: "acr-case-kept", input: []string{"LoA2", "loa2"}, want: []string{"LoA2", "loa2"}},
		{name: "locales-insensitive", input: []string{"fr-FR", "en", "fr-fr"}, caseInsensitive: true, want: []string{"fr-FR", "en"}},
		{name: "blank-dropped", input: []string{" ", "phone", "", "address", "phone"}, want: []string{"phone", "address"}},
		{name: "trimmed-compare", input: []string{"email ", " email", "profile"}, want: []string{"email ", "profile"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, RemoveDuplicatesStable(tt.input, tt.caseInsensitive))
		})
	}
}
