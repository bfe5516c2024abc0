// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
instrument is a package that provides an oidc.Transport decorator which
records Prometheus metrics and OpenTelemetry spans for every request sent to
an identity provider.
*/
package instrument
