// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

/*
ozwillo is a package that provides the Ozwillo identity provider: its
descriptor, its resource owner and the pending instance housekeeping call
used when provisioning an application instance fails.
*/
package ozwillo
