// SPDX-License-Identifier: MPL-2.0

// Package platform holds OS name constants and the Windows file naming rules
// applied to paths taken from remote manifests.
package platform
