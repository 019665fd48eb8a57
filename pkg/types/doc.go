// SPDX-License-Identifier: MPL-2.0

// Package types defines value types shared between the updater's packages
// and its callers, such as the process exit codes.
package types
