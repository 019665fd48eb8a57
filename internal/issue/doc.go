// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable error handling with user-friendly messages.
//
// ActionableError carries the failed operation, the file or URL involved and
// remediation hints. The catalog in issue.go holds Markdown guides for the
// failure classes of an update run (corrupt version record, exhausted mirrors,
// checksum mismatch, missing extraction tool, rejected CDK) rendered with glamour.
package issue
