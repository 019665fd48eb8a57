// SPDX-License-Identifier: MPL-2.0

// Package selfupdate implements the SRA update-acquisition pipeline.
//
// The package is organized into these concerns:
//   - client.go: HTTP access to the version-check API, hash API, hash manifest and announcement
//   - resolver.go: update decision and ordered download candidates (proxy and licensed fallback)
//   - download.go: streaming download to a temp file with progress callbacks
//   - checksum.go: SHA-256 verification against a trusted hash source
//   - pipeline.go, state.go: the orchestrating state machine with mirror fallback
//   - integrity.go: manifest-based file integrity check and repair
package selfupdate
