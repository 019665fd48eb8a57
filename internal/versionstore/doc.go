// SPDX-License-Identifier: MPL-2.0

// Package versionstore persists the local version record (version.json) that
// sits in the SRA application directory.
//
// The document is shared with the main application, so every write keeps the
// top-level keys this package does not model. Writes go through a temp file
// and a rename; a crash mid-write leaves the previous document in place.
package versionstore
