// SPDX-License-Identifier: MPL-2.0

// Package settings reads and writes the Mirror酱 CDK that the main SRA
// application keeps in data/globals.json.
//
// The token is stored encrypted. On Windows the value is a base64 DPAPI blob
// bound to the current user; other platforms use plain base64 so the file stays
// portable for development. When globals.json does not exist the token is held
// in memory for the lifetime of the process.
package settings
