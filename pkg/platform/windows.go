// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"strings"
)

// WindowsReservedNames are device names that Windows refuses as file names,
// whatever extension follows them.
//
//nolint:gochecknoglobals // read-only lookup table
var WindowsReservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"COM5": true, "COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
	"LPT5": true, "LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// IsWindowsReservedName reports whether name, a single path element, names a
// Windows device. Everything from the first dot on is ignored, so "nul.tar.gz"
// is reserved too.
func IsWindowsReservedName(name string) bool {
	stem, _, _ := strings.Cut(name, ".")
	return WindowsReservedNames[strings.ToUpper(strings.TrimRight(stem, " "))]
}

// HasWindowsReservedElement reports whether any element of a slash-separated
// relative path is a reserved device name.
func HasWindowsReservedElement(rel string) bool {
	for elem := range strings.SplitSeq(rel, "/") {
		if IsWindowsReservedName(elem) {
			return true
		}
	}
	return false
}
