// SPDX-License-Identifier: MPL-2.0

package platform

// Values of runtime.GOOS that the updater branches on.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)
