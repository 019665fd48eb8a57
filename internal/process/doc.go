// SPDX-License-Identifier: MPL-2.0

// Package process finds, stops and launches the processes around an update:
// the running application that must release its files, and the detached
// extraction tool that replaces them after the updater exits.
//
// Process enumeration and termination go through gopsutil so the same code
// runs on every platform; detached launching is platform specific
// (launch_windows.go, launch_other.go).
package process
