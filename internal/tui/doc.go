// SPDX-License-Identifier: MPL-2.0

// Package tui provides the terminal components of the updater: huh prompts
// (confirm, input, choose), glamour-rendered release notes and a Bubble Tea
// download progress display with a plain-text fallback for non-terminals.
package tui
