// SPDX-License-Identifier: MPL-2.0

package cmd

import "github.com/charmbracelet/lipgloss"

// Palette. Each color has a light and a dark terminal variant.
//
//nolint:gochecknoglobals // Shared lipgloss styles.
var (
	colorAccent  = lipgloss.AdaptiveColor{Light: "#5B21B6", Dark: "#A78BFA"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#4B5563", Dark: "#9CA3AF"}
	colorGood    = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}
	colorBad     = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	colorCaution = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	colorLink    = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}

	// TitleStyle renders headings and version numbers.
	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	// SubtitleStyle renders labels, hints and other secondary text.
	SubtitleStyle = lipgloss.NewStyle().Foreground(colorMuted)
	SuccessStyle  = lipgloss.NewStyle().Foreground(colorGood)
	ErrorStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorBad)
	// WarningStyle renders warnings and damaged file entries.
	WarningStyle = lipgloss.NewStyle().Foreground(colorCaution)
	// CmdStyle renders command lines and paths the user may copy.
	CmdStyle = lipgloss.NewStyle().Foreground(colorLink)
)
