// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// FormatOptions configures Markdown rendering.
type FormatOptions struct {
	// Content is the Markdown source.
	Content string
	// GlamourTheme is a glamour standard style name; empty picks one from the
	// terminal background.
	GlamourTheme string
	// Width is the word wrap width (0 for no wrap).
	Width int
}

// Markdown renders Markdown for the terminal with glamour.
func Markdown(opts FormatOptions) (string, error) {
	rendererOpts := []glamour.TermRendererOption{glamour.WithEmoji()}
	if opts.GlamourTheme == "" {
		rendererOpts = append(rendererOpts, glamour.WithAutoStyle())
	} else {
		rendererOpts = append(rendererOpts, glamour.WithStandardStyle(opts.GlamourTheme))
	}
	if opts.Width > 0 {
		rendererOpts = append(rendererOpts, glamour.WithWordWrap(opts.Width))
	}

	renderer, err := glamour.NewTermRenderer(rendererOpts...)
	if err != nil {
		return "", err
	}
	return renderer.Render(opts.Content)
}

// ReleaseNotes renders release notes under a version heading. Plain text is
// returned unchanged when styled is false.
func ReleaseNotes(version, notes string, styled bool, width int) (string, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return "", nil
	}
	if !styled {
		return "Release notes for " + version + ":\n" + notes + "\n", nil
	}
	return Markdown(FormatOptions{
		Content: "## " + version + "\n\n" + notes,
		Width:   width,
	})
}
