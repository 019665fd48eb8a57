// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// Themes accepted by ui.theme in the config file.
const (
	ThemeDefault    Theme = "default"
	ThemeCharm      Theme = "charm"
	ThemeDracula    Theme = "dracula"
	ThemeCatppuccin Theme = "catppuccin"
	ThemeBase16     Theme = "base16"
)

//nolint:gochecknoglobals // read-only lookup table
var huhThemes = map[Theme]func() *huh.Theme{
	ThemeCharm:      huh.ThemeCharm,
	ThemeDracula:    huh.ThemeDracula,
	ThemeCatppuccin: huh.ThemeCatppuccin,
	ThemeBase16:     huh.ThemeBase16,
}

// ErrCancelled is returned when the user aborts a prompt.
var ErrCancelled = errors.New("cancelled by user")

//nolint:gochecknoglobals // Test seam for terminal detection.
var isTerminal = func(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

type (
	// Theme names a huh color theme.
	Theme string

	// Config is shared by every prompt.
	Config struct {
		Theme Theme
		// Accessible switches huh to plain line-based prompts for screen
		// readers and piped input.
		Accessible bool
		// Output receives the rendered prompt. Nil means stdout.
		Output io.Writer
	}
)

// DefaultConfig returns the configuration for the given theme. Accessible
// mode is enabled when stdin is not a terminal or ACCESSIBLE is set; prompts
// then go to stderr so redirected stdout stays clean.
func DefaultConfig(theme Theme) Config {
	accessible := !IsTerminal(os.Stdin) || os.Getenv("ACCESSIBLE") != ""

	var output io.Writer = os.Stdout
	if accessible {
		output = os.Stderr
	}

	return Config{
		Theme:      theme,
		Accessible: accessible,
		Output:     output,
	}
}

// IsTerminal reports whether f is a file descriptor attached to a terminal.
// Writers without a file descriptor are never terminals.
func IsTerminal(f any) bool {
	w, ok := f.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isTerminal(w.Fd())
}

// Interactive reports whether prompts can be shown: both stdin and w must be
// terminals.
func Interactive(w io.Writer) bool {
	return IsTerminal(os.Stdin) && IsTerminal(w)
}

// getHuhTheme maps t to a huh theme; unknown names get the base theme.
func getHuhTheme(t Theme) *huh.Theme {
	if build, ok := huhThemes[t]; ok {
		return build()
	}
	return huh.ThemeBase()
}

// runForm runs a single-field form with the common configuration.
func runForm(cfg Config, field huh.Field) error {
	form := huh.NewForm(huh.NewGroup(field)).
		WithTheme(getHuhTheme(cfg.Theme)).
		WithAccessible(cfg.Accessible)
	if cfg.Output != nil {
		form = form.WithOutput(cfg.Output)
	}

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrCancelled
		}
		return err
	}
	return nil
}
