// SPDX-License-Identifier: MPL-2.0

package tui

import "github.com/charmbracelet/huh"

// Choice is one entry of a Select prompt.
type Choice struct {
	Label string
	Value string
}

// Select asks for one of choices and returns its Value. The choice whose
// Value equals current starts highlighted.
func Select(cfg Config, title string, choices []Choice, current string) (string, error) {
	picked := current

	opts := make([]huh.Option[string], 0, len(choices))
	for _, c := range choices {
		opts = append(opts, huh.NewOption(c.Label, c.Value).Selected(c.Value == current))
	}

	field := huh.NewSelect[string]().Title(title).Options(opts...).Value(&picked)
	if err := runForm(cfg, field); err != nil {
		return "", err
	}
	return picked, nil
}
