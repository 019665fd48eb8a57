// SPDX-License-Identifier: MPL-2.0

package tui

import "github.com/charmbracelet/huh"

// InputOptions describes a single-line text prompt.
type InputOptions struct {
	Title       string
	Description string
	// Value prefills the field and is returned unchanged on plain Enter.
	Value string
	// Password masks what is typed; used for the Mirror酱 CDK.
	Password bool
	Validate func(string) error
}

// Input shows the prompt and returns the text entered.
func Input(cfg Config, opts InputOptions) (string, error) {
	text := opts.Value

	field := huh.NewInput().Title(opts.Title).Description(opts.Description).Value(&text)
	if opts.Password {
		field = field.EchoMode(huh.EchoModePassword)
	}
	if opts.Validate != nil {
		field = field.Validate(opts.Validate)
	}

	if err := runForm(cfg, field); err != nil {
		return "", err
	}
	return text, nil
}
