// SPDX-License-Identifier: MPL-2.0

package tui

import "github.com/charmbracelet/huh"

// ConfirmBuilder assembles a yes/no prompt:
//
//	ok, err := tui.NewConfirm(cfg).Title("Install SRA v3.1.0?").Labels("Install", "Skip").Run()
type ConfirmBuilder struct {
	cfg   Config
	title string
	desc  string
	yes   string
	no    string
}

// NewConfirm starts a prompt that preselects "Yes".
func NewConfirm(cfg Config) *ConfirmBuilder {
	return &ConfirmBuilder{cfg: cfg, yes: "Yes", no: "No"}
}

func (b *ConfirmBuilder) Title(title string) *ConfirmBuilder {
	b.title = title
	return b
}

// Description sets the text shown below the title.
func (b *ConfirmBuilder) Description(desc string) *ConfirmBuilder {
	b.desc = desc
	return b
}

// Labels replaces the "Yes" and "No" button texts. Empty values keep the
// current text.
func (b *ConfirmBuilder) Labels(yes, no string) *ConfirmBuilder {
	if yes != "" {
		b.yes = yes
	}
	if no != "" {
		b.no = no
	}
	return b
}

// Run shows the prompt. An aborted prompt returns ErrCancelled.
func (b *ConfirmBuilder) Run() (bool, error) {
	answer := true
	field := huh.NewConfirm().
		Title(b.title).
		Description(b.desc).
		Affirmative(b.yes).
		Negative(b.no).
		Value(&answer)

	if err := runForm(b.cfg, field); err != nil {
		return false, err
	}
	return answer, nil
}
