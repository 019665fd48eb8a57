// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/starrailassistant/sra-updater/internal/settings"
	"github.com/starrailassistant/sra-updater/internal/tui"
	"github.com/starrailassistant/sra-updater/internal/versionstore"
)

// Output formats of the settings command.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatTOML  = "toml"
)

//nolint:gochecknoglobals // Fixed list of update channels.
var channels = []tui.Choice{
	{Label: "stable (recommended)", Value: "stable"},
	{Label: "beta (early builds, may be unstable)", Value: "beta"},
}

type (
	// cdkStore is the part of settings.Store the settings command uses.
	cdkStore interface {
		CDK() (string, error)
		SetCDK(cdk string) error
		CanPersist() bool
		Path() string
	}

	// recordStore is the part of versionstore.Store the settings command uses.
	recordStore interface {
		Load() (versionstore.Record, error)
		UpdateChannel(channel string) error
	}

	// settingsView is the rendered form of the current settings. The CDK is
	// always masked.
	settingsView struct {
		AppDir          string   `json:"app_dir" toml:"app_dir"`
		Version         string   `json:"version" toml:"version"`
		ResourceVersion string   `json:"resource_version" toml:"resource_version"`
		Channel         string   `json:"channel" toml:"channel"`
		Source          string   `json:"source" toml:"source"`
		CDK             string   `json:"cdk" toml:"cdk"`
		CDKPersisted    bool     `json:"cdk_persisted" toml:"cdk_persisted"`
		Proxys          []string `json:"proxys" toml:"proxys"`
	}

	settingsParams struct {
		stdout   io.Writer
		appDir   string
		cdks     cdkStore
		records  recordStore
		showOnly bool
		format   string
		// prompt collects new values; nil means show only.
		prompt settingsPrompt
	}

	// settingsPrompt asks for a new CDK and channel. An unchanged value is
	// returned as-is.
	settingsPrompt interface {
		CDK(current string) (string, error)
		Channel(current string) (string, error)
	}

	huhSettingsPrompt struct {
		cfg tui.Config
	}
)

// newSettingsCommand creates the `sra-updater settings` command.
func newSettingsCommand(app *App) *cobra.Command {
	var (
		showOnly bool
		format   string
	)

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the Mirror酱 CDK and update channel",
		Long: `Show or change the Mirror酱 CDK and update channel.

The CDK is stored encrypted in data/globals.json next to SRA and is never
printed in full. The update channel is stored in version.json.`,
		Example: `  # Change the CDK and channel interactively
  sra-updater settings

  # Print the current settings as JSON
  sra-updater settings --show-only --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stdout := cmd.OutOrStdout()
			p := settingsParams{
				stdout:   stdout,
				appDir:   app.cfg.AppDir,
				cdks:     app.settingsStore(app.cfg),
				records:  app.versionStore(app.cfg),
				showOnly: showOnly,
				format:   format,
			}
			if !showOnly && tui.Interactive(stdout) {
				p.prompt = huhSettingsPrompt{cfg: tui.DefaultConfig(app.theme())}
			}

			if err := runSettings(p); err != nil {
				return failCommand(cmd.ErrOrStderr(), app.logger, "manage settings", err, app.flags.verbose)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showOnly, "show-only", "s", false, "print the settings without prompting")
	cmd.Flags().StringVar(&format, "format", formatTable, "output format: table, json or toml")

	return cmd
}

// runSettings prints the current settings and, when a prompt is available,
// asks for new values.
func runSettings(p settingsParams) error {
	switch p.format {
	case formatTable, formatJSON, formatTOML:
	default:
		return fmt.Errorf("unknown format %q (want table, json or toml)", p.format)
	}

	view, err := loadSettingsView(p)
	if err != nil {
		return err
	}
	if err := renderSettings(p.stdout, view, p.format); err != nil {
		return err
	}
	if p.showOnly || p.prompt == nil {
		return nil
	}

	current, err := p.cdks.CDK()
	if err != nil && !errors.Is(err, settings.ErrUndecryptable) {
		return err
	}
	cdk, err := p.prompt.CDK(current)
	if err != nil {
		return err
	}
	if cdk = strings.TrimSpace(cdk); cdk != current {
		if err := p.cdks.SetCDK(cdk); err != nil {
			return fmt.Errorf("saving CDK: %w", err)
		}
		if !p.cdks.CanPersist() {
			_, _ = fmt.Fprintln(p.stdout, WarningStyle.Render(p.cdks.Path()+" does not exist; the CDK is kept for this run only."))
		}
		_, _ = fmt.Fprintln(p.stdout, SuccessStyle.Render("CDK updated: ")+settings.MaskCDK(cdk))
	}

	channel, err := p.prompt.Channel(view.Channel)
	if err != nil {
		return err
	}
	if channel != view.Channel {
		if err := p.records.UpdateChannel(channel); err != nil {
			return fmt.Errorf("saving channel: %w", err)
		}
		_, _ = fmt.Fprintln(p.stdout, SuccessStyle.Render("Update channel: ")+channel)
	}
	return nil
}

func loadSettingsView(p settingsParams) (settingsView, error) {
	rec, err := p.records.Load()
	if err != nil {
		return settingsView{}, err
	}

	cdk, err := p.cdks.CDK()
	switch {
	case errors.Is(err, settings.ErrUndecryptable):
		cdk = "(unreadable, enter it again)"
	case err != nil:
		return settingsView{}, err
	default:
		cdk = settings.MaskCDK(cdk)
	}

	source := "GitHub + mirrors"
	if cdk != "" {
		source = "Mirror酱"
	}

	return settingsView{
		AppDir:          p.appDir,
		Version:         rec.Version,
		ResourceVersion: rec.ResourceVersion,
		Channel:         rec.Channel,
		Source:          source,
		CDK:             cdk,
		CDKPersisted:    p.cdks.CanPersist(),
		Proxys:          rec.Proxys,
	}, nil
}

func renderSettings(w io.Writer, view settingsView, format string) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(view)
	case formatTOML:
		return toml.NewEncoder(w).Encode(view)
	}

	cdk := view.CDK
	if cdk == "" {
		cdk = "(not set)"
	}
	rows := [][2]string{
		{"App directory", view.AppDir},
		{"SRA version", view.Version},
		{"Resource version", view.ResourceVersion},
		{"Update channel", view.Channel},
		{"Download source", view.Source},
		{"Mirror酱 CDK", cdk},
		{"Mirrors", strings.Join(displayProxys(view.Proxys), ", ")},
	}
	_, _ = fmt.Fprintln(w, TitleStyle.Render("SRA settings"))
	for _, row := range rows {
		_, _ = fmt.Fprintf(w, "  %s %s\n", SubtitleStyle.Width(18).Render(row[0]), row[1])
	}
	return nil
}

// displayProxys shows the empty "direct" entry by name.
func displayProxys(proxys []string) []string {
	out := make([]string, len(proxys))
	for i, p := range proxys {
		if p == "" {
			p = "(direct)"
		}
		out[i] = p
	}
	return out
}

func (h huhSettingsPrompt) CDK(current string) (string, error) {
	desc := "Leave empty to download through GitHub mirrors."
	if current != "" {
		desc = "Current: " + settings.MaskCDK(current) + ". Clear the field to remove it."
	}
	return tui.Input(h.cfg, tui.InputOptions{
		Title:       "Mirror酱 CDK",
		Description: desc,
		Value:       current,
		Password:    true,
		Validate:    validateCDK,
	})
}

func (h huhSettingsPrompt) Channel(current string) (string, error) {
	if current == "" {
		current = versionstore.DefaultChannel
	}
	return tui.Select(h.cfg, "Update channel", channels, current)
}

// validateCDK rejects whitespace inside a CDK, which usually means two
// values were pasted together.
func validateCDK(cdk string) error {
	if strings.ContainsAny(strings.TrimSpace(cdk), " \t\r\n") {
		return errors.New("the CDK must not contain spaces")
	}
	return nil
}
