// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/starrailassistant/sra-updater/internal/versionstore"
)

// newVersionCommand creates the `sra-updater version` command. It prints the
// updater build and, when the configuration loads, the installed SRA versions.
func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the updater and installed SRA versions",
		Args:  cobra.NoArgs,
		// Replaces the root hook: a broken config must not hide the build info.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.load(cmd.Context()); err != nil {
				app.logger.Debug("configuration unavailable", "err", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var store recordLoader
			if app.cfg != nil {
				store = app.versionStore(app.cfg)
			}
			printVersions(cmd.OutOrStdout(), store)
			return nil
		},
	}
}

type recordLoader interface {
	Load() (versionstore.Record, error)
}

func printVersions(w io.Writer, store recordLoader) {
	_, _ = fmt.Fprintln(w, TitleStyle.Render("sra-updater")+" "+getVersionString())
	if store == nil {
		return
	}

	rec, err := store.Load()
	if err != nil {
		_, _ = fmt.Fprintln(w, WarningStyle.Render("SRA version unknown: ")+err.Error())
		return
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", SubtitleStyle.Render("SRA      "), rec.Version)
	_, _ = fmt.Fprintf(w, "%s %s\n", SubtitleStyle.Render("resources"), rec.ResourceVersion)
	_, _ = fmt.Fprintf(w, "%s %s\n", SubtitleStyle.Render("channel  "), rec.Channel)
}
