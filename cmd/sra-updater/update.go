// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/starrailassistant/sra-updater/internal/selfupdate"
	"github.com/starrailassistant/sra-updater/internal/tui"
)

const releaseNotesWidth = 80

type (
	// updateRunner is the part of selfupdate.Pipeline the update command uses.
	updateRunner interface {
		Run(ctx context.Context, opts selfupdate.RunOptions) (*selfupdate.Result, error)
	}

	// updateParams bundles the dependencies and flags for the update command,
	// so runUpdate can be tested without a real Cobra command or network.
	updateParams struct {
		stdout   io.Writer
		stderr   io.Writer
		appDir   string
		pipeline updateRunner
		progress *progressSink
		// confirm asks a yes/no question; nil means never ask.
		confirm func(title, description string) (bool, error)
		// styled renders release notes as Markdown.
		styled bool

		force bool
		url   string
		check bool
	}
)

// newUpdateCommand creates the `sra-updater update` command.
func newUpdateCommand(app *App) *cobra.Command {
	var (
		force bool
		url   string
		check bool
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Check for a new SRA release and install it",
		Long: `Check for a new SRA release and install it.

The application is checked first; the resource pack is only updated when
the application is current. Downloads go through the Mirror酱 licensed API
when a CDK is configured, then through each recorded mirror. Every package
is verified against its published SHA-256 digest before SRA is stopped and
the archive is handed to 7-Zip.`,
		Example: `  # Install the latest release
  sra-updater update

  # Only report whether an update exists
  sra-updater update --check

  # Reinstall the current release without prompting
  sra-updater update --force --yes

  # Install a package from an explicit URL
  sra-updater update --url https://example.com/StarRailAssistant_v3.1.0.zip`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stdout := cmd.OutOrStdout()
			sink := newProgressSink(func() progressView { return newProgressView(cmd.ErrOrStderr()) })

			p := updateParams{
				stdout:   stdout,
				stderr:   cmd.ErrOrStderr(),
				appDir:   app.cfg.AppDir,
				pipeline: app.newPipeline(app.cfg, sink.onState),
				progress: sink,
				styled:   tui.IsTerminal(stdout),
				force:    force,
				url:      url,
				check:    check,
			}
			if !yes && tui.Interactive(stdout) {
				p.confirm = func(title, description string) (bool, error) {
					return tui.NewConfirm(tui.DefaultConfig(app.theme())).
						Title(title).
						Description(description).
						Labels("Install", "Not now").
						Run()
				}
			}

			if err := runUpdate(cmd.Context(), p); err != nil {
				return failCommand(p.stderr, app.logger, "update SRA", err, app.flags.verbose)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "offer the remote release even when it is not newer")
	cmd.Flags().StringVarP(&url, "url", "u", "", "download the package from this URL instead of resolving a release")
	cmd.Flags().BoolVar(&check, "check", false, "check for an update without installing")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")

	return cmd
}

// runUpdate is the core update logic, separated from Cobra for testability.
func runUpdate(ctx context.Context, p updateParams) error {
	var confirmErr error
	opts := selfupdate.RunOptions{
		Force:     p.force,
		URL:       p.url,
		CheckOnly: p.check,
		Observer:  p.progress,
	}
	if p.confirm != nil {
		opts.Confirm = func(d *selfupdate.Decision) bool {
			printRelease(p.stdout, d, p.styled)
			ok, err := p.confirm(confirmTitle(d), confirmDescription(d))
			if err != nil {
				confirmErr = err
				return false
			}
			return ok
		}
	}

	res, err := p.pipeline.Run(ctx, opts)
	p.progress.stop()

	if res != nil && res.Decision != nil {
		for _, w := range res.Decision.Warnings {
			_, _ = fmt.Fprintln(p.stderr, WarningStyle.Render("Warning: ")+w.Error())
		}
	}
	if err != nil {
		return err
	}
	if confirmErr != nil {
		return fmt.Errorf("confirmation prompt: %w", confirmErr)
	}

	reportUpdate(p, res)
	return nil
}

// reportUpdate prints the outcome of a successful run.
func reportUpdate(p updateParams, res *selfupdate.Result) {
	d := res.Decision
	switch {
	case d.Kind == selfupdate.UpToDate:
		_, _ = fmt.Fprintln(p.stdout, SuccessStyle.Render("SRA is up to date."))
	case d.Kind == selfupdate.AnnouncementChanged:
		_, _ = fmt.Fprintln(p.stdout, TitleStyle.Render("Announcement"))
		_, _ = fmt.Fprintln(p.stdout, d.Announcement)
	case res.Extracted:
		if res.Reused {
			_, _ = fmt.Fprintln(p.stdout, SubtitleStyle.Render("Reused the verified package from an earlier download."))
		}
		_, _ = fmt.Fprintln(p.stdout, SuccessStyle.Render(fmt.Sprintf("Installing %s.", describeTarget(d))))
		_, _ = fmt.Fprintf(p.stdout, "7-Zip is extracting %s into %s; start SRA once it finishes.\n",
			CmdStyle.Render(res.ArchivePath), CmdStyle.Render(p.appDir))
	case p.check:
		printRelease(p.stdout, d, p.styled)
		_, _ = fmt.Fprintf(p.stdout, "Update available: %s\n", describeTarget(d))
		_, _ = fmt.Fprintln(p.stdout, "Run "+CmdStyle.Render("sra-updater update")+" to install.")
	default:
		_, _ = fmt.Fprintln(p.stdout, "Update skipped.")
	}

	if d.Remote != nil && !d.Remote.CDKExpiry.IsZero() {
		_, _ = fmt.Fprintln(p.stdout, SubtitleStyle.Render("CDK expires "+humanize.Time(d.Remote.CDKExpiry)+"."))
	}
}

func describeTarget(d *selfupdate.Decision) string {
	name := "SRA"
	if d.Kind == selfupdate.ResourceUpdateAvailable {
		name = "SRA resources"
	}
	if d.Remote == nil || d.Remote.VersionName == "" {
		return name + " from the given URL"
	}
	return name + " " + d.Remote.VersionName
}

func confirmTitle(d *selfupdate.Decision) string {
	return "Install " + describeTarget(d) + "?"
}

func confirmDescription(d *selfupdate.Decision) string {
	var parts []string
	if d.Remote != nil && d.Remote.Filesize > 0 {
		parts = append(parts, "Download size "+humanize.IBytes(uint64(d.Remote.Filesize)))
	}
	if d.Licensed {
		parts = append(parts, "via Mirror酱")
	}
	parts = append(parts, "SRA will be closed if it is running")
	return strings.Join(parts, ", ") + "."
}

// printRelease prints the release notes of d, if any.
func printRelease(w io.Writer, d *selfupdate.Decision, styled bool) {
	if d.Remote == nil {
		return
	}
	notes, err := tui.ReleaseNotes(d.Remote.VersionName, d.Remote.ReleaseNote, styled, releaseNotesWidth)
	if err != nil || notes == "" {
		return
	}
	_, _ = fmt.Fprint(w, notes)
}
