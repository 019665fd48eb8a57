// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/starrailassistant/sra-updater/internal/selfupdate"
	"github.com/starrailassistant/sra-updater/internal/tui"
)

type (
	// integrityRunner is the part of selfupdate.IntegrityChecker the check
	// command uses.
	integrityRunner interface {
		Check(ctx context.Context) (*selfupdate.IntegrityReport, error)
		Repair(ctx context.Context, report *selfupdate.IntegrityReport, observer selfupdate.ProgressObserver) (*selfupdate.RepairSummary, error)
	}

	checkParams struct {
		stdout  io.Writer
		checker integrityRunner
		// repair restores damaged files without asking.
		repair bool
		// confirm asks before repairing; nil means report only.
		confirm  func(title string) (bool, error)
		progress func() progressView
		verbose  bool
	}
)

// newCheckCommand creates the `sra-updater check` command.
func newCheckCommand(app *App) *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify installed SRA files against the published hash manifest",
		Long: `Verify installed SRA files against the published hash manifest.

Every file listed in the manifest is hashed and compared. Missing and
modified files are reported; with --repair (or after confirming) they are
downloaded again, verified and put in place. SRA is closed first.`,
		Example: `  # Report damaged files
  sra-updater check

  # Restore damaged files without asking
  sra-updater check --repair`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			stdout := cmd.OutOrStdout()
			p := checkParams{
				stdout:   stdout,
				checker:  app.newIntegrityChecker(app.cfg),
				repair:   repair,
				progress: func() progressView { return newProgressView(cmd.ErrOrStderr()) },
				verbose:  app.flags.verbose,
			}
			if !repair && tui.Interactive(stdout) {
				p.confirm = func(title string) (bool, error) {
					return tui.NewConfirm(tui.DefaultConfig(app.theme())).
						Title(title).
						Labels("Repair", "Skip").
						Run()
				}
			}

			if err := runCheck(cmd.Context(), p); err != nil {
				return failCommand(cmd.ErrOrStderr(), app.logger, "check SRA files", err, app.flags.verbose)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&repair, "repair", "r", false, "restore damaged files without asking")

	return cmd
}

// runCheck is the core integrity check logic, separated from Cobra for testability.
func runCheck(ctx context.Context, p checkParams) error {
	report, err := p.checker.Check(ctx)
	if err != nil {
		return err
	}

	failed := report.Failed()
	printReport(p.stdout, report, p.verbose)
	if len(failed) == 0 {
		_, _ = fmt.Fprintln(p.stdout, SuccessStyle.Render("All files are intact."))
		return nil
	}

	if !p.repair {
		if p.confirm == nil {
			_, _ = fmt.Fprintln(p.stdout, "Run "+CmdStyle.Render("sra-updater check --repair")+" to restore them.")
			return nil
		}
		ok, err := p.confirm(fmt.Sprintf("Repair %d file(s)?", len(failed)))
		if err != nil {
			return fmt.Errorf("confirmation prompt: %w", err)
		}
		if !ok {
			return nil
		}
	}

	view := p.progress()
	view.Stage(fmt.Sprintf("Repairing %d file(s)", len(failed)))
	summary, err := p.checker.Repair(ctx, report, view)
	view.Stop()
	if err != nil {
		return err
	}

	for _, path := range summary.Repaired {
		_, _ = fmt.Fprintln(p.stdout, SuccessStyle.Render("  repaired ")+path)
	}
	for _, f := range summary.Failures {
		_, _ = fmt.Fprintln(p.stdout, ErrorStyle.Render("  failed   ")+f.Path+": "+f.Err.Error())
	}
	if len(summary.Failures) > 0 {
		return fmt.Errorf("%d of %d file(s) could not be repaired: %w",
			len(summary.Failures), len(failed), summary.Failures[0].Err)
	}
	_, _ = fmt.Fprintln(p.stdout, SuccessStyle.Render(fmt.Sprintf("Repaired %d file(s).", len(summary.Repaired))))
	return nil
}

// printReport lists damaged files. Intact files are listed in verbose mode.
func printReport(w io.Writer, report *selfupdate.IntegrityReport, verbose bool) {
	_, _ = fmt.Fprintf(w, "Checked %d file(s): %d ok, %d modified, %d missing, %d unreadable\n",
		len(report.Results),
		report.Count(selfupdate.FilePassed),
		report.Count(selfupdate.FileMismatch),
		report.Count(selfupdate.FileMissing),
		report.Count(selfupdate.FileError))

	for _, res := range report.Results {
		switch res.Status {
		case selfupdate.FilePassed:
			if verbose {
				_, _ = fmt.Fprintln(w, SubtitleStyle.Render("  ok       ")+res.Path)
			}
		case selfupdate.FileError:
			_, _ = fmt.Fprintln(w, WarningStyle.Render(fmt.Sprintf("  %-8s ", res.Status))+fmt.Sprintf("%s: %v", res.Path, res.Err))
		default:
			_, _ = fmt.Fprintln(w, WarningStyle.Render(fmt.Sprintf("  %-8s ", res.Status))+res.Path)
		}
	}
}
