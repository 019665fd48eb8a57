// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/starrailassistant/sra-updater/internal/config"
	"github.com/starrailassistant/sra-updater/internal/issue"
	"github.com/starrailassistant/sra-updater/internal/selfupdate"
	"github.com/starrailassistant/sra-updater/internal/tui"
	"github.com/starrailassistant/sra-updater/internal/versionstore"
	"github.com/starrailassistant/sra-updater/pkg/types"
)

// describeError turns a command failure into an ActionableError with
// remediation hints. operation names what the command was doing.
func describeError(operation string, err error) *issue.ActionableError {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae
	}

	ec := issue.NewErrorContext().WithOperation(operation).Wrap(err)

	var (
		corrupt  *versionstore.CorruptStateError
		toolErr  *selfupdate.ExtractionToolMissingError
		credErr  *selfupdate.CredentialError
		checkErr *selfupdate.ChecksumError
	)
	switch {
	case errors.As(err, &corrupt):
		ec.WithResource(corrupt.Path).
			WithSuggestion("Delete the file to reset the record; the next run installs the latest release").
			WithIssue(issue.CorruptVersionFileId)
	case errors.As(err, &toolErr):
		ec.WithResource(toolErr.ArchivePath).
			WithSuggestions(
				"Extract this archive into the SRA folder by hand, overwriting existing files",
				"Set extract.tool in the config to another 7-Zip binary",
			).
			WithIssue(issue.ExtractionToolMissingId)
	case errors.Is(err, selfupdate.ErrExtractionLaunch):
		ec.WithSuggestion("Extract the downloaded archive into the SRA folder by hand")
	case errors.As(err, &checkErr):
		ec.WithResource(checkErr.Filename).
			WithSuggestions("Retry later; the mirror may still be syncing", "Try another mirror with --proxy or --no-proxy").
			WithIssue(issue.IntegrityMismatchId)
	case errors.Is(err, selfupdate.ErrAllCandidatesExhausted):
		ec.WithSuggestions(
			"Check your network connection",
			"Pass --proxy to try another mirror first, or --no-proxy to download directly",
		).
			WithIssue(issue.CandidatesExhaustedId)
	case errors.As(err, &credErr):
		ec.WithSuggestion("Check the CDK with 'sra-updater settings --show-only'").
			WithIssue(issue.CredentialRejectedId)
	case errors.Is(err, selfupdate.ErrHashUnavailable):
		ec.WithSuggestion("Retry later; packages are never installed unverified").
			WithIssue(issue.HashSourceUnavailableId)
	case errors.Is(err, selfupdate.ErrPipelineBusy):
		ec.WithIssue(issue.UpdateInProgressId)
	case errors.Is(err, config.ErrInvalidConfig):
		ec.WithSuggestion("Fix the listed fields or remove the config file").
			WithIssue(issue.ConfigLoadFailedId)
	case errors.Is(err, selfupdate.ErrNetwork), errors.Is(err, selfupdate.ErrHTTPStatus):
		ec.WithSuggestions("Check your network connection", "Raise the request timeout with --timeout")
	}

	return ec.Build()
}

// classifyExitCode maps a command failure to a process exit code.
func classifyExitCode(err error) types.ExitCode {
	switch {
	case err == nil:
		return types.ExitSuccess
	case isCancellation(err):
		return types.ExitInterrupted
	case errors.Is(err, selfupdate.ErrIntegrityMismatch):
		return types.ExitIntegrity
	case errors.Is(err, selfupdate.ErrExtractionToolMissing),
		errors.Is(err, selfupdate.ErrExtractionLaunch):
		return types.ExitManualAction
	case errors.Is(err, versionstore.ErrCorruptState),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, selfupdate.ErrCredential),
		errors.Is(err, selfupdate.ErrPipelineBusy):
		return types.ExitUserError
	default:
		return types.ExitTransient
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, selfupdate.ErrCancelled) ||
		errors.Is(err, tui.ErrCancelled) ||
		errors.Is(err, context.Canceled)
}

// failCommand renders err on w, logs it and wraps it in an ExitError.
func failCommand(w io.Writer, logger *log.Logger, operation string, err error, verbose bool) error {
	code := classifyExitCode(err)
	if code == types.ExitInterrupted {
		_, _ = fmt.Fprintln(w, WarningStyle.Render("Cancelled."))
		return &ExitError{Code: code, Err: err}
	}

	ae := describeError(operation, err)
	logger.Debug("command failed", "operation", operation, "exit", code, "err", err)
	_, _ = fmt.Fprintln(w, ErrorStyle.Render("Error: ")+ae.Format(verbose))
	if code.Retryable() {
		_, _ = fmt.Fprintln(w, SubtitleStyle.Render("This is usually temporary; running the command again later may succeed."))
	}

	if verbose {
		renderGuide(w, ae.IssueID)
	}
	return &ExitError{Code: code, Err: ae}
}

// renderGuide prints the long-form catalog entry for id, if any.
func renderGuide(w io.Writer, id issue.Id) {
	if id == 0 {
		return
	}
	guide := issue.Get(id)
	if guide == nil {
		return
	}

	style := "notty"
	if tui.IsTerminal(w) {
		style = "dark"
	}
	rendered, err := guide.Render(style)
	if err != nil {
		log.Warn("failed to render issue guide", "id", id, "err", err)
		return
	}
	_, _ = fmt.Fprint(w, rendered)
}
