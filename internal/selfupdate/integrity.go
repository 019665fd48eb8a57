// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/starrailassistant/sra-updater/internal/config"
	"github.com/starrailassistant/sra-updater/pkg/platform"
)

// RepairSuffix marks a repaired file that has not been verified yet.
const RepairSuffix = ".repair"

// File check outcomes.
const (
	FilePassed FileStatus = iota
	FileMismatch
	FileMissing
	FileError
)

type (
	// FileStatus classifies one manifest entry.
	FileStatus int

	// FileResult is the check result of one manifest entry.
	FileResult struct {
		// Path is the manifest key, slash-separated and relative to the app dir.
		Path     string
		Expected string
		Got      string
		Status   FileStatus
		Err      error
	}

	// IntegrityReport lists every manifest entry in path order.
	IntegrityReport struct {
		Results []FileResult
	}

	// RepairFailure is one file that could not be restored.
	RepairFailure struct {
		Path string
		Err  error
	}

	// RepairSummary is the outcome of IntegrityChecker.Repair.
	RepairSummary struct {
		Repaired []string
		Failures []RepairFailure
	}

	// IntegrityChecker compares the installation against the published hash
	// manifest and restores damaged files.
	IntegrityChecker struct {
		cfg        *config.Config
		client     *Client
		downloader Fetcher
		verifier   *Verifier
		procs      ProcessCoordinator
		logger     *log.Logger
	}
)

func (s FileStatus) String() string {
	switch s {
	case FilePassed:
		return "ok"
	case FileMismatch:
		return "mismatch"
	case FileMissing:
		return "missing"
	case FileError:
		return "error"
	default:
		return fmt.Sprintf("FileStatus(%d)", int(s))
	}
}

// Failed returns every result that is not FilePassed.
func (r *IntegrityReport) Failed() []FileResult {
	var failed []FileResult
	for _, res := range r.Results {
		if res.Status != FilePassed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Count returns the number of results with status s.
func (r *IntegrityReport) Count(s FileStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}

// NewIntegrityChecker creates an IntegrityChecker.
func NewIntegrityChecker(cfg *config.Config, client *Client, downloader Fetcher, verifier *Verifier, procs ProcessCoordinator) *IntegrityChecker {
	return &IntegrityChecker{
		cfg:        cfg,
		client:     client,
		downloader: downloader,
		verifier:   verifier,
		procs:      procs,
		logger:     client.logger.WithPrefix("integrity"),
	}
}

// Check fetches the manifest and hashes every listed file with at most
// Integrity.Workers files in flight.
func (c *IntegrityChecker) Check(ctx context.Context) (*IntegrityReport, error) {
	manifest, err := c.client.FetchManifest(ctx, c.cfg.Endpoints.HashManifest, c.cfg.Timeouts.HashFetch)
	if err != nil {
		return nil, fmt.Errorf("fetching hash manifest: %w", err)
	}

	paths := make([]string, 0, len(manifest))
	for p := range manifest {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	results := make([]FileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.cfg.Integrity.Workers, 1))

	for i, rel := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = c.checkFile(rel, manifest[rel])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}

	report := &IntegrityReport{Results: results}
	c.logger.Info("integrity check finished",
		"files", len(results),
		"mismatch", report.Count(FileMismatch),
		"missing", report.Count(FileMissing),
		"errors", report.Count(FileError))
	return report, nil
}

func (c *IntegrityChecker) checkFile(rel, expected string) FileResult {
	res := FileResult{Path: rel, Expected: strings.ToLower(expected)}

	full, err := c.localPath(rel)
	if err != nil {
		res.Status, res.Err = FileError, err
		return res
	}

	got, err := ComputeFileHash(full)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Status = FileMissing
	case err != nil:
		res.Status, res.Err = FileError, err
	case strings.EqualFold(got, expected):
		res.Got, res.Status = got, FilePassed
	default:
		res.Got, res.Status = got, FileMismatch
		c.logger.Debug("file mismatch", "path", rel)
	}
	return res
}

// Repair stops the target application and downloads every failed entry of
// report from the repair base URL, verifying each against the manifest.
func (c *IntegrityChecker) Repair(ctx context.Context, report *IntegrityReport, observer ProgressObserver) (*RepairSummary, error) {
	summary := &RepairSummary{}
	failed := report.Failed()
	if len(failed) == 0 {
		return summary, nil
	}

	if name := c.cfg.TargetProcess; c.procs.IsRunning(ctx, name) {
		if stopped, err := c.procs.Terminate(ctx, name); err != nil {
			c.logger.Warn("terminating application", "process", name, "err", err)
		} else if stopped == 0 {
			c.logger.Debug("no process with the exact name", "process", name)
		} else if err := sleepContext(ctx, c.cfg.ProcessSettle); err != nil {
			return summary, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
	}

	for _, res := range failed {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		err := c.repairFile(ctx, res, observer)
		if errors.Is(err, ErrCancelled) {
			return summary, err
		}
		if err != nil {
			c.logger.Warn("repair failed", "path", res.Path, "err", err)
			summary.Failures = append(summary.Failures, RepairFailure{Path: res.Path, Err: err})
			continue
		}
		summary.Repaired = append(summary.Repaired, res.Path)
	}
	return summary, nil
}

func (c *IntegrityChecker) repairFile(ctx context.Context, res FileResult, observer ProgressObserver) error {
	if res.Expected == "" {
		return fmt.Errorf("%w: manifest has no digest for %s", ErrHashUnavailable, res.Path)
	}
	dest, err := c.localPath(res.Path)
	if err != nil {
		return err
	}

	// The live file is only replaced once the download has verified.
	staged := dest + RepairSuffix
	src := RepairURL(c.cfg.Endpoints.RepairBase, res.Path)
	if _, err := c.downloader.Fetch(ctx, src, staged, observer); err != nil {
		_ = os.Remove(staged)
		return err
	}

	ok, err := c.verifier.Verify(ctx, staged, res.Expected)
	if err == nil && !ok {
		err = &ChecksumError{Filename: res.Path, Expected: res.Expected}
	}
	if err != nil {
		_ = os.Remove(staged)
		return err
	}

	if err := os.Rename(staged, dest); err != nil {
		_ = os.Remove(staged)
		return fmt.Errorf("replacing %s: %w", res.Path, err)
	}
	return nil
}

// localPath maps a manifest key into the app dir, rejecting keys that
// would escape it.
func (c *IntegrityChecker) localPath(rel string) (string, error) {
	local := filepath.FromSlash(rel)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("manifest entry %q escapes the application directory", rel)
	}
	if platform.HasWindowsReservedElement(rel) {
		return "", fmt.Errorf("manifest entry %q uses a reserved device name", rel)
	}
	return filepath.Join(c.cfg.AppDir, local), nil
}

// RepairURL joins base and a slash-separated relative path, escaping each
// path segment.
func RepairURL(base, rel string) string {
	segments := strings.Split(rel, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}
