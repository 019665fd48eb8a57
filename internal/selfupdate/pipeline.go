// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/starrailassistant/sra-updater/internal/config"
	"github.com/starrailassistant/sra-updater/internal/versionstore"
)

// ArchiveName is the file name of the downloaded update inside the temp directory.
const ArchiveName = "SRAUpdate.zip"

var (
	//nolint:gochecknoglobals // Test seam for exec.LookPath().
	lookPath = exec.LookPath

	//nolint:gochecknoglobals // Test seam for the post-termination pause.
	sleepContext = func(ctx context.Context, d time.Duration) error {
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
)

type (
	// RecordStore persists the local version record.
	RecordStore interface {
		Load() (versionstore.Record, error)
		Save(versionstore.Record) error
		UpdateAnnouncement(text string) error
		UpdateProxyList(proxys []string) error
	}

	// VersionChecker produces an update decision.
	VersionChecker interface {
		CheckVersion(ctx context.Context, local versionstore.Record, force bool) (*Decision, error)
	}

	// Fetcher downloads one URL to a destination path.
	Fetcher interface {
		Fetch(ctx context.Context, rawURL, dest string, observer ProgressObserver) (DownloadState, error)
	}

	// HashResolver supplies the digest an archive must match.
	HashResolver interface {
		ResolveExpected(ctx context.Context, kind DecisionKind, expected string) (string, error)
	}

	// ProcessCoordinator controls the application being updated.
	ProcessCoordinator interface {
		IsRunning(ctx context.Context, name string) bool
		Terminate(ctx context.Context, name string) (int, error)
		Launch(commandLine string, useShell bool) bool
	}

	// Dependencies are the collaborators of a Pipeline.
	Dependencies struct {
		Store      RecordStore
		Resolver   VersionChecker
		Downloader Fetcher
		Hashes     HashResolver
		Processes  ProcessCoordinator
	}

	// RunOptions tune a single Run.
	RunOptions struct {
		// Force offers the remote app version even when it is not newer.
		Force bool
		// URL skips version resolution and downloads this single candidate,
		// verified against the app digest of the hash API.
		URL string
		// CheckOnly stops after the version check.
		CheckOnly bool
		// Confirm, when set, is asked before downloading. Returning false
		// ends the run in Done.
		Confirm func(*Decision) bool
		// Observer receives download progress.
		Observer ProgressObserver
	}

	// Result summarizes a Run.
	Result struct {
		State       State
		Decision    *Decision
		ArchivePath string
		// Attempts are the failed download attempts, in order.
		Attempts []Attempt
		// Reused is true when an archive from an earlier run passed the pre-check.
		Reused bool
		// Extracted is true once the extraction tool was handed the archive.
		Extracted bool
	}

	// PipelineOption configures a Pipeline.
	PipelineOption func(*Pipeline)

	// Pipeline runs version check, download with mirror fallback,
	// verification, process coordination and the extraction handoff. Only one
	// Run may be active at a time.
	Pipeline struct {
		cfg     *config.Config
		deps    Dependencies
		logger  *log.Logger
		onState func(from, to State)

		state   atomic.Int32
		running atomic.Bool
	}
)

// WithStateHook registers fn to be called on every state transition.
func WithStateHook(fn func(from, to State)) PipelineOption {
	return func(p *Pipeline) {
		p.onState = fn
	}
}

// WithPipelineLogger sets the pipeline logger.
func WithPipelineLogger(l *log.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l.WithPrefix("pipeline")
		}
	}
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg *config.Config, deps Dependencies, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		cfg:    cfg,
		deps:   deps,
		logger: log.Default().WithPrefix("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// ArchivePath is where the verified update archive is placed.
func (p *Pipeline) ArchivePath() string {
	return filepath.Join(p.cfg.TempDir(), ArchiveName)
}

// Run executes one pipeline pass. Every failure is a *FailedError.
// ErrPipelineBusy is returned, unwrapped, when another Run is active.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, ErrPipelineBusy
	}
	defer p.running.Store(false)

	p.state.Store(int32(StateIdle))
	res := &Result{ArchivePath: p.ArchivePath()}
	err := p.run(ctx, opts, res)
	res.State = p.State()
	return res, err
}

func (p *Pipeline) run(ctx context.Context, opts RunOptions, res *Result) error {
	p.transition(StateCheckingVersion)

	rec, err := p.deps.Store.Load()
	if err != nil {
		return p.fail(err)
	}

	direct := opts.URL != ""
	var decision *Decision
	if direct {
		decision = &Decision{
			Kind:       AppUpdateAvailable,
			Remote:     &RemoteVersionInfo{},
			Candidates: []string{opts.URL},
		}
	} else {
		decision, err = p.deps.Resolver.CheckVersion(ctx, rec, opts.Force)
		if err != nil {
			return p.fail(err)
		}
	}
	res.Decision = decision

	for _, w := range decision.Warnings {
		p.logger.Warn("licensed download", "warning", w)
	}

	switch decision.Kind {
	case UpToDate:
		p.logger.Info("already up to date")
		p.transition(StateDone)
		return nil
	case AnnouncementChanged:
		p.applyAnnouncement(decision)
		p.transition(StateDone)
		return nil
	}

	if opts.CheckOnly || (opts.Confirm != nil && !opts.Confirm(decision)) {
		p.transition(StateDone)
		return nil
	}

	p.transition(StateResolvingCandidates)
	expected, err := p.deps.Hashes.ResolveExpected(ctx, decision.Kind, decision.Remote.ExpectedHash)
	if err != nil {
		return p.fail(err)
	}

	if p.precheck(res.ArchivePath, expected) {
		res.Reused = true
	} else if err := p.acquire(ctx, decision.Candidates, res, expected, opts.Observer); err != nil {
		return err
	}

	p.transition(StateCoordinating)
	if err := p.coordinate(ctx); err != nil {
		return p.fail(err)
	}

	p.transition(StateExtracting)
	if err := p.extract(res.ArchivePath); err != nil {
		return p.fail(err)
	}
	res.Extracted = true

	if !direct {
		p.recordVersion(rec, decision)
	}

	p.transition(StateDone)
	return nil
}

// precheck re-verifies an archive left by an earlier run. It deletes the
// archive when it does not match.
func (p *Pipeline) precheck(archive, expected string) bool {
	if _, err := os.Stat(archive); err != nil {
		return false
	}

	p.transition(StateVerifying)
	if err := VerifyFile(archive, expected); err != nil {
		p.logger.Info("discarding existing archive", "path", archive, "err", err)
		_ = os.Remove(archive)
		p.transition(StateResolvingCandidates)
		return false
	}

	p.logger.Info("existing archive verified, skipping download", "path", archive)
	return true
}

// acquire walks the candidates until one downloads and verifies. Network and
// HTTP failures move on to the next candidate. A mismatching archive is
// deleted and its URL retried once; a second mismatch is fatal.
func (p *Pipeline) acquire(ctx context.Context, candidates []string, res *Result, expected string, observer ProgressObserver) error {
	queue := slices.Clone(candidates)
	retried := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return p.fail(fmt.Errorf("%w: %w", ErrCancelled, err))
		}
		if len(queue) == 0 {
			return p.fail(&ExhaustedError{Attempts: res.Attempts})
		}

		candidate := queue[0]
		queue = queue[1:]

		p.transition(StateDownloading)
		p.logger.Info("downloading", "url", redactURL(candidate), "remaining", len(queue))
		if _, err := p.deps.Downloader.Fetch(ctx, candidate, res.ArchivePath, observer); err != nil {
			if !isFallbackError(err) {
				return p.fail(err)
			}
			res.Attempts = append(res.Attempts, Attempt{URL: candidate, Err: err})
			p.transition(StateResolvingCandidates)
			continue
		}

		p.transition(StateVerifying)
		err := VerifyFile(res.ArchivePath, expected)
		if err == nil {
			return nil
		}

		_ = os.Remove(res.ArchivePath)
		if !errors.Is(err, ErrIntegrityMismatch) {
			return p.fail(err)
		}
		res.Attempts = append(res.Attempts, Attempt{URL: candidate, Err: err})
		if retried[candidate] {
			return p.fail(err)
		}
		p.logger.Warn("archive failed verification, retrying once", "url", redactURL(candidate))
		retried[candidate] = true
		queue = append([]string{candidate}, queue...)
		p.transition(StateResolvingCandidates)
	}
}

// coordinate stops the target application so its files can be replaced.
// Termination failures are logged; only cancellation is returned.
func (p *Pipeline) coordinate(ctx context.Context) error {
	name := p.cfg.TargetProcess
	if !p.deps.Processes.IsRunning(ctx, name) {
		return nil
	}

	p.logger.Info("stopping running application", "process", name)
	stopped, err := p.deps.Processes.Terminate(ctx, name)
	if err != nil {
		p.logger.Warn("terminating application", "process", name, "err", err)
		return nil
	}
	if stopped == 0 {
		p.logger.Debug("no process with the exact name", "process", name)
		return nil
	}
	if err := sleepContext(ctx, p.cfg.ProcessSettle); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

// extract hands the archive to the external tool, detached.
func (p *Pipeline) extract(archive string) error {
	tool := p.cfg.ExtractToolPath()
	if !toolExists(tool) {
		return &ExtractionToolMissingError{ToolPath: tool, ArchivePath: archive}
	}

	cmdline := ExtractCommand(tool, archive)
	p.logger.Info("starting extraction", "command", cmdline)
	if !p.deps.Processes.Launch(cmdline, p.cfg.Extract.UseShell) {
		return fmt.Errorf("%w: %s", ErrExtractionLaunch, cmdline)
	}
	return nil
}

// recordVersion stores the version that was just handed to the extractor.
// A failed write is logged: the update itself is already under way and the
// next check would simply offer it again.
func (p *Pipeline) recordVersion(rec versionstore.Record, d *Decision) {
	version := bareVersion(d.Remote.VersionName)
	switch d.Kind {
	case AppUpdateAvailable:
		rec.Version = version
	case ResourceUpdateAvailable:
		rec.ResourceVersion = version
	default:
		return
	}
	if err := p.deps.Store.Save(rec); err != nil {
		p.logger.Error("recording new version", "kind", d.Kind, "version", version, "err", err)
	}
}

func (p *Pipeline) applyAnnouncement(d *Decision) {
	if err := p.deps.Store.UpdateAnnouncement(d.Announcement); err != nil {
		p.logger.Error("saving announcement", "err", err)
	}
	if len(d.Proxys) > 0 {
		if err := p.deps.Store.UpdateProxyList(d.Proxys); err != nil {
			p.logger.Error("saving proxy list", "err", err)
		}
	}
}

func (p *Pipeline) transition(to State) {
	from := p.State()
	if !CanTransition(from, to) {
		panic(fmt.Sprintf("selfupdate: illegal transition %s -> %s", from, to))
	}
	p.state.Store(int32(to))
	p.logger.Debug("state", "from", from, "to", to)
	if p.onState != nil {
		p.onState(from, to)
	}
}

func (p *Pipeline) fail(err error) error {
	from := p.State()
	p.transition(StateFailed)
	p.logger.Error("update failed", "state", from, "err", err)
	return &FailedError{From: from, Err: err}
}

// ExtractCommand builds the archiver command line: "<tool>" x "<archive>" -y.
func ExtractCommand(tool, archive string) string {
	return fmt.Sprintf(`"%s" x "%s" -y`, tool, archive)
}

// toolExists checks a path, or looks a bare executable name up in PATH.
func toolExists(tool string) bool {
	if !strings.ContainsAny(tool, `/\`) {
		_, err := lookPath(tool)
		return err == nil
	}
	info, err := os.Stat(tool)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
