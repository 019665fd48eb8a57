// SPDX-License-Identifier: MPL-2.0

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/shirou/gopsutil/v4/process"
	"mvdan.cc/sh/v3/shell"
)

type (
	// handle is the part of a gopsutil process the coordinator uses.
	handle interface {
		NameWithContext(ctx context.Context) (string, error)
		KillWithContext(ctx context.Context) error
		StatusWithContext(ctx context.Context) ([]string, error)
	}

	// Coordinator stops the application being updated and starts the
	// extraction tool detached from the updater.
	Coordinator struct {
		workDir string
		logger  *log.Logger
	}

	// Option configures a Coordinator.
	Option func(*Coordinator)
)

var (
	//nolint:gochecknoglobals // Test seam for process enumeration.
	listProcesses = func(ctx context.Context) ([]handle, error) {
		procs, err := process.ProcessesWithContext(ctx)
		if err != nil {
			return nil, err
		}
		handles := make([]handle, 0, len(procs))
		for _, p := range procs {
			handles = append(handles, p)
		}
		return handles, nil
	}

	//nolint:gochecknoglobals // Test seam for PID lookup.
	findProcess = func(ctx context.Context, pid int32) (handle, error) {
		return process.NewProcessWithContext(ctx, pid)
	}

	//nolint:gochecknoglobals // Test seam for exec.Cmd.Start().
	startCommand = func(cmd *exec.Cmd) error {
		if err := cmd.Start(); err != nil {
			return err
		}
		go func() { _ = cmd.Wait() }() // reap the child; its outcome is not ours to report
		return nil
	}
)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l.WithPrefix("process")
		}
	}
}

// WithWorkDir sets the working directory of launched commands.
func WithWorkDir(dir string) Option {
	return func(c *Coordinator) {
		c.workDir = dir
	}
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{logger: log.Default().WithPrefix("process")}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsRunning reports whether any live process name contains name,
// ignoring case. Enumeration failures are logged and reported as not running.
func (c *Coordinator) IsRunning(ctx context.Context, name string) bool {
	procs, err := listProcesses(ctx)
	if err != nil {
		c.logger.Warn("listing processes", "err", err)
		return false
	}

	needle := strings.ToLower(name)
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(pname), needle) {
			return true
		}
	}
	return false
}

// Terminate force-kills every process whose name equals name, ignoring case,
// and returns how many matched. Processes that vanish, deny access or are
// already zombies count as stopped. IsRunning matches substrings, so a
// positive IsRunning may still be followed by zero matches here.
func (c *Coordinator) Terminate(ctx context.Context, name string) (int, error) {
	procs, err := listProcesses(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing processes: %w", err)
	}

	var errs []error
	killed := 0
	for _, p := range procs {
		pname, err := p.NameWithContext(ctx)
		if err != nil || !strings.EqualFold(pname, name) {
			continue
		}
		if err := c.kill(ctx, p); err != nil {
			errs = append(errs, err)
			continue
		}
		killed++
	}

	c.logger.Debug("terminate", "process", name, "killed", killed)
	if len(errs) > 0 {
		return killed, fmt.Errorf("terminating %s: %w", name, errors.Join(errs...))
	}
	return killed, nil
}

// TerminatePID force-kills the process with the given PID.
func (c *Coordinator) TerminatePID(ctx context.Context, pid int32) error {
	p, err := findProcess(ctx, pid)
	if err != nil {
		if isBenign(err) {
			return nil
		}
		return fmt.Errorf("finding process %d: %w", pid, err)
	}
	if err := c.kill(ctx, p); err != nil {
		return fmt.Errorf("terminating process %d: %w", pid, err)
	}
	return nil
}

func (c *Coordinator) kill(ctx context.Context, p handle) error {
	if status, err := p.StatusWithContext(ctx); err == nil && slices.Contains(status, process.Zombie) {
		return nil
	}
	err := p.KillWithContext(ctx)
	if err == nil || isBenign(err) {
		return nil
	}
	return err
}

// isBenign reports kill failures that leave nothing to do: the process is
// already gone, or it belongs to someone we may not touch.
func isBenign(err error) bool {
	return errors.Is(err, process.ErrorProcessNotRunning) ||
		errors.Is(err, os.ErrProcessDone) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, os.ErrNotExist)
}

// Launch starts commandLine detached in the work directory. With useShell the
// line is handed to the platform shell; otherwise it is split into argv with
// POSIX shell quoting rules. It reports whether the process was started.
func (c *Coordinator) Launch(commandLine string, useShell bool) bool {
	cmd, err := c.command(commandLine, useShell)
	if err != nil {
		c.logger.Error("parsing command line", "command", commandLine, "err", err)
		return false
	}
	cmd.Dir = c.workDir
	detach(cmd)

	if err := startCommand(cmd); err != nil {
		c.logger.Error("starting process", "command", commandLine, "err", err)
		return false
	}
	c.logger.Debug("started", "command", commandLine, "dir", c.workDir)
	return true
}

func (c *Coordinator) command(commandLine string, useShell bool) (*exec.Cmd, error) {
	if useShell {
		return shellCommand(commandLine), nil
	}

	argv, err := shell.Fields(commandLine, func(string) string { return "" })
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command line")
	}
	return exec.Command(argv[0], argv[1:]...), nil //nolint:gosec // Command line comes from the updater's own config.
}
