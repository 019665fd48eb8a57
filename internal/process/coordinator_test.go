// SPDX-License-Identifier: MPL-2.0

package process

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"runtime"
	"slices"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/starrailassistant/sra-updater/pkg/platform"
)

type fakeProc struct {
	name    string
	status  []string
	killErr error
	killed  bool
}

func (f *fakeProc) NameWithContext(context.Context) (string, error) {
	if f.name == "" {
		return "", errors.New("name unavailable")
	}
	return f.name, nil
}

func (f *fakeProc) KillWithContext(context.Context) error {
	f.killed = true
	return f.killErr
}

func (f *fakeProc) StatusWithContext(context.Context) ([]string, error) {
	return f.status, nil
}

// stubProcesses replaces process enumeration for one test. Tests using it
// must not run in parallel.
func stubProcesses(t *testing.T, procs ...*fakeProc) {
	t.Helper()
	orig := listProcesses
	t.Cleanup(func() { listProcesses = orig })
	listProcesses = func(context.Context) ([]handle, error) {
		handles := make([]handle, 0, len(procs))
		for _, p := range procs {
			handles = append(handles, p)
		}
		return handles, nil
	}
}

func newTestCoordinator(opts ...Option) *Coordinator {
	return NewCoordinator(append([]Option{WithLogger(log.New(io.Discard))}, opts...)...)
}

func TestCoordinator_IsRunning(t *testing.T) {
	stubProcesses(t,
		&fakeProc{name: "explorer.exe"},
		&fakeProc{name: ""},
		&fakeProc{name: "SRA.exe"},
	)
	c := newTestCoordinator()

	tests := []struct {
		name string
		want bool
	}{
		{"SRA.exe", true},
		{"sra.EXE", true},
		{"SRA", true},
		{"notepad.exe", false},
	}
	for _, tt := range tests {
		if got := c.IsRunning(context.Background(), tt.name); got != tt.want {
			t.Errorf("IsRunning(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCoordinator_IsRunning_ListError(t *testing.T) {
	orig := listProcesses
	t.Cleanup(func() { listProcesses = orig })
	listProcesses = func(context.Context) ([]handle, error) { return nil, errors.New("no /proc") }

	if newTestCoordinator().IsRunning(context.Background(), "SRA.exe") {
		t.Error("IsRunning() should be false when processes cannot be listed")
	}
}

func TestCoordinator_Terminate(t *testing.T) {
	target := &fakeProc{name: "SRA.exe"}
	second := &fakeProc{name: "sra.exe"}
	prefix := &fakeProc{name: "SRAUpdater.exe"}
	stubProcesses(t, target, second, prefix)

	n, err := newTestCoordinator().Terminate(context.Background(), "SRA.exe")
	if err != nil {
		t.Fatalf("Terminate() error: %v", err)
	}
	if n != 2 {
		t.Errorf("Terminate() = %d, want 2", n)
	}
	if !target.killed || !second.killed {
		t.Error("every exact name match should be killed, ignoring case")
	}
	if prefix.killed {
		t.Error("a longer name containing the target must not be killed")
	}
}

func TestCoordinator_Terminate_BenignFailures(t *testing.T) {
	gone := &fakeProc{name: "SRA.exe", killErr: process.ErrorProcessNotRunning}
	denied := &fakeProc{name: "SRA.exe", killErr: os.ErrPermission}
	done := &fakeProc{name: "SRA.exe", killErr: os.ErrProcessDone}
	zombie := &fakeProc{name: "SRA.exe", status: []string{process.Zombie}}
	stubProcesses(t, gone, denied, done, zombie)

	if _, err := newTestCoordinator().Terminate(context.Background(), "SRA.exe"); err != nil {
		t.Fatalf("Terminate() error = %v, want benign failures swallowed", err)
	}
	if zombie.killed {
		t.Error("zombies should not be killed again")
	}
}

func TestCoordinator_Terminate_RealFailure(t *testing.T) {
	boom := errors.New("kill failed")
	stubProcesses(t, &fakeProc{name: "SRA.exe", killErr: boom}, &fakeProc{name: "SRA.exe"})

	n, err := newTestCoordinator().Terminate(context.Background(), "SRA.exe")
	if !errors.Is(err, boom) {
		t.Fatalf("Terminate() error = %v, want %v", err, boom)
	}
	if n != 1 {
		t.Errorf("Terminate() = %d, want the one process that was killed", n)
	}
}

func TestCoordinator_Terminate_SubstringOnly(t *testing.T) {
	other := &fakeProc{name: "XSRA.exe"}
	stubProcesses(t, other)
	c := newTestCoordinator()

	if !c.IsRunning(context.Background(), "SRA.exe") {
		t.Fatal("IsRunning() should match a name containing the target")
	}
	n, err := c.Terminate(context.Background(), "SRA.exe")
	if err != nil || n != 0 {
		t.Errorf("Terminate() = %d, %v, want 0, nil", n, err)
	}
	if other.killed {
		t.Error("a different process must not be killed")
	}
}

func TestCoordinator_TerminatePID(t *testing.T) {
	orig := findProcess
	t.Cleanup(func() { findProcess = orig })

	p := &fakeProc{name: "SRA.exe"}
	findProcess = func(_ context.Context, pid int32) (handle, error) {
		if pid == 42 {
			return p, nil
		}
		return nil, process.ErrorProcessNotRunning
	}

	c := newTestCoordinator()
	if err := c.TerminatePID(context.Background(), 42); err != nil || !p.killed {
		t.Errorf("TerminatePID(42) = %v, killed = %v", err, p.killed)
	}
	if err := c.TerminatePID(context.Background(), 7); err != nil {
		t.Errorf("TerminatePID(7) = %v, want nil for a vanished process", err)
	}
}

func stubStart(t *testing.T, err error) *[]*exec.Cmd {
	t.Helper()
	orig := startCommand
	t.Cleanup(func() { startCommand = orig })
	var started []*exec.Cmd
	startCommand = func(cmd *exec.Cmd) error {
		started = append(started, cmd)
		return err
	}
	return &started
}

func TestCoordinator_Launch_SplitsArgv(t *testing.T) {
	started := stubStart(t, nil)
	dir := t.TempDir()

	ok := newTestCoordinator(WithWorkDir(dir)).Launch(`"/opt/SRA/tools/7z" x "/opt/SRA/temp/SRA Update.zip" -y`, false)
	if !ok {
		t.Fatal("Launch() = false")
	}
	if len(*started) != 1 {
		t.Fatalf("started %d commands, want 1", len(*started))
	}

	cmd := (*started)[0]
	want := []string{"/opt/SRA/tools/7z", "x", "/opt/SRA/temp/SRA Update.zip", "-y"}
	if !slices.Equal(cmd.Args, want) {
		t.Errorf("Args = %q, want %q", cmd.Args, want)
	}
	if cmd.Dir != dir {
		t.Errorf("Dir = %q, want %q", cmd.Dir, dir)
	}
	if cmd.SysProcAttr == nil {
		t.Error("launched command should be detached")
	}
}

func TestCoordinator_Launch_NoExpansion(t *testing.T) {
	started := stubStart(t, nil)

	if !newTestCoordinator().Launch(`tool "$HOME" x`, false) {
		t.Fatal("Launch() = false")
	}
	if got := (*started)[0].Args[1]; got != "" {
		t.Errorf("variable expanded to %q, want empty", got)
	}
}

func TestCoordinator_Launch_Shell(t *testing.T) {
	if runtime.GOOS == platform.Windows {
		t.Skip("cmd.exe receives a raw command line instead of argv")
	}
	started := stubStart(t, nil)

	if !newTestCoordinator().Launch(`"tool" x "a.zip" -y`, true) {
		t.Fatal("Launch() = false")
	}

	cmd := (*started)[0]
	want := []string{"/bin/sh", "-c", `"tool" x "a.zip" -y`}
	if !slices.Equal(cmd.Args, want) {
		t.Errorf("Args = %q, want %q", cmd.Args, want)
	}
}

func TestCoordinator_Launch_Failures(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		startErr error
	}{
		{"start fails", `"tool" x`, errors.New("exec format error")},
		{"unterminated quote", `"tool x`, nil},
		{"empty", "   ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stubStart(t, tt.startErr)
			if newTestCoordinator().Launch(tt.line, false) {
				t.Errorf("Launch(%q) = true, want false", tt.line)
			}
		})
	}
}
