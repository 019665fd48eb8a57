// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"io"
	"sync"

	"github.com/starrailassistant/sra-updater/internal/selfupdate"
	"github.com/starrailassistant/sra-updater/internal/tui"
)

type (
	// progressView is implemented by tui.ProgressDisplay and tui.PlainProgress.
	progressView interface {
		selfupdate.ProgressObserver
		Stage(text string)
		Stop()
	}

	// progressSink adapts pipeline state changes and download progress to a
	// progressView. The view is started on the first state that follows the
	// confirmation prompt, so the prompt never competes with it for the
	// terminal.
	progressSink struct {
		start func() progressView

		mu   sync.Mutex
		view progressView
	}
)

//nolint:gochecknoglobals // Fixed lookup table.
var stageText = map[selfupdate.State]string{
	selfupdate.StateResolvingCandidates: "Resolving download sources",
	selfupdate.StateDownloading:         "Downloading update",
	selfupdate.StateVerifying:           "Verifying package",
	selfupdate.StateCoordinating:        "Stopping SRA",
	selfupdate.StateExtracting:          "Starting extraction",
}

// newProgressView picks a Bubble Tea display for terminals and plain lines
// otherwise.
func newProgressView(w io.Writer) progressView {
	if tui.IsTerminal(w) {
		return tui.NewProgressDisplay(w)
	}
	return tui.NewPlainProgress(w)
}

func newProgressSink(start func() progressView) *progressSink {
	return &progressSink{start: start}
}

func (s *progressSink) onState(_, to selfupdate.State) {
	text, ok := stageText[to]
	if !ok {
		return
	}

	s.mu.Lock()
	if s.view == nil && s.start != nil {
		s.view = s.start()
	}
	view := s.view
	s.mu.Unlock()

	if view != nil {
		view.Stage(text)
	}
}

// SizeKnown implements selfupdate.ProgressObserver.
func (s *progressSink) SizeKnown(total int64) {
	if view := s.current(); view != nil {
		view.SizeKnown(total)
	}
}

// Progress implements selfupdate.ProgressObserver.
func (s *progressSink) Progress(written int64) {
	if view := s.current(); view != nil {
		view.Progress(written)
	}
}

func (s *progressSink) current() progressView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// stop ends the view, if one was started.
func (s *progressSink) stop() {
	s.mu.Lock()
	view := s.view
	s.view = nil
	s.mu.Unlock()

	if view != nil {
		view.Stop()
	}
}
