// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// ChunkSize is the fixed buffer size of the download loop.
	ChunkSize = 8 << 10

	// TempSuffix marks a partially written download.
	TempSuffix = ".downloaded"
)

// Download statuses.
const (
	DownloadPending DownloadStatus = iota
	DownloadInProgress
	DownloadVerifying
	DownloadComplete
	DownloadFailed
)

type (
	// DownloadStatus is the lifecycle position of one download attempt.
	DownloadStatus int

	// DownloadState describes one download attempt. It is discarded when the
	// attempt fails.
	DownloadState struct {
		TargetPath   string
		TempPath     string
		BytesTotal   int64
		BytesWritten int64
		Status       DownloadStatus
	}

	// ProgressObserver receives download progress. Both methods are called
	// synchronously from the chunk loop and must not block.
	ProgressObserver interface {
		// SizeKnown is called once per attempt. Zero means the size is unknown.
		SizeKnown(total int64)
		// Progress is called after every chunk with the cumulative byte count.
		Progress(written int64)
	}

	// Downloader streams one URL to disk per call. It never retries.
	Downloader struct {
		client  *Client
		timeout time.Duration
		logger  *log.Logger
	}

	nopObserver struct{}
)

func (s DownloadStatus) String() string {
	switch s {
	case DownloadPending:
		return "pending"
	case DownloadInProgress:
		return "in progress"
	case DownloadVerifying:
		return "verifying"
	case DownloadComplete:
		return "complete"
	case DownloadFailed:
		return "failed"
	default:
		return fmt.Sprintf("DownloadStatus(%d)", int(s))
	}
}

func (nopObserver) SizeKnown(int64) {}
func (nopObserver) Progress(int64)  {}

// NewDownloader creates a Downloader. attemptTimeout bounds a single Fetch;
// zero disables it.
func NewDownloader(client *Client, attemptTimeout time.Duration) *Downloader {
	return &Downloader{
		client:  client,
		timeout: attemptTimeout,
		logger:  client.logger.WithPrefix("download"),
	}
}

// Fetch streams rawURL into dest+TempSuffix and renames it to dest once the
// body has been read completely. Any failure removes the temp file.
//
// Errors: *NetworkError for transport failures and attempt timeouts,
// *HTTPError for non-200 responses, ErrCancelled when ctx ends.
func (d *Downloader) Fetch(ctx context.Context, rawURL, dest string, observer ProgressObserver) (state DownloadState, err error) {
	if observer == nil {
		observer = nopObserver{}
	}
	state = DownloadState{
		TargetPath: dest,
		TempPath:   dest + TempSuffix,
		Status:     DownloadPending,
	}
	defer func() {
		if err != nil {
			state.Status = DownloadFailed
			d.logger.Warn("download failed", "url", redactURL(rawURL), "err", err)
		}
	}()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return state, fmt.Errorf("creating download directory: %w", err)
	}
	if err := os.Remove(state.TempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return state, fmt.Errorf("removing stale partial download: %w", err)
	}

	attemptCtx, cancel := withTimeout(ctx, d.timeout)
	defer cancel()

	d.logger.Debug("downloading", "url", redactURL(rawURL), "dest", dest)
	resp, err := d.client.get(attemptCtx, rawURL)
	if err != nil {
		return state, classifyTransportError(ctx, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return state, &HTTPError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	state.BytesTotal = max(resp.ContentLength, 0)
	observer.SizeKnown(state.BytesTotal)

	f, err := os.OpenFile(state.TempPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return state, fmt.Errorf("creating %s: %w", state.TempPath, err)
	}
	state.Status = DownloadInProgress

	if err := d.stream(ctx, rawURL, resp.Body, f, &state, observer); err != nil {
		_ = f.Close() // best-effort; the partial file is removed next
		_ = os.Remove(state.TempPath)
		return state, err
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(state.TempPath)
		return state, fmt.Errorf("closing %s: %w", state.TempPath, err)
	}
	if err := os.Rename(state.TempPath, dest); err != nil {
		_ = os.Remove(state.TempPath)
		return state, fmt.Errorf("finalizing download: %w", err)
	}

	state.Status = DownloadComplete
	d.logger.Debug("download complete", "dest", dest, "bytes", state.BytesWritten)
	return state, nil
}

func (d *Downloader) stream(ctx context.Context, rawURL string, body io.Reader, f *os.File, state *DownloadState, observer ProgressObserver) error {
	buf := make([]byte, ChunkSize)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, err := f.Write(buf[:n]); err != nil {
				return fmt.Errorf("writing %s: %w", state.TempPath, err)
			}
			state.BytesWritten += int64(n)
			observer.Progress(state.BytesWritten)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return classifyTransportError(ctx, rawURL, readErr)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrCancelled, err)
		}
	}

	if state.BytesTotal > 0 && state.BytesWritten != state.BytesTotal {
		return &NetworkError{
			URL: rawURL,
			Err: fmt.Errorf("short body: got %d of %d bytes", state.BytesWritten, state.BytesTotal),
		}
	}

	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing %s: %w", state.TempPath, err)
	}
	return nil
}
