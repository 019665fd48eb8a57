// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDownloader_Fetch(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("0123456789abcdef"), 2000) // 32000 bytes
	srv := newServer(t, bytesHandler(payload))
	dest := filepath.Join(t.TempDir(), "nested", ArchiveName)
	rec := &progressRecorder{}

	state, err := NewDownloader(newTestClient(), time.Second).Fetch(context.Background(), srv.URL, dest, rec)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("reading download: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("downloaded content differs from payload")
	}
	if state.Status != DownloadComplete || state.BytesWritten != int64(len(payload)) || state.BytesTotal != int64(len(payload)) {
		t.Errorf("state = %+v", state)
	}
	if _, err := os.Stat(dest + TempSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file should be gone after a successful download, stat err = %v", err)
	}

	if len(rec.sizes) != 1 || rec.sizes[0] != int64(len(payload)) {
		t.Errorf("SizeKnown calls = %v", rec.sizes)
	}
	if len(rec.progress) < len(payload)/ChunkSize {
		t.Errorf("Progress called %d times, want at least %d", len(rec.progress), len(payload)/ChunkSize)
	}
	var prev int64
	for _, p := range rec.progress {
		if p <= prev || p-prev > ChunkSize {
			t.Fatalf("progress %d after %d: not monotonic or chunk larger than %d", p, prev, ChunkSize)
		}
		prev = p
	}
	if prev != int64(len(payload)) {
		t.Errorf("final progress = %d, want %d", prev, len(payload))
	}
}

func TestDownloader_Fetch_UnknownSize(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.(http.Flusher).Flush() // forces chunked encoding
		_, _ = w.Write([]byte("streamed"))
	})
	dest := filepath.Join(t.TempDir(), ArchiveName)
	rec := &progressRecorder{}

	if _, err := NewDownloader(newTestClient(), time.Second).Fetch(context.Background(), srv.URL, dest, rec); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if len(rec.sizes) != 1 || rec.sizes[0] != 0 {
		t.Errorf("SizeKnown calls = %v, want [0] for an unknown size", rec.sizes)
	}
}

func TestDownloader_Fetch_HTTPError(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	dest := filepath.Join(t.TempDir(), ArchiveName)

	state, err := NewDownloader(newTestClient(), time.Second).Fetch(context.Background(), srv.URL, dest, nil)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Fatalf("Fetch() error = %v, want *HTTPError 404", err)
	}
	if state.Status != DownloadFailed {
		t.Errorf("Status = %s, want failed", state.Status)
	}
	assertNoFiles(t, dest)
}

func TestDownloader_Fetch_ConnectionRefused(t *testing.T) {
	t.Parallel()

	dest := filepath.Join(t.TempDir(), ArchiveName)

	_, err := NewDownloader(newFakeRemote().client(), time.Second).Fetch(context.Background(), "https://down.test/a.zip", dest, nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Fetch() error = %v, want ErrNetwork", err)
	}
	assertNoFiles(t, dest)
}

func TestDownloader_Fetch_AttemptTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "1024")
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })
	dest := filepath.Join(t.TempDir(), ArchiveName)

	_, err := NewDownloader(newTestClient(), 100*time.Millisecond).Fetch(context.Background(), srv.URL, dest, nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Fetch() error = %v, want ErrNetwork for an attempt timeout", err)
	}
	assertNoFiles(t, dest)
}

func TestDownloader_Fetch_ShortBody(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "100")
		_, _ = w.Write([]byte("only a few bytes"))
	})
	dest := filepath.Join(t.TempDir(), ArchiveName)

	_, err := NewDownloader(newTestClient(), time.Second).Fetch(context.Background(), srv.URL, dest, nil)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("Fetch() error = %v, want ErrNetwork for a truncated body", err)
	}
	assertNoFiles(t, dest)
}

func TestDownloader_Fetch_CancelledMidStream(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "65536")
		_, _ = w.Write(make([]byte, ChunkSize))
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })
	dest := filepath.Join(t.TempDir(), ArchiveName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	obs := &cancelOnProgress{cancel: cancel}

	_, err := NewDownloader(newTestClient(), 0).Fetch(ctx, srv.URL, dest, obs)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("Fetch() error = %v, want ErrCancelled", err)
	}
	assertNoFiles(t, dest)
}

func TestDownloader_Fetch_ReplacesStaleTemp(t *testing.T) {
	t.Parallel()

	srv := newServer(t, bytesHandler([]byte("new")))
	dest := filepath.Join(t.TempDir(), ArchiveName)
	if err := os.WriteFile(dest+TempSuffix, []byte("stale partial content from a crash"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewDownloader(newTestClient(), time.Second).Fetch(context.Background(), srv.URL, dest, nil); err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	got, _ := os.ReadFile(dest)
	if string(got) != "new" {
		t.Errorf("content = %q, want %q", got, "new")
	}
}

func TestDownloadStatus_String(t *testing.T) {
	t.Parallel()

	if got := DownloadVerifying.String(); got != "verifying" {
		t.Errorf("String() = %q", got)
	}
	if got := DownloadStatus(7).String(); got != "DownloadStatus(7)" {
		t.Errorf("String() = %q", got)
	}
}

func assertNoFiles(t *testing.T, dest string) {
	t.Helper()
	for _, p := range []string{dest, dest + TempSuffix} {
		if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s should not exist after a failed download, stat err = %v", filepath.Base(p), err)
		}
	}
}

// cancelOnProgress cancels the download once the first chunk arrives.
type cancelOnProgress struct {
	cancel context.CancelFunc
}

func (c *cancelOnProgress) SizeKnown(int64) {}
func (c *cancelOnProgress) Progress(int64)  { c.cancel() }
