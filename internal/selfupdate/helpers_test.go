// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/starrailassistant/sra-updater/internal/config"
	"github.com/starrailassistant/sra-updater/internal/versionstore"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestClient(opts ...ClientOption) *Client {
	return NewClient(append([]ClientOption{WithLogger(quietLogger())}, opts...)...)
}

func newServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func jsonServer(t *testing.T, v any) *httptest.Server {
	t.Helper()
	return newServer(t, func(w http.ResponseWriter, _ *http.Request) { writeJSON(t, w, v) })
}

// fakeRemote routes requests by scheme://host/path without opening sockets.
// Unrouted URLs fail like a refused connection.
type fakeRemote struct {
	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	hits   []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{routes: map[string]http.HandlerFunc{}}
}

func (f *fakeRemote) handle(u string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[u] = h
}

func (f *fakeRemote) RoundTrip(req *http.Request) (*http.Response, error) {
	key := req.URL.Scheme + "://" + req.URL.Host + req.URL.Path

	f.mu.Lock()
	f.hits = append(f.hits, req.URL.String())
	h, ok := f.routes[key]
	f.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("dial tcp %s: connection refused", req.URL.Host)
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec.Result(), nil
}

// hitCount counts requests whose full URL contains substr.
func (f *fakeRemote) hitCount(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, h := range f.hits {
		if strings.Contains(h, substr) {
			n++
		}
	}
	return n
}

func (f *fakeRemote) client() *Client {
	return newTestClient(WithHTTPClient(&http.Client{Transport: f}))
}

// versionHandler answers like the version-check API.
func versionHandler(t *testing.T, name, sha string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, map[string]any{
			"code": 0,
			"msg":  "success",
			"data": map[string]any{"version_name": name, "sha256": sha, "release_note": "notes for " + name},
		})
	}
}

func statusHandler(t *testing.T, httpStatus, code int, msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		if err := json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": nil}); err != nil {
			t.Errorf("encoding response: %v", err)
		}
	}
}

func bytesHandler(b []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", fmt.Sprint(len(b)))
		_, _ = w.Write(b)
	}
}

const (
	testAppCheck      = "https://api.test/app"
	testResourceCheck = "https://api.test/resource"
	testAnnouncement  = "https://static.test/announcement.json"
	testHashAPI       = "https://static.test/api.json"
	testManifest      = "https://static.test/hash.json"
	testRepairBase    = "https://repair.test/SRA"
)

// testConfig returns a config whose endpoints point at fakeRemote routes and
// whose extraction tool exists.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.AppDir = t.TempDir()
	cfg.ProcessSettle = 0
	cfg.Extract.UseShell = false
	cfg.Endpoints = config.Endpoints{
		VersionCheck:         testAppCheck + "?current_version={version}&cdk={cdk}&channel={channel}",
		ResourceVersionCheck: testResourceCheck + "?current_version={version}&cdk={cdk}&channel={channel}",
		AppDownload:          "https://github.test/releases/download/{version}/StarRailAssistant_{version}.zip",
		ResourceDownload:     "https://github.test/resource/download/{version}/SRAresource_{version}.zip",
		HashAPI:              testHashAPI,
		HashManifest:         testManifest,
		Announcement:         testAnnouncement,
		RepairBase:           testRepairBase,
	}

	tool := filepath.Join(cfg.AppDir, "tools", "7z.exe")
	if err := os.MkdirAll(filepath.Dir(tool), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tool, []byte("stub"), 0o755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func seedRecord(t *testing.T, cfg *config.Config, rec versionstore.Record) *versionstore.Store {
	t.Helper()
	store := versionstore.New(cfg.AppDir, versionstore.WithLogger(quietLogger()))
	if err := store.Save(rec); err != nil {
		t.Fatalf("seeding version record: %v", err)
	}
	return store
}

// fakeProcesses records process coordination calls.
type fakeProcesses struct {
	mu         sync.Mutex
	running    bool
	launchFail bool
	noMatch    bool
	terminated []string
	launched   []string
}

func (f *fakeProcesses) IsRunning(_ context.Context, _ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Terminate stops the fake process unless noMatch says only a similarly
// named process is running.
func (f *fakeProcesses) Terminate(_ context.Context, name string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, name)
	if f.noMatch {
		return 0, nil
	}
	f.running = false
	return 1, nil
}

func (f *fakeProcesses) Launch(commandLine string, _ bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.launchFail {
		return false
	}
	f.launched = append(f.launched, commandLine)
	return true
}

// progressRecorder is a ProgressObserver that keeps every call.
type progressRecorder struct {
	mu       sync.Mutex
	sizes    []int64
	progress []int64
}

func (r *progressRecorder) SizeKnown(total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sizes = append(r.sizes, total)
}

func (r *progressRecorder) Progress(written int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, written)
}
