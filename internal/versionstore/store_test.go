// SPDX-License-Identifier: MPL-2.0

package versionstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir())
}

func writeDoc(t *testing.T, s *Store, content string) {
	t.Helper()
	if err := os.WriteFile(s.Path(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readRaw(t *testing.T, s *Store) map[string]any {
	t.Helper()
	data, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("document on disk is not valid JSON: %v\n%s", err, data)
	}
	return m
}

func TestLoad_MissingFileCreatesDefault(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	rec, err := s.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if rec.Version != "0.0.0" || rec.ResourceVersion != "0.0.0" {
		t.Errorf("versions = %q/%q, want 0.0.0/0.0.0", rec.Version, rec.ResourceVersion)
	}
	if rec.Announcement != "" {
		t.Errorf("Announcement = %q, want empty", rec.Announcement)
	}
	if got := rec.Proxys[len(rec.Proxys)-1]; got != "" {
		t.Errorf("last default proxy = %q, want the empty direct entry", got)
	}
	if rec.Channel != DefaultChannel {
		t.Errorf("Channel = %q, want %q", rec.Channel, DefaultChannel)
	}

	if _, err := os.Stat(s.Path()); err != nil {
		t.Errorf("default record was not persisted: %v", err)
	}
}

func TestLoad_DefaultCreationIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if _, err := s.Load(); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Load(); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}

	if string(first) != string(second) {
		t.Errorf("second Load rewrote the document:\n%s\nvs\n%s", first, second)
	}
}

func TestLoad_ExistingRecordIsNotOverwritten(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	writeDoc(t, s, `{"version":"3.0.0","resource_version":"1.2.0","Announcement":"hi","Proxys":["https://p1/"]}`)

	rec, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Version != "3.0.0" || rec.ResourceVersion != "1.2.0" || rec.Announcement != "hi" {
		t.Errorf("unexpected record %+v", rec)
	}
	if !slices.Equal(rec.Proxys, []string{"https://p1/"}) {
		t.Errorf("Proxys = %v", rec.Proxys)
	}
	if rec.Channel != DefaultChannel {
		t.Errorf("absent channel should default to %q, got %q", DefaultChannel, rec.Channel)
	}
}

func TestLoad_EmptyProxyListIsKept(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	writeDoc(t, s, `{"version":"1.0.0","Proxys":[]}`)

	rec, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Proxys == nil || len(rec.Proxys) != 0 {
		t.Errorf("Proxys = %#v, want an empty non-nil list", rec.Proxys)
	}
}

func TestLoad_CorruptDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"truncated", `{"version": "3.0`},
		{"not an object", `["3.0.0"]`},
		{"null", `null`},
		{"wrong field type", `{"version": 3}`},
		{"wrong proxy type", `{"version": "1.0.0", "Proxys": "https://p1/"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := newTestStore(t)
			writeDoc(t, s, tt.content)

			_, err := s.Load()
			if !errors.Is(err, ErrCorruptState) {
				t.Fatalf("Load() error = %v, want ErrCorruptState", err)
			}
			var corrupt *CorruptStateError
			if !errors.As(err, &corrupt) || corrupt.Path != s.Path() {
				t.Errorf("error should carry the document path, got %v", err)
			}

			data, _ := os.ReadFile(s.Path())
			if string(data) != tt.content {
				t.Error("a corrupt document must be left untouched by Load")
			}
		})
	}
}

func TestSave_PreservesUnknownFields(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	writeDoc(t, s, `{"version":"3.0.0","resource_version":"1.0.0","Announcement":"","Proxys":[""],"build":"nightly","extra":{"a":1}}`)

	rec, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	rec.Version = "3.1.0"
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	raw := readRaw(t, s)
	if raw["version"] != "3.1.0" {
		t.Errorf("version = %v, want 3.1.0", raw["version"])
	}
	if raw["build"] != "nightly" {
		t.Errorf("unknown field build lost: %v", raw)
	}
	if _, ok := raw["extra"].(map[string]any); !ok {
		t.Errorf("unknown object field lost: %v", raw)
	}
}

func TestSave_OverwritesCorruptDocument(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	writeDoc(t, s, `{garbage`)

	if err := s.Save(DefaultRecord()); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if _, err := s.Load(); err != nil {
		t.Errorf("Load() after Save() error: %v", err)
	}
}

func TestSave_CrashBeforeRenameKeepsPreviousRecord(t *testing.T) {
	s := newTestStore(t)
	prev := Record{Version: "3.0.0", ResourceVersion: "1.0.0", Proxys: []string{""}, Channel: DefaultChannel}
	if err := s.Save(prev); err != nil {
		t.Fatal(err)
	}

	// Leave a half-written temp file behind and never rename it.
	orig := writeFile
	t.Cleanup(func() { writeFile = orig })
	crash := errors.New("power lost")
	writeFile = func(path string, data []byte, perm os.FileMode) error {
		tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".123.tmp")
		if err := os.WriteFile(tmp, data[:len(data)/2], perm); err != nil {
			t.Fatal(err)
		}
		return crash
	}

	next := prev
	next.Version = "3.1.0"
	if err := s.Save(next); !errors.Is(err, crash) {
		t.Fatalf("Save() error = %v, want %v", err, crash)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() after interrupted save: %v", err)
	}
	if got.Version != "3.0.0" || got.ResourceVersion != "1.0.0" {
		t.Errorf("Load() = %+v, want the previous record", got)
	}

	writeFile = orig
	if err := s.Save(next); err != nil {
		t.Fatalf("Save() after recovery: %v", err)
	}
	if got, err := s.Load(); err != nil || got.Version != "3.1.0" {
		t.Errorf("Load() = %+v, %v, want 3.1.0", got, err)
	}
}

func TestUpdateAnnouncement_TouchesOnlyAnnouncement(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	writeDoc(t, s, `{"version":"3.0.0","resource_version":"1.0.0","Announcement":"old","Proxys":["https://p1/",""]}`)
	if _, err := s.Load(); err != nil {
		t.Fatal(err)
	}

	// Simulates the main application editing the proxy list after our Load.
	writeDoc(t, s, `{"version":"3.0.0","resource_version":"1.0.0","Announcement":"old","Proxys":["https://edited/"]}`)

	if err := s.UpdateAnnouncement("maintenance tonight <b>20:00</b>"); err != nil {
		t.Fatalf("UpdateAnnouncement() error: %v", err)
	}

	rec, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Announcement != "maintenance tonight <b>20:00</b>" {
		t.Errorf("Announcement = %q", rec.Announcement)
	}
	if !slices.Equal(rec.Proxys, []string{"https://edited/"}) {
		t.Errorf("concurrent proxy edit was clobbered: %v", rec.Proxys)
	}

	data, _ := os.ReadFile(s.Path())
	if !json.Valid(data) {
		t.Fatal("document is not valid JSON")
	}
	if !strings.Contains(string(data), "<b>") {
		t.Errorf("announcement should be written without HTML escaping:\n%s", data)
	}
}

func TestUpdate_MissingFileStartsFromDefaults(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if err := s.UpdateChannel("beta"); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Channel != "beta" || rec.Version != DefaultVersion {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestUpdateProxyList_CorruptDocument(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	writeDoc(t, s, `not json`)

	if err := s.UpdateProxyList([]string{""}); !errors.Is(err, ErrCorruptState) {
		t.Errorf("UpdateProxyList() error = %v, want ErrCorruptState", err)
	}
}

func TestDefaultProxys_ReturnsCopy(t *testing.T) {
	t.Parallel()

	p := DefaultProxys()
	p[0] = "mutated"
	if DefaultProxys()[0] == "mutated" {
		t.Error("DefaultProxys() must not expose the package slice")
	}
}

func TestNew_Path(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if got, want := New(dir).Path(), filepath.Join(dir, FileName); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}
