// SPDX-License-Identifier: MPL-2.0

package versionstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/starrailassistant/sra-updater/internal/atomicfile"
)

//nolint:gochecknoglobals // Test seam for atomicfile.WriteFile().
var writeFile = atomicfile.WriteFile

const (
	// FileName is the version record file name inside the application directory.
	FileName = "version.json"

	// DefaultVersion is recorded for both app and resource on first run.
	DefaultVersion = "0.0.0"

	// DefaultChannel is the update channel used when none is recorded.
	DefaultChannel = "stable"

	keyVersion         = "version"
	keyResourceVersion = "resource_version"
	keyAnnouncement    = "Announcement"
	keyProxys          = "Proxys"
	keyChannel         = "channel"
)

// ErrCorruptState is wrapped by CorruptStateError.
var ErrCorruptState = errors.New("corrupt version record")

//nolint:gochecknoglobals // Built-in mirror list written into fresh records.
var defaultProxys = []string{
	"https://github.tbedu.top/",
	"https://gitproxy.click/",
	"https://github.akams.cn/",
	"https://gh-proxy.ygxz.in/",
	"https://ghps.cc/",
	"",
}

type (
	// Record is the modeled part of version.json.
	Record struct {
		Version         string   `json:"version"`
		ResourceVersion string   `json:"resource_version"`
		Announcement    string   `json:"Announcement"`
		Proxys          []string `json:"Proxys"`
		Channel         string   `json:"channel"`
	}

	// CorruptStateError reports a version.json that exists but cannot be parsed.
	CorruptStateError struct {
		Path string
		Err  error
	}

	// Store reads and writes version.json in one application directory.
	Store struct {
		path   string
		logger *log.Logger
		mu     sync.Mutex
	}

	// Option configures a Store.
	Option func(*Store)

	document map[string]json.RawMessage
)

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("%s is not a valid version record: %v", e.Path, e.Err)
}

// Unwrap returns ErrCorruptState so callers can use errors.Is.
func (e *CorruptStateError) Unwrap() error { return ErrCorruptState }

// Cause returns the underlying decode error.
func (e *CorruptStateError) Cause() error { return e.Err }

// DefaultProxys returns a copy of the built-in proxy list. The trailing empty
// entry means "direct, no proxy".
func DefaultProxys() []string {
	return slices.Clone(defaultProxys)
}

// DefaultRecord returns the record written on first run.
func DefaultRecord() Record {
	return Record{
		Version:         DefaultVersion,
		ResourceVersion: DefaultVersion,
		Proxys:          DefaultProxys(),
		Channel:         DefaultChannel,
	}
}

// WithLogger sets the logger used for diagnostic output.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a Store for version.json inside appDir.
func New(appDir string, opts ...Option) *Store {
	s := &Store{
		path:   filepath.Join(appDir, FileName),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithPrefix("versionstore")
	return s
}

// Path returns the location of version.json.
func (s *Store) Path() string {
	return s.path
}

// Load returns the record. A missing file is replaced by the default record,
// which is persisted before returning. An existing file that cannot be parsed
// yields a *CorruptStateError and is left untouched.
func (s *Store) Load() (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if errors.Is(err, fs.ErrNotExist) {
		rec := DefaultRecord()
		if err := s.writeRecord(nil, rec); err != nil {
			return Record{}, fmt.Errorf("creating default version record: %w", err)
		}
		s.logger.Debug("created default version record", "path", s.path)
		return rec, nil
	}
	if err != nil {
		return Record{}, err
	}

	return s.decode(doc)
}

// Save replaces the modeled fields of the record on disk. Unknown top-level
// keys already present in the document are preserved.
func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		var corrupt *CorruptStateError
		if !errors.As(err, &corrupt) {
			return err
		}
		// A corrupt document has nothing worth preserving.
		s.logger.Warn("overwriting corrupt version record", "path", s.path)
		doc = nil
	}

	return s.writeRecord(doc, rec)
}

// UpdateAnnouncement rewrites only the Announcement field.
func (s *Store) UpdateAnnouncement(text string) error {
	return s.update(keyAnnouncement, text)
}

// UpdateProxyList rewrites only the Proxys field.
func (s *Store) UpdateProxyList(proxys []string) error {
	if proxys == nil {
		proxys = []string{}
	}
	return s.update(keyProxys, proxys)
}

// UpdateChannel rewrites only the channel field.
func (s *Store) UpdateChannel(channel string) error {
	return s.update(keyChannel, channel)
}

// update performs a read-modify-write of one key. A missing document is
// created from the default record first.
func (s *Store) update(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if errors.Is(err, fs.ErrNotExist) {
		doc, err = encodeRecord(nil, DefaultRecord())
	}
	if err != nil {
		return err
	}

	raw, err := marshalValue(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	doc[key] = raw

	return s.writeDocument(doc)
}

func (s *Store) readDocument() (document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptStateError{Path: s.path, Err: err}
	}
	if doc == nil {
		// The literal "null" decodes without error.
		return nil, &CorruptStateError{Path: s.path, Err: errors.New("document is null")}
	}
	return doc, nil
}

// decode maps the raw document onto a Record, filling defaults for absent keys.
func (s *Store) decode(doc document) (Record, error) {
	rec := DefaultRecord()
	fields := []struct {
		key string
		dst any
	}{
		{keyVersion, &rec.Version},
		{keyResourceVersion, &rec.ResourceVersion},
		{keyAnnouncement, &rec.Announcement},
		{keyChannel, &rec.Channel},
	}
	for _, f := range fields {
		raw, ok := doc[f.key]
		if !ok || bytes.Equal(raw, []byte("null")) {
			continue
		}
		if err := json.Unmarshal(raw, f.dst); err != nil {
			return Record{}, &CorruptStateError{Path: s.path, Err: fmt.Errorf("field %q: %w", f.key, err)}
		}
	}

	if raw, ok := doc[keyProxys]; ok && !bytes.Equal(raw, []byte("null")) {
		var proxys []string
		if err := json.Unmarshal(raw, &proxys); err != nil {
			return Record{}, &CorruptStateError{Path: s.path, Err: fmt.Errorf("field %q: %w", keyProxys, err)}
		}
		rec.Proxys = proxys
	}

	if rec.Version == "" {
		rec.Version = DefaultVersion
	}
	if rec.ResourceVersion == "" {
		rec.ResourceVersion = DefaultVersion
	}
	if rec.Channel == "" {
		rec.Channel = DefaultChannel
	}

	return rec, nil
}

func (s *Store) writeRecord(doc document, rec Record) error {
	doc, err := encodeRecord(doc, rec)
	if err != nil {
		return err
	}
	return s.writeDocument(doc)
}

func encodeRecord(doc document, rec Record) (document, error) {
	if doc == nil {
		doc = document{}
	}
	if rec.Proxys == nil {
		rec.Proxys = []string{}
	}
	values := map[string]any{
		keyVersion:         rec.Version,
		keyResourceVersion: rec.ResourceVersion,
		keyAnnouncement:    rec.Announcement,
		keyProxys:          rec.Proxys,
		keyChannel:         rec.Channel,
	}
	for key, v := range values {
		raw, err := marshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", key, err)
		}
		doc[key] = raw
	}
	return doc, nil
}

func (s *Store) writeDocument(doc document) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding version record: %w", err)
	}

	if err := writeFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing version record: %w", err)
	}
	return nil
}

// marshalValue encodes v without HTML escaping so announcements keep their
// literal angle brackets and ampersands.
func marshalValue(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
