// SPDX-License-Identifier: MPL-2.0

package settings

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/starrailassistant/sra-updater/internal/atomicfile"
)

const keyCDK = "mirrorchyanCDK"

// ErrUndecryptable is returned when the stored CDK cannot be decrypted, for
// example after globals.json was copied from another Windows account.
var ErrUndecryptable = errors.New("stored CDK cannot be decrypted")

type (
	// Cipher encrypts the CDK for storage. Implementations must round-trip
	// the empty string to the empty string.
	Cipher interface {
		Encrypt(plain string) (string, error)
		Decrypt(stored string) (string, error)
	}

	// Store gives access to the CDK inside globals.json.
	Store struct {
		path   string
		cipher Cipher
		logger *log.Logger

		mu     sync.Mutex
		memCDK string
	}

	// Option configures a Store.
	Option func(*Store)
)

// WithCipher overrides the platform cipher.
func WithCipher(c Cipher) Option {
	return func(s *Store) {
		s.cipher = c
	}
}

// WithLogger sets the logger used for diagnostic output.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New creates a Store for <appDir>/data/globals.json.
func New(appDir string, opts ...Option) *Store {
	s := &Store{
		path:   filepath.Join(appDir, "data", "globals.json"),
		cipher: PlatformCipher(),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithPrefix("settings")
	return s
}

// Path returns the location of globals.json.
func (s *Store) Path() string {
	return s.path
}

// CanPersist reports whether globals.json exists, i.e. whether SetCDK will
// write to disk rather than memory.
func (s *Store) CanPersist() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

// CDK returns the decrypted token, or "" when none is configured. A missing
// or unparseable globals.json falls back to the in-memory value.
func (s *Store) CDK() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("ignoring unreadable settings document", "path", s.path, "err", err)
		}
		return s.memCDK, nil
	}

	raw, ok := doc[keyCDK]
	if !ok {
		return s.memCDK, nil
	}
	var stored string
	if err := json.Unmarshal(raw, &stored); err != nil {
		return "", fmt.Errorf("%s: field %q: %w", s.path, keyCDK, err)
	}
	if stored == "" {
		return "", nil
	}

	plain, err := s.cipher.Decrypt(stored)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUndecryptable, err)
	}
	return strings.TrimSpace(plain), nil
}

// SetCDK stores the token. Every other key of globals.json is preserved.
func (s *Store) SetCDK(cdk string) error {
	cdk = strings.TrimSpace(cdk)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Debug("settings document absent, keeping CDK in memory", "path", s.path)
		s.memCDK = cdk
		return nil
	}
	if err != nil {
		return err
	}

	stored, err := s.cipher.Encrypt(cdk)
	if err != nil {
		return fmt.Errorf("encrypting CDK: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(stored); err != nil {
		return fmt.Errorf("encoding CDK: %w", err)
	}
	doc[keyCDK] = bytes.TrimRight(buf.Bytes(), "\n")

	buf.Reset()
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	s.memCDK = cdk
	return nil
}

func (s *Store) readDocument() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	return doc, nil
}

// MaskCDK hides all but the first and last four characters of a token.
func MaskCDK(cdk string) string {
	r := []rune(cdk)
	if len(r) <= 8 {
		return strings.Repeat("*", len(r))
	}
	return string(r[:4]) + strings.Repeat("*", len(r)-8) + string(r[len(r)-4:])
}
