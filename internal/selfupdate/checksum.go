// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Verifier checks archives against SHA-256 digests. An expected hash that is
// not supplied by the caller is fetched from the trusted hash API; verification
// is never skipped.
type Verifier struct {
	client  *Client
	hashURL string
	timeout time.Duration
	logger  *log.Logger
}

// NewVerifier creates a Verifier backed by the hash API at hashURL.
func NewVerifier(client *Client, hashURL string, timeout time.Duration) *Verifier {
	return &Verifier{
		client:  client,
		hashURL: hashURL,
		timeout: timeout,
		logger:  client.logger.WithPrefix("verify"),
	}
}

// ResolveExpected returns expected lowercased when it is set, and otherwise
// fetches the digest for kind from the hash API. Any failure to obtain a
// well-formed digest wraps ErrHashUnavailable.
func (v *Verifier) ResolveExpected(ctx context.Context, kind DecisionKind, expected string) (string, error) {
	if expected != "" {
		if !isValidHexHash(expected) {
			return "", fmt.Errorf("%w: malformed expected hash %q", ErrHashUnavailable, expected)
		}
		return strings.ToLower(expected), nil
	}

	doc, err := v.client.FetchHashes(ctx, v.hashURL, v.timeout)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return "", err
		}
		v.logger.Error("fetching expected hash", "url", redactURL(v.hashURL), "err", err)
		return "", fmt.Errorf("%w: %w", ErrHashUnavailable, err)
	}

	digest := doc.SHA256
	if kind == ResourceUpdateAvailable {
		digest = doc.ResourceSHA256
	}
	if !isValidHexHash(digest) {
		return "", fmt.Errorf("%w: hash source returned %q for %s", ErrHashUnavailable, digest, kind)
	}
	return strings.ToLower(digest), nil
}

// Verify reports whether the file at path matches expected. A missing file
// is a failed verification, not an error. An empty expected hash is resolved
// through the hash API first.
func (v *Verifier) Verify(ctx context.Context, path, expected string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	resolved, err := v.ResolveExpected(ctx, AppUpdateAvailable, expected)
	if err != nil {
		return false, err
	}

	err = VerifyFile(path, resolved)
	if err == nil {
		return true, nil
	}
	var ce *ChecksumError
	if errors.As(err, &ce) {
		v.logger.Warn("checksum mismatch", "file", path, "expected", ce.Expected, "got", ce.Got)
		return false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// VerifyFile hashes path and compares the digest with expectedHash, ignoring
// case. A difference is reported as a *ChecksumError; I/O failures are
// returned as is.
func VerifyFile(path, expectedHash string) error {
	got, err := ComputeFileHash(path)
	if err != nil {
		return err
	}
	if strings.EqualFold(got, expectedHash) {
		return nil
	}
	return &ChecksumError{Filename: path, Expected: strings.ToLower(expectedHash), Got: got}
}

// ComputeFileHash streams path through SHA-256 and returns the lowercase hex
// digest. Update archives run to hundreds of MiB, so the file is never read
// whole.
func ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // read-only handle

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// isValidHexHash reports whether s looks like a hex SHA-256 digest.
func isValidHexHash(s string) bool {
	if len(s) != 2*sha256.Size {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
