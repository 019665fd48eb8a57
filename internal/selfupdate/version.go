// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/mod/semver"
)

// ErrInvalidVersion marks a version string that semver cannot parse, even
// after adding the "v" prefix.
var ErrInvalidVersion = errors.New("invalid semantic version")

// normalizeVersion turns "3.1.0" and "v3.1.0" alike into the "v3.1.0" form
// golang.org/x/mod/semver expects.
func normalizeVersion(v string) (string, error) {
	norm := strings.TrimSpace(v)
	if !strings.HasPrefix(norm, "v") {
		norm = "v" + norm
	}
	if !semver.IsValid(norm) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	return norm, nil
}

// bareVersion strips surrounding space and a leading "v", giving the form
// version.json stores and the check templates expand.
func bareVersion(v string) string {
	return strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// IsNewer reports whether remote sorts strictly greater than local under
// semantic-version precedence. An unparseable remote version is an error; an
// unparseable local version sorts below every valid one, so any valid remote
// is newer.
func IsNewer(remote, local string) (bool, error) {
	r, err := normalizeVersion(remote)
	if err != nil {
		return false, fmt.Errorf("remote version: %w", err)
	}
	l, err := normalizeVersion(local)
	if err != nil {
		return true, nil //nolint:nilerr // A broken local version never blocks an update.
	}
	return semver.Compare(r, l) > 0, nil
}
