// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNetwork is wrapped by NetworkError.
	ErrNetwork = errors.New("network failure")

	// ErrHTTPStatus is wrapped by HTTPError.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrIntegrityMismatch indicates the computed SHA-256 hash does not match the expected hash.
	ErrIntegrityMismatch = errors.New("integrity mismatch")

	// ErrAllCandidatesExhausted is wrapped by ExhaustedError.
	ErrAllCandidatesExhausted = errors.New("all download candidates exhausted")

	// ErrExtractionToolMissing is wrapped by ExtractionToolMissingError.
	ErrExtractionToolMissing = errors.New("extraction tool missing")

	// ErrCredential is wrapped by CredentialError.
	ErrCredential = errors.New("licensed credential rejected")

	// ErrRemoteStatus is wrapped by StatusError.
	ErrRemoteStatus = errors.New("remote reported an error status")

	// ErrCancelled indicates the caller cancelled the operation.
	ErrCancelled = errors.New("update cancelled")

	// ErrHashUnavailable indicates no expected hash could be obtained from the
	// trusted hash source. Verification is never skipped.
	ErrHashUnavailable = errors.New("trusted hash source unavailable")

	// ErrExtractionLaunch indicates the extraction tool exists but could not be started.
	ErrExtractionLaunch = errors.New("failed to launch extraction tool")

	// ErrPipelineBusy is returned when Run is called while another run is in flight.
	ErrPipelineBusy = errors.New("an update is already in progress")
)

type (
	// NetworkError is a transport-level failure or per-call timeout.
	NetworkError struct {
		URL string
		Err error
	}

	// HTTPError is a non-success HTTP status.
	HTTPError struct {
		URL        string
		StatusCode int
	}

	// ChecksumError provides details about a checksum verification failure.
	// It wraps ErrIntegrityMismatch so callers can use errors.Is for classification.
	ChecksumError struct {
		Filename string
		Expected string
		Got      string
	}

	// Attempt records one failed download candidate.
	Attempt struct {
		URL string
		Err error
	}

	// ExhaustedError lists every candidate that was tried.
	ExhaustedError struct {
		Attempts []Attempt
	}

	// ExtractionToolMissingError carries the archive path so the user can
	// extract it by hand.
	ExtractionToolMissingError struct {
		ToolPath    string
		ArchivePath string
	}

	// CredentialError is a licensed-API rejection of the configured CDK.
	CredentialError struct {
		Code    int
		Message string
	}

	// StatusError is any other non-zero status code from the version-check API.
	StatusError struct {
		Code    int
		Message string
	}
)

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request to %s failed: %v", redactURL(e.URL), e.Err)
}

// Unwrap exposes both ErrNetwork and the transport error.
func (e *NetworkError) Unwrap() []error { return []error{ErrNetwork, e.Err} }

func (e *HTTPError) Error() string {
	return fmt.Sprintf("request to %s: unexpected status %d", redactURL(e.URL), e.StatusCode)
}

// Unwrap returns ErrHTTPStatus so callers can use errors.Is.
func (e *HTTPError) Unwrap() error { return ErrHTTPStatus }

// Error returns a human-readable description of the checksum mismatch,
// showing both expected and actual hash values for debugging.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s\nExpected: %s\nGot:      %s", e.Filename, e.Expected, e.Got)
}

// Unwrap returns ErrIntegrityMismatch so callers can use errors.Is.
func (e *ChecksumError) Unwrap() error { return ErrIntegrityMismatch }

func (e *ExhaustedError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrAllCandidatesExhausted.Error() + ": no candidates"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s after %d attempt(s):", ErrAllCandidatesExhausted, len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "\n  %s: %v", redactURL(a.URL), a.Err)
	}
	return b.String()
}

// Unwrap returns ErrAllCandidatesExhausted so callers can use errors.Is.
func (e *ExhaustedError) Unwrap() error { return ErrAllCandidatesExhausted }

func (e *ExtractionToolMissingError) Error() string {
	return fmt.Sprintf("extraction tool %s not found; extract %s into the application directory manually", e.ToolPath, e.ArchivePath)
}

// Unwrap returns ErrExtractionToolMissing so callers can use errors.Is.
func (e *ExtractionToolMissingError) Unwrap() error { return ErrExtractionToolMissing }

func (e *CredentialError) Error() string {
	return fmt.Sprintf("licensed download rejected (code %d): %s", e.Code, e.Message)
}

// Unwrap returns ErrCredential so callers can use errors.Is.
func (e *CredentialError) Unwrap() error { return ErrCredential }

func (e *StatusError) Error() string {
	return fmt.Sprintf("version service returned code %d: %s", e.Code, e.Message)
}

// Unwrap returns ErrRemoteStatus so callers can use errors.Is.
func (e *StatusError) Unwrap() error { return ErrRemoteStatus }

// isFallbackError reports whether err should move the pipeline on to the
// next download candidate.
func isFallbackError(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrHTTPStatus)
}
