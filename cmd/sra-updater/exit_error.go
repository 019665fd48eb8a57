// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"github.com/starrailassistant/sra-updater/pkg/types"
)

// ExitError is returned from RunE once the failure has been printed; Execute
// turns Code into the process status. Err is nil for a bare status.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return "exit status " + e.Code.String()
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }
