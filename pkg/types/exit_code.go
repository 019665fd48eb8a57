// SPDX-License-Identifier: MPL-2.0

package types

import "fmt"

// ExitCode is the process status sra-updater exits with. Scripts that wrap
// the updater (the SRA launcher, scheduled tasks) branch on these values.
type ExitCode int

const (
	// ExitSuccess also covers "already up to date" and a declined prompt.
	ExitSuccess ExitCode = 0
	// ExitUserError covers problems fixable locally: bad config, a rejected
	// CDK, a corrupt version.json, a second updater already running.
	ExitUserError ExitCode = 1
	// ExitTransient covers network failures and exhausted download sources.
	ExitTransient ExitCode = 2
	// ExitIntegrity means a package or repaired file failed verification.
	ExitIntegrity ExitCode = 3
	// ExitManualAction means the archive is on disk but must be extracted by hand.
	ExitManualAction ExitCode = 4
	// ExitInterrupted is 128 + SIGINT.
	ExitInterrupted ExitCode = 130
)

//nolint:gochecknoglobals // read-only lookup table
var exitCodeNames = map[ExitCode]string{
	ExitSuccess:      "success",
	ExitUserError:    "user error",
	ExitTransient:    "transient failure",
	ExitIntegrity:    "integrity failure",
	ExitManualAction: "manual action required",
	ExitInterrupted:  "interrupted",
}

// Retryable reports whether running the same command later may succeed
// without the user changing anything. Mirrors that are still syncing cause
// integrity failures that clear up on their own.
func (c ExitCode) Retryable() bool {
	return c == ExitTransient || c == ExitIntegrity
}

// String renders the code with its meaning, e.g. "2 (transient failure)".
func (c ExitCode) String() string {
	if name, ok := exitCodeNames[c]; ok {
		return fmt.Sprintf("%d (%s)", int(c), name)
	}
	return fmt.Sprintf("%d", int(c))
}
