// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	"os"
)

//nolint:gochecknoglobals // test seams
var (
	// configDirOverride replaces ConfigDir's platform lookup when set.
	configDirOverride string

	osExecutable = os.Executable
)

type (
	// LoadOptions are the command-line inputs to loading. Empty fields fall
	// back to the implicit lookup.
	LoadOptions struct {
		// ConfigFilePath is --config; only this file is read when set.
		ConfigFilePath string
		// ConfigDirPath replaces the per-user config directory.
		ConfigDirPath string
		// AppDir is --app-dir. It wins over app_dir in the file and over the
		// executable's directory.
		AppDir string
	}

	// Provider produces the Config for one invocation.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
	}

	fileProvider struct{}
)

// NewProvider returns the Provider used by the CLI: CUE files validated
// against the embedded schema, overlaid with SRA_UPDATER_* variables.
func NewProvider() Provider {
	return fileProvider{}
}

func (fileProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	cfg, _, err := loadWithOptions(ctx, opts)
	return cfg, err
}

// SetConfigDirOverride pins ConfigDir to dir so tests never read the real
// user configuration.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}

// Reset undoes SetConfigDirOverride and restores the executable lookup.
func Reset() {
	configDirOverride = ""
	osExecutable = os.Executable
}
