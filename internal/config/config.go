// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/spf13/viper"

	"github.com/starrailassistant/sra-updater/internal/issue"
	"github.com/starrailassistant/sra-updater/pkg/platform"
)

const (
	// AppName is the application name used for the per-user config directory.
	AppName = "sra-updater"
	// ConfigFileName is the name of the per-user config file (without extension).
	ConfigFileName = "config"
	// ConfigFileExt is the config file extension.
	ConfigFileExt = "cue"
	// AppDirConfigFile is the config file looked up inside the application directory.
	AppDirConfigFile = "sra-updater.cue"
	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "SRA_UPDATER"

	// maxConfigFileBytes bounds the config file read into memory.
	maxConfigFileBytes = 1 << 20
)

//go:embed config_schema.cue
var configSchema string

// ConfigDir returns <user config dir>/sra-updater. On Windows a missing
// %APPDATA% falls back to the roaming folder under %USERPROFILE%.
func ConfigDir() (string, error) {
	if configDirOverride != "" {
		return configDirOverride, nil
	}

	base, err := os.UserConfigDir()
	if err != nil && runtime.GOOS == platform.Windows {
		if profile := os.Getenv("USERPROFILE"); profile != "" {
			base, err = filepath.Join(profile, "AppData", "Roaming"), nil
		}
	}
	if err != nil {
		return "", fmt.Errorf("locating the user config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// DefaultAppDir returns the directory of the running executable. The updater
// ships next to SRA.exe, so this is the installation directory.
func DefaultAppDir() (string, error) {
	exe, err := osExecutable()
	if err != nil {
		return "", fmt.Errorf("determining executable path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		resolved = exe
	}
	return filepath.Dir(resolved), nil
}

// loadWithOptions performs option-driven config loading without package-level
// cache state. It returns the resolved config file path ("" for defaults only).
func loadWithOptions(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	resolvedPath := ""

	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Check the path given to --config").
				WithSuggestion("Omit --config to use sra-updater.cue next to SRA.exe").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(fmt.Errorf("config file not found: %s", opts.ConfigFilePath)).
				BuildError()
		}
		resolvedPath = opts.ConfigFilePath
	} else {
		for _, candidate := range configCandidates(opts) {
			if fileExists(candidate) {
				resolvedPath = candidate
				break
			}
		}
	}

	if resolvedPath != "" {
		if err := loadCUEIntoViper(v, resolvedPath); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(resolvedPath).
				WithSuggestion("Fix the CUE syntax or field values reported above").
				WithSuggestion("Delete the file to fall back to the built-in defaults").
				WithIssue(issue.ConfigLoadFailedId).
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("failed to parse config: %w", err)
	}

	if opts.AppDir != "" {
		cfg.AppDir = opts.AppDir
	}
	if cfg.AppDir == "" {
		dir, err := DefaultAppDir()
		if err != nil {
			return nil, "", err
		}
		cfg.AppDir = dir
	}
	if abs, err := filepath.Abs(cfg.AppDir); err == nil {
		cfg.AppDir = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(resolvedPath).
			WithSuggestion("Fix the listed fields in the config file or the SRA_UPDATER_* environment").
			WithIssue(issue.ConfigLoadFailedId).
			Wrap(err).
			BuildError()
	}

	return &cfg, resolvedPath, nil
}

// configCandidates lists the implicit config locations in precedence order.
func configCandidates(opts LoadOptions) []string {
	var candidates []string

	appDir := opts.AppDir
	if appDir == "" {
		if dir, err := DefaultAppDir(); err == nil {
			appDir = dir
		}
	}
	if appDir != "" {
		candidates = append(candidates, filepath.Join(appDir, AppDirConfigFile))
	}

	cfgDir := opts.ConfigDirPath
	if cfgDir == "" {
		if dir, err := ConfigDir(); err == nil {
			cfgDir = dir
		}
	}
	if cfgDir != "" {
		candidates = append(candidates, filepath.Join(cfgDir, ConfigFileName+"."+ConfigFileExt))
	}

	return candidates
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("app_dir", d.AppDir)
	v.SetDefault("no_proxy", d.NoProxy)
	v.SetDefault("verify_tls", d.VerifyTLS)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("target_process", d.TargetProcess)
	v.SetDefault("process_settle", d.ProcessSettle)
	v.SetDefault("timeouts.version_check", d.Timeouts.VersionCheck)
	v.SetDefault("timeouts.download", d.Timeouts.Download)
	v.SetDefault("timeouts.hash_fetch", d.Timeouts.HashFetch)
	v.SetDefault("endpoints.version_check", d.Endpoints.VersionCheck)
	v.SetDefault("endpoints.resource_version_check", d.Endpoints.ResourceVersionCheck)
	v.SetDefault("endpoints.app_download", d.Endpoints.AppDownload)
	v.SetDefault("endpoints.resource_download", d.Endpoints.ResourceDownload)
	v.SetDefault("endpoints.hash_api", d.Endpoints.HashAPI)
	v.SetDefault("endpoints.hash_manifest", d.Endpoints.HashManifest)
	v.SetDefault("endpoints.announcement", d.Endpoints.Announcement)
	v.SetDefault("endpoints.repair_base", d.Endpoints.RepairBase)
	v.SetDefault("extract.tool", d.Extract.Tool)
	v.SetDefault("extract.use_shell", d.Extract.UseShell)
	v.SetDefault("integrity.workers", d.Integrity.Workers)
	v.SetDefault("ui.verbose", d.UI.Verbose)
	v.SetDefault("ui.theme", d.UI.Theme)
}

// loadCUEIntoViper parses a CUE file, validates it against the #Config schema,
// and merges its contents into Viper.
//
// Concrete(false) is used because every field is optional; Viper supplies the
// defaults for anything the file leaves out.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if len(data) > maxConfigFileBytes {
		return fmt.Errorf("%s: file size %d bytes exceeds maximum %d bytes", path, len(data), maxConfigFileBytes)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileString(configSchema)
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return formatCUEError(userValue.Err(), path)
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return formatCUEError(err, path)
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return formatCUEError(err, path)
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}

	return nil
}

// formatCUEError flattens CUE errors into "<file>: <path>: <message>" lines.
func formatCUEError(err error, filePath string) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return fmt.Errorf("%s: %w", filePath, err)
	}

	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		path := strings.Join(cueerrors.Path(e), ".")
		msg := e.Error()
		if path != "" && !strings.HasPrefix(msg, path) {
			msg = path + ": " + msg
		}
		lines = append(lines, msg)
	}

	if len(lines) == 1 {
		return fmt.Errorf("%s: %s", filePath, lines[0])
	}
	return fmt.Errorf("%s: validation failed:\n  %s", filePath, strings.Join(lines, "\n  "))
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
