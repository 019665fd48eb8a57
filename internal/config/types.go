// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
var ErrInvalidConfig = errors.New("invalid config")

type (
	// Config is the updater configuration. It is passed explicitly to every
	// component that needs it; nothing reads it from package state.
	Config struct {
		// AppDir is the SRA installation directory holding version.json,
		// data/globals.json, tools/ and temp/.
		AppDir string `mapstructure:"app_dir"`
		// NoProxy skips the proxy list and downloads from the template URL only.
		NoProxy bool `mapstructure:"no_proxy"`
		// VerifyTLS controls certificate verification for every request.
		VerifyTLS bool `mapstructure:"verify_tls"`
		// UserAgent is sent with every request.
		UserAgent string `mapstructure:"user_agent"`
		// TargetProcess is the image name of the application being updated.
		TargetProcess string `mapstructure:"target_process"`
		// ProcessSettle is the pause after terminating TargetProcess so the
		// OS releases its file handles.
		ProcessSettle time.Duration `mapstructure:"process_settle"`

		Timeouts  Timeouts        `mapstructure:"timeouts"`
		Endpoints Endpoints       `mapstructure:"endpoints"`
		Extract   ExtractConfig   `mapstructure:"extract"`
		Integrity IntegrityConfig `mapstructure:"integrity"`
		UI        UIConfig        `mapstructure:"ui"`
	}

	// Timeouts bound each kind of network call separately.
	Timeouts struct {
		VersionCheck time.Duration `mapstructure:"version_check"`
		// Download bounds one download attempt against one candidate URL.
		Download  time.Duration `mapstructure:"download"`
		HashFetch time.Duration `mapstructure:"hash_fetch"`
	}

	// Endpoints holds the remote URLs. Templates may contain the placeholders
	// {version}, {cdk} and {channel}.
	Endpoints struct {
		VersionCheck         string `mapstructure:"version_check"`
		ResourceVersionCheck string `mapstructure:"resource_version_check"`
		AppDownload          string `mapstructure:"app_download"`
		ResourceDownload     string `mapstructure:"resource_download"`
		HashAPI              string `mapstructure:"hash_api"`
		HashManifest         string `mapstructure:"hash_manifest"`
		Announcement         string `mapstructure:"announcement"`
		RepairBase           string `mapstructure:"repair_base"`
	}

	// ExtractConfig describes the external archive tool.
	ExtractConfig struct {
		// Tool is an absolute path, a path relative to AppDir, or a bare
		// executable name resolved through PATH.
		Tool     string `mapstructure:"tool"`
		UseShell bool   `mapstructure:"use_shell"`
	}

	// IntegrityConfig tunes the file integrity check.
	IntegrityConfig struct {
		Workers int `mapstructure:"workers"`
	}

	// UIConfig holds presentation settings.
	UIConfig struct {
		Verbose bool   `mapstructure:"verbose"`
		Theme   string `mapstructure:"theme"`
	}

	// InvalidConfigError lists every field that failed validation.
	InvalidConfigError struct {
		FieldErrors []string
	}
)

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s", strings.Join(e.FieldErrors, "; "))
}

// Unwrap returns ErrInvalidConfig so callers can use errors.Is.
func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// DefaultConfig returns the built-in configuration. AppDir is left empty and
// resolved at load time.
func DefaultConfig() *Config {
	return &Config{
		VerifyTLS:     true,
		UserAgent:     "SRAUpdater",
		TargetProcess: "SRA.exe",
		ProcessSettle: 2 * time.Second,
		Timeouts: Timeouts{
			VersionCheck: 10 * time.Second,
			Download:     10 * time.Minute,
			HashFetch:    20 * time.Second,
		},
		Endpoints: Endpoints{
			VersionCheck:         "https://mirrorchyan.com/api/resources/StarRailAssistant/latest?current_version=v{version}&cdk={cdk}&user_agent=SRAUpdater&channel={channel}",
			ResourceVersionCheck: "https://mirrorchyan.com/api/resources/StarRailAssistantResource/latest?current_version=v{version}&cdk={cdk}&user_agent=SRAUpdater&channel={channel}",
			AppDownload:          "https://github.com/Shasnow/StarRailAssistant/releases/download/{version}/StarRailAssistant_{version}.zip",
			ResourceDownload:     "https://github.com/Shasnow/SRAresource/releases/download/{version}/SRAresource_{version}.zip",
			HashAPI:              "https://gitee.com/yukikage/sraresource/raw/main/SRA/api.json",
			HashManifest:         "https://gitee.com/yukikage/sraresource/raw/main/SRA/hash.json",
			Announcement:         "https://gitee.com/yukikage/sraresource/raw/main/SRA/announcement.json",
			RepairBase:           "https://resource.starrailassistant.top/SRA",
		},
		Extract: ExtractConfig{
			Tool:     filepath.Join("tools", "7z.exe"),
			UseShell: true,
		},
		Integrity: IntegrityConfig{
			Workers: 4,
		},
		UI: UIConfig{
			Theme: "default",
		},
	}
}

// Validate checks constraints that apply after defaults and env overrides
// are merged. The CUE schema only sees the file.
func (c *Config) Validate() error {
	var errs []string

	if c.AppDir == "" {
		errs = append(errs, "app_dir: must not be empty")
	}
	if strings.TrimSpace(c.TargetProcess) == "" {
		errs = append(errs, "target_process: must not be empty")
	}
	if c.ProcessSettle < 0 {
		errs = append(errs, "process_settle: must not be negative")
	}
	for name, d := range map[string]time.Duration{
		"timeouts.version_check": c.Timeouts.VersionCheck,
		"timeouts.download":      c.Timeouts.Download,
		"timeouts.hash_fetch":    c.Timeouts.HashFetch,
	} {
		if d <= 0 {
			errs = append(errs, name+": must be positive")
		}
	}
	for name, u := range map[string]string{
		"endpoints.version_check": c.Endpoints.VersionCheck,
		"endpoints.app_download":  c.Endpoints.AppDownload,
		"endpoints.hash_api":      c.Endpoints.HashAPI,
	} {
		if !isHTTPURL(u) {
			errs = append(errs, fmt.Sprintf("%s: %q is not an http(s) URL", name, u))
		}
	}
	if strings.TrimSpace(c.Extract.Tool) == "" {
		errs = append(errs, "extract.tool: must not be empty")
	}
	if c.Integrity.Workers < 1 {
		errs = append(errs, "integrity.workers: must be at least 1")
	}

	if len(errs) > 0 {
		// Map iteration order is random; keep messages stable.
		slices.Sort(errs)
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// ExtractToolPath resolves Extract.Tool against AppDir. Bare names without a
// path separator are returned unchanged for PATH lookup.
func (c *Config) ExtractToolPath() string {
	tool := c.Extract.Tool
	if filepath.IsAbs(tool) || !strings.ContainsAny(tool, `/\`) {
		return tool
	}
	return filepath.Join(c.AppDir, tool)
}

// TempDir is the download directory inside AppDir.
func (c *Config) TempDir() string {
	return filepath.Join(c.AppDir, "temp")
}

func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
