// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/starrailassistant/sra-updater/internal/config"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

type (
	// rootFlags are the persistent flags shared by every subcommand.
	rootFlags struct {
		verbose    bool
		configPath string
		appDir     string
		timeout    time.Duration
		noProxy    bool
		noVerify   bool
		proxies    []string
	}

	// App carries what the subcommands share: flags, the config provider and
	// the logger. The config is loaded once per invocation by the root
	// command's PersistentPreRunE.
	App struct {
		flags    rootFlags
		provider config.Provider
		logger   *log.Logger
		cfg      *config.Config
	}
)

// NewApp creates an App that logs to stderr.
func NewApp(provider config.Provider, stderr io.Writer) *App {
	logger := log.NewWithOptions(stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           log.InfoLevel,
	})
	return &App{
		provider: provider,
		logger:   logger,
	}
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// newRootCommand builds the command tree around app.
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "sra-updater",
		Short: "Update and repair StarRailAssistant",
		Long: TitleStyle.Render("sra-updater") + SubtitleStyle.Render(" - update and repair StarRailAssistant") + `

sra-updater checks for new SRA releases, downloads them through the
Mirror酱 licensed API or a list of GitHub mirrors, verifies the SHA-256
digest, stops a running SRA and hands the package to 7-Zip.

` + SubtitleStyle.Render("Examples:") + `
  sra-updater update             Check and install the latest release
  sra-updater update --check     Only report whether an update exists
  sra-updater check --repair     Verify installed files and restore damaged ones
  sra-updater settings           Configure the Mirror酱 CDK and update channel`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := app.load(cmd.Context()); err != nil {
				return failCommand(cmd.ErrOrStderr(), app.logger, "load configuration", err, app.flags.verbose)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVarP(&app.flags.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&app.flags.configPath, "config", "", "config file (default is <app-dir>/sra-updater.cue, then the user config dir)")
	pf.StringVar(&app.flags.appDir, "app-dir", "", "SRA installation directory (default is the updater's directory)")
	pf.DurationVar(&app.flags.timeout, "timeout", 0, "version check request timeout (e.g. 15s)")
	pf.BoolVar(&app.flags.noProxy, "no-proxy", false, "download from the release URL without mirrors")
	pf.StringArrayVar(&app.flags.proxies, "proxy", nil, "extra mirror prefix tried before the recorded ones (repeatable)")
	pf.BoolVar(&app.flags.noVerify, "no-verify", false, "skip TLS certificate verification")

	root.AddCommand(
		newUpdateCommand(app),
		newCheckCommand(app),
		newSettingsCommand(app),
		newVersionCommand(app),
	)
	return root
}

// Execute runs the CLI. This is called by main.main().
func Execute() {
	app := NewApp(config.NewProvider(), os.Stderr)
	log.SetDefault(app.logger)

	if err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
		fang.WithErrorHandler(handleError),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}

// handleError prints errors that no command rendered, such as flag parsing
// failures.
func handleError(w io.Writer, _ fang.Styles, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return
	}
	_, _ = fmt.Fprintln(w, ErrorStyle.Render("Error: ")+err.Error())
}

// load reads the configuration and applies the persistent flags on top.
func (a *App) load(ctx context.Context) error {
	cfg, err := a.provider.Load(ctx, config.LoadOptions{
		ConfigFilePath: a.flags.configPath,
		AppDir:         a.flags.appDir,
	})
	if err != nil {
		return err
	}

	if a.flags.noProxy {
		cfg.NoProxy = true
	}
	if a.flags.noVerify {
		cfg.VerifyTLS = false
	}
	if a.flags.timeout > 0 {
		cfg.Timeouts.VersionCheck = a.flags.timeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if a.flags.verbose || cfg.UI.Verbose {
		a.flags.verbose = true
		a.logger.SetLevel(log.DebugLevel)
	}
	if !cfg.VerifyTLS {
		a.logger.Warn("TLS certificate verification is disabled")
	}

	a.cfg = cfg
	a.logger.Debug("configuration loaded", "app_dir", cfg.AppDir, "no_proxy", cfg.NoProxy)
	return nil
}
