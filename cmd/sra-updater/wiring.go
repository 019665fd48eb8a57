// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"slices"

	"github.com/starrailassistant/sra-updater/internal/config"
	"github.com/starrailassistant/sra-updater/internal/process"
	"github.com/starrailassistant/sra-updater/internal/selfupdate"
	"github.com/starrailassistant/sra-updater/internal/settings"
	"github.com/starrailassistant/sra-updater/internal/tui"
	"github.com/starrailassistant/sra-updater/internal/versionstore"
)

// proxyResolver prepends --proxy prefixes to the recorded mirror list. The
// record passed to the resolver is a copy, so the extra prefixes are never
// written back to version.json.
type proxyResolver struct {
	next  selfupdate.VersionChecker
	extra []string
}

func (r proxyResolver) CheckVersion(ctx context.Context, local versionstore.Record, force bool) (*selfupdate.Decision, error) {
	local.Proxys = slices.Concat(r.extra, local.Proxys)
	return r.next.CheckVersion(ctx, local, force)
}

func (a *App) theme() tui.Theme {
	if a.cfg == nil || a.cfg.UI.Theme == "" {
		return tui.ThemeDefault
	}
	return tui.Theme(a.cfg.UI.Theme)
}

func (a *App) client(cfg *config.Config) *selfupdate.Client {
	return selfupdate.NewClient(
		selfupdate.WithHTTPClient(selfupdate.NewHTTPClient(cfg.VerifyTLS)),
		selfupdate.WithUserAgent(cfg.UserAgent),
		selfupdate.WithLogger(a.logger),
	)
}

func (a *App) coordinator(cfg *config.Config) *process.Coordinator {
	return process.NewCoordinator(
		process.WithLogger(a.logger),
		process.WithWorkDir(cfg.AppDir),
	)
}

func (a *App) versionStore(cfg *config.Config) *versionstore.Store {
	return versionstore.New(cfg.AppDir, versionstore.WithLogger(a.logger))
}

func (a *App) settingsStore(cfg *config.Config) *settings.Store {
	return settings.New(cfg.AppDir, settings.WithLogger(a.logger))
}

// cdk returns the configured licensed-API token. An undecryptable token is
// reported and treated as absent.
func (a *App) cdk(cfg *config.Config) string {
	cdk, err := a.settingsStore(cfg).CDK()
	if err != nil {
		if errors.Is(err, settings.ErrUndecryptable) {
			a.logger.Warn("stored CDK cannot be decrypted, re-enter it with 'sra-updater settings'")
		} else {
			a.logger.Warn("reading CDK", "err", err)
		}
		return ""
	}
	return cdk
}

// newPipeline assembles the update pipeline for cfg. onState may be nil.
func (a *App) newPipeline(cfg *config.Config, onState func(from, to selfupdate.State)) *selfupdate.Pipeline {
	client := a.client(cfg)

	var resolver selfupdate.VersionChecker = selfupdate.NewResolver(client, cfg, a.cdk(cfg))
	if len(a.flags.proxies) > 0 {
		resolver = proxyResolver{next: resolver, extra: a.flags.proxies}
	}

	deps := selfupdate.Dependencies{
		Store:      a.versionStore(cfg),
		Resolver:   resolver,
		Downloader: selfupdate.NewDownloader(client, cfg.Timeouts.Download),
		Hashes:     selfupdate.NewVerifier(client, cfg.Endpoints.HashAPI, cfg.Timeouts.HashFetch),
		Processes:  a.coordinator(cfg),
	}
	return selfupdate.NewPipeline(cfg, deps,
		selfupdate.WithStateHook(onState),
		selfupdate.WithPipelineLogger(a.logger),
	)
}

// newIntegrityChecker assembles the checker for cfg.
func (a *App) newIntegrityChecker(cfg *config.Config) *selfupdate.IntegrityChecker {
	client := a.client(cfg)
	return selfupdate.NewIntegrityChecker(cfg, client,
		selfupdate.NewDownloader(client, cfg.Timeouts.Download),
		selfupdate.NewVerifier(client, cfg.Endpoints.HashAPI, cfg.Timeouts.HashFetch),
		a.coordinator(cfg),
	)
}
