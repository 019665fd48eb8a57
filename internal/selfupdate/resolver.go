// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/starrailassistant/sra-updater/internal/config"
	"github.com/starrailassistant/sra-updater/internal/versionstore"
)

// Decision kinds.
const (
	UpToDate DecisionKind = iota
	AppUpdateAvailable
	ResourceUpdateAvailable
	AnnouncementChanged
)

type (
	// DecisionKind tags a Decision.
	DecisionKind int

	// Decision is the outcome of one version check.
	Decision struct {
		Kind DecisionKind
		// Remote is set for both update kinds.
		Remote *RemoteVersionInfo
		// Candidates are the download URLs in priority order.
		Candidates []string
		// Licensed is true when Candidates holds the licensed-API URL.
		Licensed bool
		// Announcement and Proxys carry the fetched announcement document for
		// AnnouncementChanged.
		Announcement string
		Proxys       []string
		// Warnings are non-fatal licensed-API rejections (*CredentialError,
		// *StatusError) and licensed transport failures.
		Warnings []error
	}

	// Resolver decides whether an update is available and where to fetch it.
	Resolver struct {
		client    *Client
		endpoints config.Endpoints
		timeouts  config.Timeouts
		noProxy   bool
		cdk       string
		logger    *log.Logger
	}

	// kindTarget bundles the per-kind endpoints and local version.
	kindTarget struct {
		kind          DecisionKind
		checkTemplate string
		downloadTmpl  string
		local         string
	}
)

func (k DecisionKind) String() string {
	switch k {
	case UpToDate:
		return "up to date"
	case AppUpdateAvailable:
		return "app update"
	case ResourceUpdateAvailable:
		return "resource update"
	case AnnouncementChanged:
		return "announcement changed"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// UpdateAvailable reports whether the decision requires a download.
func (d *Decision) UpdateAvailable() bool {
	return d.Kind == AppUpdateAvailable || d.Kind == ResourceUpdateAvailable
}

// NewResolver creates a Resolver. cdk is the licensed-API token; empty
// disables the licensed path.
func NewResolver(client *Client, cfg *config.Config, cdk string) *Resolver {
	return &Resolver{
		client:    client,
		endpoints: cfg.Endpoints,
		timeouts:  cfg.Timeouts,
		noProxy:   cfg.NoProxy,
		cdk:       strings.TrimSpace(cdk),
		logger:    client.logger.WithPrefix("resolver"),
	}
}

// CheckVersion compares local against the published versions. An app update
// takes precedence over a resource update; the resource update is picked up
// by the next check. With force, an app version that is not newer is still
// offered as an update.
func (r *Resolver) CheckVersion(ctx context.Context, local versionstore.Record, force bool) (*Decision, error) {
	channel := local.Channel
	if channel == "" {
		channel = versionstore.DefaultChannel
	}

	d := &Decision{}
	licensed := r.cdk != ""

	targets := []kindTarget{
		{AppUpdateAvailable, r.endpoints.VersionCheck, r.endpoints.AppDownload, local.Version},
		{ResourceUpdateAvailable, r.endpoints.ResourceVersionCheck, r.endpoints.ResourceDownload, local.ResourceVersion},
	}

	for _, target := range targets {
		info, fromLicensed, err := r.query(ctx, target, channel, &licensed, d)
		if err != nil {
			return nil, err
		}

		newer, err := IsNewer(info.VersionName, target.local)
		if err != nil {
			return nil, fmt.Errorf("checking %s: %w", target.kind, err)
		}
		r.logger.Info("version check", "kind", target.kind, "local", target.local, "remote", info.VersionName)

		if !newer && (target.kind != AppUpdateAvailable || !force) {
			continue
		}

		d.Kind = target.kind
		d.Remote = info
		if fromLicensed && info.DownloadURL != "" {
			d.Licensed = true
			d.Candidates = []string{info.DownloadURL}
		} else {
			templateURL := expandDownloadTemplate(target.downloadTmpl, info.VersionName)
			d.Candidates = BuildCandidates(templateURL, local.Proxys, r.noProxy)
		}
		return d, nil
	}

	doc, err := r.client.FetchAnnouncement(ctx, r.endpoints.Announcement, r.timeouts.VersionCheck)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			return nil, err
		}
		r.logger.Warn("fetching announcement", "url", redactURL(r.endpoints.Announcement), "err", err)
		d.Kind = UpToDate
		return d, nil
	}

	proxysChanged := len(doc.Proxys) > 0 && !slices.Equal(doc.Proxys, local.Proxys)
	if doc.Announcement != local.Announcement || proxysChanged {
		d.Kind = AnnouncementChanged
		d.Announcement = doc.Announcement
		d.Proxys = doc.Proxys
		return d, nil
	}

	d.Kind = UpToDate
	return d, nil
}

// query asks the licensed API first while *licensed is set, then falls back
// to the generic query. A licensed failure of any kind clears *licensed so
// the licensed API is not tried again during this check.
func (r *Resolver) query(ctx context.Context, target kindTarget, channel string, licensed *bool, d *Decision) (*RemoteVersionInfo, bool, error) {
	q := VersionQuery{Version: target.local, Channel: channel}

	if *licensed {
		q.CDK = r.cdk
		info, err := r.client.FetchVersion(ctx, ExpandTemplate(target.checkTemplate, q), r.timeouts.VersionCheck)
		switch {
		case err == nil:
			return info, true, nil
		case errors.Is(err, ErrCancelled):
			return nil, false, err
		default:
			r.logger.Warn("licensed download unavailable, using mirrors", "kind", target.kind, "err", err)
			d.Warnings = append(d.Warnings, err)
			*licensed = false
		}
		q.CDK = ""
	}

	info, err := r.client.FetchVersion(ctx, ExpandTemplate(target.checkTemplate, q), r.timeouts.VersionCheck)
	if err != nil {
		return nil, false, fmt.Errorf("checking %s: %w", target.kind, err)
	}
	return info, false, nil
}

// BuildCandidates prefixes templateURL with every proxy in order. The empty
// proxy stands for a direct download. noProxy or an empty list yields the
// direct URL only.
func BuildCandidates(templateURL string, proxys []string, noProxy bool) []string {
	if noProxy || len(proxys) == 0 {
		return []string{templateURL}
	}
	candidates := make([]string, 0, len(proxys))
	for _, p := range proxys {
		candidates = append(candidates, p+templateURL)
	}
	return candidates
}

func expandDownloadTemplate(tmpl, version string) string {
	return strings.ReplaceAll(tmpl, "{version}", url.PathEscape(version))
}
