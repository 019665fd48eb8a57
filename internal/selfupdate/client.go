// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// maxJSONResponseBytes is the upper bound on JSON API response size (10 MB).
	// Prevents unbounded memory consumption from malicious or malformed responses.
	maxJSONResponseBytes = 10 << 20

	defaultUserAgent = "SRAUpdater"
	acceptLanguage   = "zh-CN,zh;q=0.8,en;q=0.6"
)

type (
	// VersionQuery fills the placeholders of a version-check URL template.
	VersionQuery struct {
		Version string
		CDK     string
		Channel string
	}

	// RemoteVersionInfo is the decoded answer of one version-check call.
	RemoteVersionInfo struct {
		VersionName string
		ReleaseNote string
		// DownloadURL is only set by the licensed API. Empty means the
		// download URL is derived from the release template.
		DownloadURL  string
		ExpectedHash string
		// CDKExpiry is the zero time when the service did not report one.
		CDKExpiry     time.Time
		Filesize      int64
		Channel       string
		StatusCode    int
		StatusMessage string
	}

	// AnnouncementDoc is the announcement document merged into version.json.
	AnnouncementDoc struct {
		Announcement string   `json:"Announcement"`
		Proxys       []string `json:"Proxys"`
	}

	// HashDoc is the trusted hash API response.
	HashDoc struct {
		SHA256         string `json:"sha256"`
		ResourceSHA256 string `json:"resource_sha256"`
	}

	// versionResponse is the JSON wire format of the version-check API.
	versionResponse struct {
		Code int         `json:"code"`
		Msg  string      `json:"msg"`
		Data versionData `json:"data"`
	}

	versionData struct {
		VersionName    string `json:"version_name"`
		VersionNumber  int64  `json:"version_number"`
		URL            string `json:"url"`
		SHA256         string `json:"sha256"`
		Channel        string `json:"channel"`
		OS             string `json:"os"`
		Arch           string `json:"arch"`
		UpdateType     string `json:"update_type"`
		Filesize       int64  `json:"filesize"`
		CDKExpiredTime int64  `json:"cdk_expired_time"`
		ReleaseNote    string `json:"release_note"`
	}

	// Client performs every HTTP call of the updater.
	Client struct {
		httpClient *http.Client
		userAgent  string
		logger     *log.Logger
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)
)

// WithHTTPClient sets a custom HTTP client, useful for tests or proxy configurations.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) {
		if ua != "" {
			cl.userAgent = ua
		}
	}
}

// WithLogger sets the logger. Components built on the client derive
// prefixed children from it.
func WithLogger(l *log.Logger) ClientOption {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient creates a Client. Defaults: http.DefaultClient, user agent
// "SRAUpdater", log.Default().
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		userAgent:  defaultUserAgent,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewHTTPClient returns an HTTP client with its own transport. With
// verifyTLS false certificate checks are disabled (--no-verify).
func NewHTTPClient(verifyTLS bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !verifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // Explicit user opt-out.
	}
	return &http.Client{Transport: transport}
}

// ExpandTemplate substitutes {version}, {cdk} and {channel} in tmpl. Values
// are query-escaped.
func ExpandTemplate(tmpl string, q VersionQuery) string {
	return strings.NewReplacer(
		"{version}", url.QueryEscape(q.Version),
		"{cdk}", url.QueryEscape(q.CDK),
		"{channel}", url.QueryEscape(q.Channel),
	).Replace(tmpl)
}

// FetchVersion queries the version-check API. A non-zero status code is
// returned as *CredentialError or *StatusError together with the partially
// filled info, also when the service sends it with a non-200 HTTP status.
func (c *Client) FetchVersion(ctx context.Context, rawURL string, timeout time.Duration) (*RemoteVersionInfo, error) {
	reqCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.get(reqCtx, rawURL)
	if err != nil {
		return nil, classifyTransportError(ctx, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseBytes))
	if err != nil {
		return nil, classifyTransportError(ctx, rawURL, err)
	}

	var vr versionResponse
	decodeErr := json.Unmarshal(body, &vr)

	if resp.StatusCode != http.StatusOK {
		// The service reports CDK problems as JSON with an error status.
		if decodeErr == nil && vr.Code != StatusOK {
			info := toRemoteInfo(vr)
			return info, statusError(vr.Code, vr.Msg)
		}
		return nil, &HTTPError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding version response from %s: %w", redactURL(rawURL), decodeErr)
	}

	info := toRemoteInfo(vr)
	if vr.Code != StatusOK {
		return info, statusError(vr.Code, vr.Msg)
	}
	return info, nil
}

// FetchAnnouncement downloads the announcement document.
func (c *Client) FetchAnnouncement(ctx context.Context, rawURL string, timeout time.Duration) (*AnnouncementDoc, error) {
	var doc AnnouncementDoc
	if err := c.getJSON(ctx, rawURL, timeout, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FetchHashes downloads the trusted archive hashes.
func (c *Client) FetchHashes(ctx context.Context, rawURL string, timeout time.Duration) (*HashDoc, error) {
	var doc HashDoc
	if err := c.getJSON(ctx, rawURL, timeout, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FetchManifest downloads the relative-path to hex-digest manifest.
func (c *Client) FetchManifest(ctx context.Context, rawURL string, timeout time.Duration) (map[string]string, error) {
	manifest := map[string]string{}
	if err := c.getJSON(ctx, rawURL, timeout, &manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, timeout time.Duration, out any) error {
	reqCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.get(reqCtx, rawURL)
	if err != nil {
		return classifyTransportError(ctx, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return &HTTPError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(out); err != nil {
		if reqCtx.Err() != nil {
			return classifyTransportError(ctx, rawURL, err)
		}
		return fmt.Errorf("decoding response from %s: %w", redactURL(rawURL), err)
	}
	return nil
}

// get creates and executes a GET request with the common headers. The
// Referer is the request's own origin, which some mirrors require.
func (c *Client) get(ctx context.Context, reqURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", acceptLanguage)
	req.Header.Set("Referer", req.URL.Scheme+"://"+req.URL.Host)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	return resp, nil
}

// classifyTransportError turns a transport failure into ErrCancelled when the
// caller's own context ended, and into *NetworkError otherwise. A per-call
// timeout is a NetworkError.
func classifyTransportError(parent context.Context, rawURL string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, parent.Err())
	}
	return &NetworkError{URL: rawURL, Err: err}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func toRemoteInfo(vr versionResponse) *RemoteVersionInfo {
	info := &RemoteVersionInfo{
		VersionName:   vr.Data.VersionName,
		ReleaseNote:   vr.Data.ReleaseNote,
		DownloadURL:   vr.Data.URL,
		ExpectedHash:  vr.Data.SHA256,
		Filesize:      vr.Data.Filesize,
		Channel:       vr.Data.Channel,
		StatusCode:    vr.Code,
		StatusMessage: vr.Msg,
	}
	if vr.Data.CDKExpiredTime > 0 {
		info.CDKExpiry = time.Unix(vr.Data.CDKExpiredTime, 0)
	}
	return info
}

// redactURL strips query parameters and fragments from a URL for safe inclusion
// in error messages, preventing accidental exposure of tokens or sensitive data.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
