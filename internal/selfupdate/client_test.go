// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestExpandTemplate(t *testing.T) {
	t.Parallel()

	tmpl := "https://api.test/latest?current_version=v{version}&cdk={cdk}&channel={channel}"
	got := ExpandTemplate(tmpl, VersionQuery{Version: "3.0.0", CDK: "a b&c=d", Channel: "beta"})
	want := "https://api.test/latest?current_version=v3.0.0&cdk=a+b%26c%3Dd&channel=beta"
	if got != want {
		t.Errorf("ExpandTemplate() = %q, want %q", got, want)
	}
}

func TestClient_FetchVersion(t *testing.T) {
	t.Parallel()

	srv := jsonServer(t, map[string]any{
		"code": 0,
		"msg":  "success",
		"data": map[string]any{
			"version_name":     "3.1.0",
			"url":              "https://dl.test/sra.zip",
			"sha256":           "ABCDEF",
			"release_note":     "# 3.1.0",
			"filesize":         1024,
			"channel":          "stable",
			"cdk_expired_time": 1767225600,
		},
	})

	info, err := newTestClient().FetchVersion(context.Background(), srv.URL, time.Second)
	if err != nil {
		t.Fatalf("FetchVersion() error: %v", err)
	}

	if info.VersionName != "3.1.0" || info.DownloadURL != "https://dl.test/sra.zip" || info.ExpectedHash != "ABCDEF" {
		t.Errorf("info = %+v", info)
	}
	if info.ReleaseNote != "# 3.1.0" || info.Filesize != 1024 || info.Channel != "stable" {
		t.Errorf("info = %+v", info)
	}
	if !info.CDKExpiry.Equal(time.Unix(1767225600, 0)) {
		t.Errorf("CDKExpiry = %v", info.CDKExpiry)
	}
}

func TestClient_FetchVersion_NoExpiry(t *testing.T) {
	t.Parallel()

	srv := newServer(t, versionHandler(t, "3.1.0", ""))

	info, err := newTestClient().FetchVersion(context.Background(), srv.URL, time.Second)
	if err != nil {
		t.Fatalf("FetchVersion() error: %v", err)
	}
	if !info.CDKExpiry.IsZero() {
		t.Errorf("CDKExpiry = %v, want zero", info.CDKExpiry)
	}
	if info.DownloadURL != "" {
		t.Errorf("DownloadURL = %q, want empty for the generic API", info.DownloadURL)
	}
}

func TestClient_FetchVersion_Status(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		httpStatus int
		code       int
		msg        string
		wantErr    error
		wantMsg    string
	}{
		{"credential in error response", http.StatusForbidden, StatusCDKExpired, "KEY_EXPIRED", ErrCredential, "CDK expired"},
		{"credential in ok response", http.StatusOK, StatusCDKBlocked, "", ErrCredential, "CDK blocked"},
		{"mapped non-credential", http.StatusBadRequest, StatusInvalidChannel, "", ErrRemoteStatus, "invalid channel parameter"},
		{"unmapped keeps server message", http.StatusOK, 9999, "server says no", ErrRemoteStatus, "server says no"},
		{"unmapped without message", http.StatusOK, 9998, "", ErrRemoteStatus, "unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newServer(t, statusHandler(t, tt.httpStatus, tt.code, tt.msg))

			info, err := newTestClient().FetchVersion(context.Background(), srv.URL, time.Second)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FetchVersion() error = %v, want %v", err, tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err, tt.wantMsg)
			}
			if info == nil || info.StatusCode != tt.code {
				t.Errorf("info = %+v, want status code %d", info, tt.code)
			}
		})
	}
}

func TestClient_FetchVersion_HTTPError(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := newTestClient().FetchVersion(context.Background(), srv.URL, time.Second)

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("FetchVersion() error = %v, want *HTTPError 502", err)
	}
}

func TestClient_FetchVersion_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	t.Cleanup(func() { close(release) })

	_, err := newTestClient().FetchVersion(context.Background(), srv.URL, 50*time.Millisecond)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("FetchVersion() error = %v, want ErrNetwork for a per-call timeout", err)
	}
	if errors.Is(err, ErrCancelled) {
		t.Error("a per-call timeout is not a cancellation")
	}
}

func TestClient_FetchVersion_Cancelled(t *testing.T) {
	t.Parallel()

	srv := newServer(t, versionHandler(t, "3.1.0", ""))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient().FetchVersion(ctx, srv.URL, time.Second)
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("FetchVersion() error = %v, want ErrCancelled", err)
	}
}

func TestClient_RequestHeaders(t *testing.T) {
	t.Parallel()

	var got http.Header
	remote := newFakeRemote()
	remote.handle("https://mirror.test/api.json", func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		writeJSON(t, w, map[string]string{"sha256": "aa"})
	})
	client := newTestClient(WithHTTPClient(&http.Client{Transport: remote}), WithUserAgent("SRAUpdater/test"))

	if _, err := client.FetchHashes(context.Background(), "https://mirror.test/api.json?x=1", time.Second); err != nil {
		t.Fatalf("FetchHashes() error: %v", err)
	}

	want := map[string]string{
		"User-Agent":      "SRAUpdater/test",
		"Accept-Language": "zh-CN,zh;q=0.8,en;q=0.6",
		"Referer":         "https://mirror.test",
	}
	for k, v := range want {
		if got.Get(k) != v {
			t.Errorf("header %s = %q, want %q", k, got.Get(k), v)
		}
	}
}

func TestClient_FetchAnnouncement(t *testing.T) {
	t.Parallel()

	srv := jsonServer(t, map[string]any{
		"Announcement": "hello",
		"Proxys":       []string{"https://gh-proxy.test/", ""},
	})

	doc, err := newTestClient().FetchAnnouncement(context.Background(), srv.URL, time.Second)
	if err != nil {
		t.Fatalf("FetchAnnouncement() error: %v", err)
	}
	if doc.Announcement != "hello" || len(doc.Proxys) != 2 || doc.Proxys[1] != "" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestClient_FetchManifest_Malformed(t *testing.T) {
	t.Parallel()

	srv := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`["not", "a", "map"]`))
	})

	_, err := newTestClient().FetchManifest(context.Background(), srv.URL, time.Second)
	if err == nil {
		t.Fatal("FetchManifest() expected error for a non-object manifest")
	}
	if errors.Is(err, ErrNetwork) {
		t.Errorf("decode failure classified as network error: %v", err)
	}
}

func TestClient_UnreachableHost(t *testing.T) {
	t.Parallel()

	client := newFakeRemote().client()

	_, err := client.FetchAnnouncement(context.Background(), "https://nowhere.test/a.json", time.Second)
	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("FetchAnnouncement() error = %v, want *NetworkError", err)
	}
	if netErr.URL != "https://nowhere.test/a.json" {
		t.Errorf("URL = %q", netErr.URL)
	}
}

func TestRedactURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"https://api.test/latest?cdk=SECRET&channel=stable", "https://api.test/latest"},
		{"https://dl.test/file.zip#frag", "https://dl.test/file.zip"},
		{"https://p1.test/https://github.test/a.zip", "https://p1.test/https://github.test/a.zip"},
		{"://bad", "<invalid-url>"},
	}

	for _, tt := range tests {
		if got := redactURL(tt.in); got != tt.want {
			t.Errorf("redactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewHTTPClient(t *testing.T) {
	t.Parallel()

	insecure := NewHTTPClient(false).Transport.(*http.Transport)
	if insecure.TLSClientConfig == nil || !insecure.TLSClientConfig.InsecureSkipVerify {
		t.Error("verifyTLS=false should disable certificate checks")
	}

	secure := NewHTTPClient(true).Transport.(*http.Transport)
	if secure.TLSClientConfig != nil && secure.TLSClientConfig.InsecureSkipVerify {
		t.Error("verifyTLS=true must keep certificate checks")
	}
}
