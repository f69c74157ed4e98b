package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-gateway/internal/config"
	"github.com/oshokin/update-gateway/internal/github"
)

// upstream is a fake release host serving one release and its assets.
type upstream struct {
	t *testing.T
	// release is served as the latest release and by its tag.
	release github.Release
	// content maps asset id to its bytes.
	content map[int64]string
	// redirect makes the asset endpoint issue signed-location redirects.
	redirect bool

	srv *httptest.Server

	mu sync.Mutex
	// fetches counts content requests per asset id.
	fetches map[int64]int
}

// newUpstream starts the fake release host.
func newUpstream(t *testing.T, release github.Release, content map[int64]string, redirect bool) *upstream {
	t.Helper()

	up := &upstream{
		t:        t,
		release:  release,
		content:  content,
		redirect: redirect,
		fetches:  make(map[int64]int),
	}

	up.srv = httptest.NewServer(http.HandlerFunc(up.handle))
	t.Cleanup(up.srv.Close)

	return up
}

func (u *upstream) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/repos/acme/rocket/releases/latest":
		u.writeJSON(w, u.release)
	case path == "/repos/acme/rocket/releases":
		u.writeJSON(w, []github.Release{u.release})
	case strings.HasPrefix(path, "/repos/acme/rocket/releases/tags/"):
		tag := strings.TrimPrefix(path, "/repos/acme/rocket/releases/tags/")
		if tag != u.release.TagName {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}

		u.writeJSON(w, u.release)
	case strings.HasPrefix(path, "/repos/acme/rocket/releases/assets/"):
		id := u.parseID(strings.TrimPrefix(path, "/repos/acme/rocket/releases/assets/"))
		if u.redirect {
			http.Redirect(w, r, u.srv.URL+"/signed/"+strconv.FormatInt(id, 10), http.StatusFound)
			return
		}

		u.serveAsset(w, r, id)
	case strings.HasPrefix(path, "/signed/"):
		u.serveAsset(w, r, u.parseID(strings.TrimPrefix(path, "/signed/")))
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (u *upstream) serveAsset(w http.ResponseWriter, r *http.Request, id int64) {
	content, ok := u.content[id]
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	u.mu.Lock()
	u.fetches[id]++
	u.mu.Unlock()

	// ServeContent supplies Range, Content-Range and 206 handling.
	http.ServeContent(w, r, "asset", time.Unix(0, 0), bytes.NewReader([]byte(content)))
}

// fetchCount returns how often an asset's content was requested.
func (u *upstream) fetchCount(id int64) int {
	u.mu.Lock()
	defer u.mu.Unlock()

	return u.fetches[id]
}

func (u *upstream) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	require.NoError(u.t, json.NewEncoder(w).Encode(payload))
}

func (u *upstream) parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	require.NoError(u.t, err)

	return id
}

// testConfig returns a configured gateway config; mutate per test as needed.
func testConfig() *config.Config {
	return &config.Config{
		Account:    "acme",
		Repository: "rocket",
		Port:       config.DefaultPort,
		Timeout:    5 * time.Second,
	}
}

// newTestService wires a Service against the fake upstream.
func newTestService(t *testing.T, up *upstream, cfg *config.Config) *Service {
	t.Helper()

	if cfg == nil {
		cfg = testConfig()
	}

	client := github.NewClient(cfg.Account, cfg.Repository,
		github.WithBaseURL(up.srv.URL),
		github.WithTimeout(cfg.Timeout))

	return NewService(cfg, client, nil)
}

// testRelease is the default release fixture: a darwin zip and dmg, a
// Windows installer and a Linux AppImage.
func testRelease() github.Release {
	return github.Release{
		TagName:     "v1.0.0",
		PublishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Assets: []github.Asset{
			{ID: 2, Name: "App-1.0.0.dmg", BrowserDownloadURL: "https://cdn.example.com/App-1.0.0.dmg"},
			{ID: 1, Name: "App-1.0.0.zip", BrowserDownloadURL: "https://cdn.example.com/App-1.0.0.zip"},
			{ID: 3, Name: "App-Setup-1.0.0.exe", BrowserDownloadURL: "https://cdn.example.com/App-Setup-1.0.0.exe"},
			{ID: 4, Name: "App-1.0.0.AppImage", BrowserDownloadURL: "https://cdn.example.com/App-1.0.0.AppImage"},
		},
	}
}

// testContent returns content for the default fixture assets.
func testContent() map[int64]string {
	return map[int64]string{
		1: "zip binary content",
		2: "dmg binary content",
		3: "exe binary content",
		4: "appimage binary content",
	}
}

// doRequest runs one request through the service and returns the recorder.
func doRequest(svc *Service, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	svc.ServeHTTP(rec, req)

	return rec
}

// requireYAMLField digs one scalar field out of a rendered manifest.
func requireYAMLField(t *testing.T, body, field string) string {
	t.Helper()

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimLeft(line, " -")
		if strings.HasPrefix(line, field+":") {
			return strings.TrimSpace(strings.TrimPrefix(line, field+":"))
		}
	}

	require.Failf(t, "field not found", "field %q in %q", field, body)

	return ""
}
