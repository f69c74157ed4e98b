package gateway

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/update-gateway/internal/config"
	"github.com/oshokin/update-gateway/internal/github"
)

// TestRouterConfigDiagnostic serves the fixed configuration help page for
// every path when no repository identity is configured.
func TestRouterConfigDiagnostic(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Port: config.DefaultPort}
	svc := NewService(cfg, github.NewClient("", ""), nil)

	for _, target := range []string{"/latest.yml", "/download/darwin", "/anything"} {
		rec := doRequest(svc, http.MethodGet, target, nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code, target)
		require.Contains(t, rec.Body.String(), "REPO in the form owner/repo", target)
	}
}

// TestRouterDelegateFallback passes unclaimed paths to the delegate handler.
func TestRouterDelegateFallback(t *testing.T) {
	t.Parallel()

	release := testRelease()
	up := newUpstream(t, release, testContent(), true)

	var delegated []string

	delegate := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delegated = append(delegated, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	cfg := testConfig()
	client := github.NewClient(cfg.Account, cfg.Repository, github.WithBaseURL(up.srv.URL))
	svc := NewService(cfg, client, delegate)

	rec := doRequest(svc, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(svc, http.MethodGet, "/some/static/page", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, []string{"/", "/some/static/page"}, delegated)

	// Claimed paths never reach the delegate.
	rec = doRequest(svc, http.MethodGet, "/latest.yml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, delegated, 2)
}

// TestRouterDiagnosticWithoutDelegate answers unmatched paths with the
// diagnostic page when no delegate is installed.
func TestRouterDiagnosticWithoutDelegate(t *testing.T) {
	t.Parallel()

	release := testRelease()
	up := newUpstream(t, release, testContent(), true)
	svc := newTestService(t, up, nil)

	rec := doRequest(svc, http.MethodGet, "/unclaimed", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "configuration is missing")
}

// TestRouterPathPrefix strips the configured prefix before matching.
func TestRouterPathPrefix(t *testing.T) {
	t.Parallel()

	release := testRelease()
	up := newUpstream(t, release, testContent(), true)

	cfg := testConfig()
	cfg.PathPrefix = "/api/updates"
	svc := newTestService(t, up, cfg)

	rec := doRequest(svc, http.MethodGet, "/api/updates/latest.yml", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1.0.0", requireYAMLField(t, rec.Body.String(), "version"))

	// The bare prefix maps to the root path, which is unmatched.
	rec = doRequest(svc, http.MethodGet, "/api/updates", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

// TestRouterManifestVariants accepts the latest-<variant>.yml naming pattern
// and ignores query strings when matching.
func TestRouterManifestVariants(t *testing.T) {
	t.Parallel()

	release := testRelease()
	up := newUpstream(t, release, testContent(), true)
	svc := newTestService(t, up, nil)

	targets := []string{
		"/latest.yml",
		"/latest-mac.yml",
		"/latest.yml?noCache=1714586096",
		"/update/darwin/0.9.0/latest.yml",
		"/update/win32/0.9.0/latest-setup.yml",
	}
	for _, target := range targets {
		rec := doRequest(svc, http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rec.Code, target)
	}

	// Near misses fall through to the delegate chain.
	misses := []string{
		"/latest.yaml",
		"/latest.yml/extra",
		"/update/darwin/latest.yml",
	}
	for _, target := range misses {
		rec := doRequest(svc, http.MethodGet, target, nil)
		require.Equal(t, http.StatusInternalServerError, rec.Code, target)
	}
}

// TestRouterManifestMethodNotAllowed rejects writes to manifest routes.
func TestRouterManifestMethodNotAllowed(t *testing.T) {
	t.Parallel()

	release := testRelease()
	up := newUpstream(t, release, testContent(), true)
	svc := newTestService(t, up, nil)

	rec := doRequest(svc, http.MethodPost, "/latest.yml", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doRequest(svc, http.MethodPut, "/download/darwin", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// TestRouterReleaseNotFound maps an upstream 404 to a plain 404 response.
func TestRouterReleaseNotFound(t *testing.T) {
	t.Parallel()

	release := testRelease()
	up := newUpstream(t, release, testContent(), true)
	svc := newTestService(t, up, nil)

	rec := doRequest(svc, http.MethodGet, "/download/darwin?tag=v9.9.9", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "Release not found")
}
