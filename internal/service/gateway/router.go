package gateway

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/oshokin/update-gateway/internal/github"
	"github.com/oshokin/update-gateway/internal/logger"
)

// routeMatcher inspects a request and either handles it (true) or passes it
// to the next matcher (false).
type routeMatcher func(w http.ResponseWriter, r *http.Request, path string) bool

var (
	// manifestRootPattern matches /latest.yml and /latest-<variant>.yml.
	// Update clients append cache-busting query parameters; matching is on
	// the path only.
	manifestRootPattern = regexp.MustCompile(`^/latest(?:-[A-Za-z0-9._-]+)?\.yml$`)

	// manifestUpdatePattern matches /update/<platform>/<version>/latest.yml
	// with the same variant suffix. The version segment is accepted but does
	// not pin a release.
	manifestUpdatePattern = regexp.MustCompile(`^/update/([^/]+)/[^/]+/latest(?:-[A-Za-z0-9._-]+)?\.yml$`)
)

// configDiagnostic is served when no repository identity is configured,
// and for unmatched paths when no delegate handler is installed.
const configDiagnostic = `Update gateway configuration is missing.

Set either:
- ACCOUNT and REPOSITORY
  or
- REPO in the form owner/repo

Optional:
- TOKEN (or GITHUB_TOKEN) for private repositories / higher rate limits
- URL (or VERCEL_URL) for externally visible download links
- NOPROXY to serve direct CDN links instead of proxied downloads
`

// ServeHTTP dispatches a request through the ordered matcher list after
// stripping the configured path prefix.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.HasRepo() {
		s.writeConfigDiagnostic(w)
		return
	}

	path := s.routePath(r.URL.Path)

	for _, route := range s.routes {
		if route(w, r, path) {
			return
		}
	}
}

// matchManifest serves the update manifest routes.
func (s *Service) matchManifest(w http.ResponseWriter, r *http.Request, path string) bool {
	platform := PlatformUnknown

	switch {
	case manifestRootPattern.MatchString(path):
		// Platform unspecified: the generic first-asset rule applies.
	case manifestUpdatePattern.MatchString(path):
		platform = ParsePlatform(manifestUpdatePattern.FindStringSubmatch(path)[1])
	default:
		return false
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

		return true
	}

	s.handleManifest(w, r, platform)

	return true
}

// matchDownload serves the download proxy routes:
// /download/<platform>[/<assetName>] with optional tag and asset query
// parameters.
func (s *Service) matchDownload(w http.ResponseWriter, r *http.Request, path string) bool {
	if path != "/download" && !strings.HasPrefix(path, "/download/") {
		return false
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

		return true
	}

	var platformSegment, assetName string

	if rest := strings.Trim(strings.TrimPrefix(path, "/download"), "/"); rest != "" {
		segments := strings.SplitN(rest, "/", 2)

		platformSegment = segments[0]
		if len(segments) == 2 {
			assetName = segments[1]
		}
	}

	s.handleDownload(w, r, ParsePlatform(platformSegment), assetName)

	return true
}

// matchDelegate terminates the chain: everything unclaimed goes to the
// delegate static-update-server, or to the diagnostic page without one.
func (s *Service) matchDelegate(w http.ResponseWriter, r *http.Request, _ string) bool {
	if s.delegate != nil {
		s.delegate.ServeHTTP(w, r)
		return true
	}

	s.writeConfigDiagnostic(w)

	return true
}

// handleManifest resolves the latest release and renders the manifest.
func (s *Service) handleManifest(w http.ResponseWriter, r *http.Request, platform Platform) {
	ctx := r.Context()

	release, err := s.resolveRelease(ctx, "")
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	manifest, err := s.buildManifest(ctx, release, platform, s.baseURL(r))
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	body, err := manifest.Render()
	if err != nil {
		logger.ErrorKV(ctx, "Manifest rendering failed", "error", err)
		http.Error(w, "Error generating manifest", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	_, _ = w.Write(body)
}

// baseURL returns the externally visible base URL for proxied links:
// the configured value when present, otherwise derived from the request.
func (s *Service) baseURL(r *http.Request) string {
	if s.cfg.BaseURL != "" {
		return s.cfg.BaseURL
	}

	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}

	return scheme + "://" + r.Host
}

// routePath strips the configured path prefix before matching, mapping an
// empty remainder to the root path.
func (s *Service) routePath(path string) string {
	prefix := s.cfg.PathPrefix
	if prefix == "" || !strings.HasPrefix(path, prefix) {
		return path
	}

	stripped := strings.TrimPrefix(path, prefix)
	if stripped == "" {
		return "/"
	}

	return stripped
}

// writeConfigDiagnostic responds with the fixed configuration help page.
func (s *Service) writeConfigDiagnostic(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(configDiagnostic))
}

// writeError maps the error taxonomy to HTTP responses with short
// plain-text bodies. Terminal not-found conditions are 4xx and never
// retried; everything else is reported as an upstream failure.
func (s *Service) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, github.ErrReleaseNotFound):
		http.Error(w, "Release not found", http.StatusNotFound)
	case errors.Is(err, ErrAssetNotFound):
		http.Error(w, "Asset not found", http.StatusNotFound)
	case errors.Is(err, ErrNoAssetForPlatform):
		http.Error(w, "No asset for platform", http.StatusNotFound)
	default:
		logger.ErrorKV(ctx, "Upstream request failed", "error", err)
		http.Error(w, "Upstream request failed", http.StatusBadGateway)
	}
}
