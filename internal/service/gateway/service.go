package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/oshokin/update-gateway/internal/config"
	"github.com/oshokin/update-gateway/internal/github"
)

var (
	// ErrNoAssetForPlatform is returned when a release carries no asset
	// usable for the requested platform.
	ErrNoAssetForPlatform = errors.New("no asset for platform")

	// ErrAssetNotFound is returned when an explicitly named asset is absent
	// from the release.
	ErrAssetNotFound = errors.New("asset not found")
)

// Service wires the gateway components behind a single http.Handler.
type Service struct {
	// cfg holds the environment-driven settings.
	cfg *config.Config
	// client talks to the release host.
	client *github.Client
	// checksums caches asset digests across requests.
	checksums *ChecksumService
	// delegate serves whatever the gateway does not claim. May be nil.
	delegate http.Handler
	// routes is the ordered matcher list evaluated per request.
	routes []routeMatcher
}

// NewService creates the gateway service. The delegate handler receives
// requests matching neither the download proxy nor the manifest routes; pass
// nil to serve the configuration diagnostic instead.
func NewService(cfg *config.Config, client *github.Client, delegate http.Handler) *Service {
	s := &Service{
		cfg:       cfg,
		client:    client,
		checksums: NewChecksumService(client),
		delegate:  delegate,
	}

	// First handled match wins.
	s.routes = []routeMatcher{
		s.matchDownload,
		s.matchManifest,
		s.matchDelegate,
	}

	return s
}

// resolveRelease fetches the release named by tag, or the latest release
// when tag is empty. Releases are re-fetched per request on purpose.
func (s *Service) resolveRelease(ctx context.Context, tag string) (*github.Release, error) {
	if tag == "" {
		return s.client.Latest(ctx, s.cfg.Prerelease)
	}

	return s.client.ReleaseByTag(ctx, tag)
}
