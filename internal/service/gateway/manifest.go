package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/update-gateway/internal/github"
)

// Manifest is the update document auto-update clients poll. It is built
// fresh per request so it always reflects the current release.
type Manifest struct {
	// Version is the release tag with a leading "v" stripped.
	Version string `yaml:"version"`
	// Path is the primary download URL.
	Path string `yaml:"path,omitempty"`
	// Files lists the downloadable files with optional digests.
	Files []ManifestFile `yaml:"files,omitempty"`
	// ReleaseDate is the release publication timestamp.
	ReleaseDate string `yaml:"releaseDate"`
}

// ManifestFile is one entry of the manifest's files list.
type ManifestFile struct {
	URL    string `yaml:"url"`
	Name   string `yaml:"name"`
	SHA512 string `yaml:"sha512,omitempty"`
}

// Render serializes the manifest document.
func (m *Manifest) Render() ([]byte, error) {
	body, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}

	return body, nil
}

// buildManifest assembles the manifest for a release and platform. The
// download URL points back at this service unless proxying is disabled, in
// which case the asset's direct CDN URL is used.
func (s *Service) buildManifest(ctx context.Context, release *github.Release, platform Platform, baseURL string) (*Manifest, error) {
	asset := SelectAsset(release.Assets, platform)
	if asset == nil {
		return nil, ErrNoAssetForPlatform
	}

	downloadURL := asset.BrowserDownloadURL
	if !s.cfg.NoProxy {
		downloadURL = proxyURL(baseURL, platform, asset.Name, release.TagName)
	}

	manifest := &Manifest{
		Version:     strings.TrimPrefix(release.TagName, "v"),
		Path:        downloadURL,
		ReleaseDate: release.Date().UTC().Format(time.RFC3339),
		Files: []ManifestFile{{
			URL:  downloadURL,
			Name: asset.Name,
		}},
	}

	if digest := s.checksums.Obtain(ctx, release, asset); digest != "" {
		manifest.Files[0].SHA512 = digest
	}

	return manifest, nil
}

// proxyURL builds a same-origin download URL encoding platform and asset
// name as path segments plus the release tag as a query parameter, so the
// download proxy resolves the asset without a second metadata round trip.
func proxyURL(baseURL string, platform Platform, assetName, tag string) string {
	return fmt.Sprintf("%s/download/%s/%s?tag=%s",
		baseURL, platform, url.PathEscape(assetName), url.QueryEscape(tag))
}
