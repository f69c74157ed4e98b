package gateway

import (
	"io"
	"net/http"

	"github.com/oshokin/update-gateway/internal/github"
	"github.com/oshokin/update-gateway/internal/logger"
)

// mirroredHeaders are copied from the upstream response to the client on the
// streaming fallback so resumable downloads and cache validation keep
// working through the hop.
//
//nolint:gochecknoglobals // Static lookup table.
var mirroredHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Disposition",
	"Accept-Ranges",
	"ETag",
	"Last-Modified",
	"Content-Range",
}

// forwardedHeaders are passed from the client to the upstream fetch on the
// streaming fallback.
//
//nolint:gochecknoglobals // Static lookup table.
var forwardedHeaders = []string{
	"Range",
	"If-None-Match",
	"User-Agent",
}

// handleDownload resolves the requested asset and serves it, preferring a
// redirect to the upstream's signed location over streaming the bytes
// through this process.
func (s *Service) handleDownload(w http.ResponseWriter, r *http.Request, platform Platform, assetName string) {
	ctx := r.Context()
	query := r.URL.Query()

	// The query parameter is the legacy form; the path segment wins.
	if assetName == "" {
		assetName = query.Get("asset")
	}

	release, err := s.resolveRelease(ctx, query.Get("tag"))
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	var asset *github.Asset
	if assetName != "" {
		asset = findAsset(release.Assets, assetName)
		if asset == nil {
			s.writeError(ctx, w, ErrAssetNotFound)
			return
		}
	} else {
		asset = SelectAsset(release.Assets, platform)
		if asset == nil {
			s.writeError(ctx, w, ErrNoAssetForPlatform)
			return
		}
	}

	location, err := s.client.AssetLocation(ctx, asset.ID)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	if location != "" {
		// Preferred strategy: no bytes proxied, no doubled egress.
		http.Redirect(w, r, location, http.StatusTemporaryRedirect)
		return
	}

	logger.DebugKV(ctx, "No signed location issued, streaming asset",
		"asset", asset.Name, "asset_id", asset.ID)

	s.streamAsset(w, r, asset)
}

// streamAsset is the fallback when upstream issues no redirect location:
// fetch the asset following redirects internally and pipe the body through,
// mirroring headers and status verbatim. The request context cancels the
// upstream leg when the client disconnects.
func (s *Service) streamAsset(w http.ResponseWriter, r *http.Request, asset *github.Asset) {
	ctx := r.Context()

	forward := http.Header{}
	for _, header := range forwardedHeaders {
		if value := r.Header.Get(header); value != "" {
			forward.Set(header, value)
		}
	}

	resp, err := s.client.FetchAsset(ctx, asset.ID, forward)
	if err != nil {
		s.writeError(ctx, w, err)
		return
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	for _, header := range mirroredHeaders {
		if value := resp.Header.Get(header); value != "" {
			w.Header().Set(header, value)
		}
	}

	// 200/206/304 must survive verbatim for resumable-download correctness.
	w.WriteHeader(resp.StatusCode)

	if r.Method == http.MethodHead {
		return
	}

	if _, err := io.Copy(w, resp.Body); err != nil {
		// Headers are already sent; the only remaining signal is dropping
		// the connection. Closing the body releases the upstream stream.
		logger.DebugKV(ctx, "Asset stream aborted",
			"asset", asset.Name, "error", err)
	}
}
