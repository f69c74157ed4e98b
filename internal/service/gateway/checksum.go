package gateway

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/oshokin/update-gateway/internal/github"
	"github.com/oshokin/update-gateway/internal/logger"
)

const (
	// checksumTTL is how long a computed digest stays valid in the cache.
	checksumTTL = time.Hour

	// checksumAttempts bounds fetch-and-hash retries.
	checksumAttempts = 3

	// checksumBackoffBase is the first retry delay; it doubles per attempt.
	checksumBackoffBase = 500 * time.Millisecond

	// checksumSuffix names companion assets carrying a published digest.
	checksumSuffix = ".sha512"

	// encodedChecksumLength is the length of a base64 SHA-512 digest.
	encodedChecksumLength = 88

	// companionReadLimit caps how much of a companion asset is read. The
	// digest plus surrounding whitespace fits comfortably.
	companionReadLimit = 1 << 10
)

// ChecksumService obtains a trustworthy SHA-512 digest for release assets.
// It prefers a well-formed companion checksum asset and otherwise streams
// and hashes the binary itself. Results are cached per asset id with a TTL;
// concurrent computations for the same asset collapse into one.
type ChecksumService struct {
	// client fetches asset content from the release host.
	client *github.Client
	// ttl is the cache entry lifetime.
	ttl time.Duration
	// now is the clock, injectable for tests.
	now func() time.Time

	// mu protects entries.
	mu sync.RWMutex
	// entries maps asset id to the cached digest.
	entries map[int64]checksumEntry

	// group collapses concurrent computations per asset id.
	group singleflight.Group
}

// checksumEntry is one cached digest.
type checksumEntry struct {
	// digest is the base64-encoded SHA-512 digest.
	digest string
	// computedAt decides expiry against the TTL.
	computedAt time.Time
}

// NewChecksumService creates a checksum service backed by the provided client.
func NewChecksumService(client *github.Client) *ChecksumService {
	return &ChecksumService{
		client:  client,
		ttl:     checksumTTL,
		now:     time.Now,
		entries: make(map[int64]checksumEntry),
	}
}

// Obtain returns the digest for the asset or an empty string when no
// trustworthy digest could be obtained. Absence is a valid terminal state:
// the manifest simply omits the field.
func (s *ChecksumService) Obtain(ctx context.Context, release *github.Release, asset *github.Asset) string {
	if digest, ok := s.cached(asset.ID); ok {
		return digest
	}

	result, _, _ := s.group.Do(strconv.FormatInt(asset.ID, 10), func() (any, error) {
		// A waiter may have populated the cache while we queued.
		if digest, ok := s.cached(asset.ID); ok {
			return digest, nil
		}

		return s.resolve(ctx, release, asset), nil
	})

	digest, _ := result.(string)

	return digest
}

// resolve obtains a digest with the companion asset preferred over hashing.
func (s *ChecksumService) resolve(ctx context.Context, release *github.Release, asset *github.Asset) string {
	if published, ok := s.publishedDigest(ctx, release, asset); ok {
		s.store(asset.ID, published)

		// The companion file may be stale or tampered; the binary is ground
		// truth. Recompute off the request path and reconcile.
		go s.reconcile(context.WithoutCancel(ctx), asset, published)

		return published
	}

	digest, err := s.computeWithRetry(ctx, asset)
	if err != nil {
		logger.WarnKV(ctx, "Checksum computation failed",
			"asset", asset.Name, "asset_id", asset.ID, "error", err)

		return ""
	}

	s.store(asset.ID, digest)

	return digest
}

// publishedDigest looks for a companion checksum asset and validates its
// content. Malformed content is rejected so the caller falls through to
// hashing the binary.
func (s *ChecksumService) publishedDigest(ctx context.Context, release *github.Release, asset *github.Asset) (string, bool) {
	companion := findAsset(release.Assets, asset.Name+checksumSuffix)
	if companion == nil {
		for i := range release.Assets {
			if strings.HasSuffix(strings.ToLower(release.Assets[i].Name), checksumSuffix) {
				companion = &release.Assets[i]
				break
			}
		}
	}

	if companion == nil {
		return "", false
	}

	content, err := s.fetchCompanion(ctx, companion.ID)
	if err != nil {
		logger.WarnKV(ctx, "Companion checksum fetch failed",
			"asset", companion.Name, "error", err)

		return "", false
	}

	digest := strings.TrimSpace(content)
	if !validDigest(digest) {
		logger.WarnKV(ctx, "Companion checksum is malformed, recomputing",
			"asset", companion.Name)

		return "", false
	}

	return digest, true
}

// fetchCompanion reads the companion asset's content.
func (s *ChecksumService) fetchCompanion(ctx context.Context, assetID int64) (string, error) {
	resp, err := s.client.FetchAsset(ctx, assetID, nil)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("companion asset %d: unexpected status %d", assetID, resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, companionReadLimit))
	if err != nil {
		return "", fmt.Errorf("read companion asset: %w", err)
	}

	return string(content), nil
}

// reconcile recomputes the digest from the binary and replaces the cache
// entry when the published value disagrees.
func (s *ChecksumService) reconcile(ctx context.Context, asset *github.Asset, published string) {
	computed, err := s.computeWithRetry(ctx, asset)
	if err != nil {
		logger.WarnKV(ctx, "Checksum reconciliation failed",
			"asset", asset.Name, "asset_id", asset.ID, "error", err)

		return
	}

	if computed == published {
		return
	}

	logger.WarnKV(ctx, "Published checksum disagrees with computed digest, replacing",
		"asset", asset.Name, "asset_id", asset.ID,
		"published", published, "computed", computed)

	s.store(asset.ID, computed)
}

// computeWithRetry streams and hashes the binary with bounded backoff.
func (s *ChecksumService) computeWithRetry(ctx context.Context, asset *github.Asset) (string, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(checksumBackoffBase),
				backoff.WithMultiplier(2),
				backoff.WithRandomizationFactor(0),
			),
			checksumAttempts-1,
		),
		ctx,
	)

	return backoff.RetryWithData(func() (string, error) {
		digest, err := s.compute(ctx, asset)
		if errors.Is(err, github.ErrReleaseNotFound) {
			// The asset genuinely is not there; retrying will not help.
			return "", backoff.Permanent(err)
		}

		return digest, err
	}, policy)
}

// compute resolves the asset's signed location, streams the body through a
// running hash and returns the base64-encoded digest. A byte count short of
// the declared length is logged as truncation but still produces a digest:
// partial failure here degrades gracefully instead of blocking the manifest.
func (s *ChecksumService) compute(ctx context.Context, asset *github.Asset) (string, error) {
	resp, err := s.client.DownloadAsset(ctx, asset.ID)
	if err != nil {
		return "", err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	hasher := sha512.New()

	written, err := io.Copy(hasher, resp.Body)
	if err != nil {
		return "", fmt.Errorf("stream asset for hashing: %w", err)
	}

	if resp.ContentLength >= 0 && written != resp.ContentLength {
		logger.WarnKV(ctx, "Asset stream truncated while hashing",
			"asset", asset.Name, "asset_id", asset.ID,
			"declared", resp.ContentLength, "received", written)
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}

// cached returns a digest still within the TTL.
func (s *ChecksumService) cached(assetID int64) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[assetID]
	if !ok || s.now().Sub(entry.computedAt) > s.ttl {
		return "", false
	}

	return entry.digest, true
}

// store records a digest with the current timestamp.
func (s *ChecksumService) store(assetID int64, digest string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[assetID] = checksumEntry{
		digest:     digest,
		computedAt: s.now(),
	}
}

// validDigest reports whether s is valid base64 of exactly 88 characters,
// i.e. decodes to a 64-byte SHA-512 digest.
func validDigest(s string) bool {
	if len(s) != encodedChecksumLength {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(s)

	return err == nil && len(decoded) == sha512.Size
}
