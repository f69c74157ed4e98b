package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oshokin/update-gateway/internal/version"
)

const (
	// defaultBaseURL is the release host's REST API root.
	defaultBaseURL = "https://api.github.com"

	// defaultTimeout bounds metadata calls when no timeout is configured.
	defaultTimeout = 30 * time.Second

	// acceptJSON requests the structured release payload.
	acceptJSON = "application/vnd.github+json"

	// acceptBinary requests raw asset content from the asset endpoint.
	acceptBinary = "application/octet-stream"

	// drainLimit caps how much of a discarded body is read before close.
	drainLimit = 4 << 10
)

var (
	// ErrReleaseNotFound is returned when the API reports that the requested
	// release (or asset endpoint) does not exist.
	ErrReleaseNotFound = errors.New("release not found")

	// errUnexpectedStatus is returned for upstream responses outside the
	// handled set.
	errUnexpectedStatus = errors.New("unexpected upstream status")
)

// Client calls the release host's REST API for one configured repository.
type Client struct {
	// baseURL is the API root, overridable in tests.
	baseURL string
	// account and repository identify the release repository.
	account    string
	repository string
	// token is an optional bearer credential.
	token string
	// userAgent is the mandatory client identifier header.
	userAgent string
	// timeout bounds metadata calls; streams are bounded by their context.
	timeout time.Duration
	// httpClient follows redirects and is used for metadata and streams.
	httpClient *http.Client
	// noRedirect stops at the first response so the signed location in the
	// Location header can be read instead of followed.
	noRedirect *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithBaseURL overrides the API root. Intended for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithToken sets the bearer credential forwarded on API calls.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout bounds metadata calls.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient creates a client for the provided repository identity.
func NewClient(account, repository string, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		account:    account,
		repository: repository,
		userAgent:  version.UserAgent(),
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
		noRedirect: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Latest returns the most recent published release. When includePrereleases
// is set, it scans the release list because the latest-release endpoint only
// covers the stable channel.
func (c *Client) Latest(ctx context.Context, includePrereleases bool) (*Release, error) {
	if !includePrereleases {
		var release Release
		if err := c.getJSON(ctx, c.repoPath("releases/latest"), &release); err != nil {
			return nil, err
		}

		return &release, nil
	}

	var releases []Release
	if err := c.getJSON(ctx, c.repoPath("releases"), &releases); err != nil {
		return nil, err
	}

	// The list is ordered newest first; drafts are never served.
	for i := range releases {
		if !releases[i].Draft {
			return &releases[i], nil
		}
	}

	return nil, ErrReleaseNotFound
}

// ReleaseByTag returns the release published under the exact tag.
func (c *Client) ReleaseByTag(ctx context.Context, tag string) (*Release, error) {
	var release Release
	if err := c.getJSON(ctx, c.repoPath("releases/tags/"+url.PathEscape(tag)), &release); err != nil {
		return nil, err
	}

	return &release, nil
}

// AssetLocation asks the API for the asset's transient signed location with
// redirect-following disabled. It returns an empty string when upstream
// serves the content directly instead of redirecting.
func (c *Client) AssetLocation(ctx context.Context, assetID int64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.assetPath(assetID), nil)
	if err != nil {
		return "", fmt.Errorf("build asset request: %w", err)
	}

	c.decorate(req, acceptBinary)

	resp, err := c.noRedirect.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve asset location: %w", err)
	}

	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode < http.StatusBadRequest:
		return resp.Header.Get("Location"), nil
	case resp.StatusCode == http.StatusOK:
		return "", nil
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("asset %d: %w", assetID, ErrReleaseNotFound)
	default:
		return "", fmt.Errorf("asset %d: %w: %d", assetID, errUnexpectedStatus, resp.StatusCode)
	}
}

// FetchAsset fetches asset content from the API endpoint following redirects
// internally. Headers from forward are applied to the outbound request, which
// lets callers pass through Range, If-None-Match and the client's user-agent.
// The response is returned as-is: the caller owns the body and interprets the
// status, so 200/206/304 semantics survive the hop.
func (c *Client) FetchAsset(ctx context.Context, assetID int64, forward http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.assetPath(assetID), nil)
	if err != nil {
		return nil, fmt.Errorf("build asset request: %w", err)
	}

	c.decorate(req, acceptBinary)

	for key, values := range forward {
		for _, value := range values {
			req.Header.Set(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch asset: %w", err)
	}

	return resp, nil
}

// DownloadAsset opens the asset content for reading, preferring the signed
// location handshake and falling back to the API endpoint when upstream
// issues no redirect. Unlike FetchAsset, a non-OK status is an error here:
// the caller wants the full body, not forwarded semantics.
func (c *Client) DownloadAsset(ctx context.Context, assetID int64) (*http.Response, error) {
	location, err := c.AssetLocation(ctx, assetID)
	if err != nil {
		return nil, err
	}

	if location == "" {
		resp, err := c.FetchAsset(ctx, assetID, nil)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			drainAndClose(resp.Body)

			return nil, fmt.Errorf("asset %d: %w: %d", assetID, errUnexpectedStatus, resp.StatusCode)
		}

		return resp, nil
	}

	// Signed locations are self-authenticating; the bearer token must not be
	// sent along or the content store rejects the request.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download asset: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		drainAndClose(resp.Body)

		return nil, fmt.Errorf("asset %d: %w: %d", assetID, errUnexpectedStatus, resp.StatusCode)
	}

	return resp, nil
}

// getJSON performs a bounded metadata call and decodes the payload.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build api request: %w", err)
	}

	c.decorate(req, acceptJSON)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call release api: %w", err)
	}

	defer drainAndClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("get %s: %w", path, ErrReleaseNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("get %s: %w: %d", path, errUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode release payload: %w", err)
	}

	return nil
}

// decorate applies the headers every upstream call must carry.
func (c *Client) decorate(req *http.Request, accept string) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) repoPath(suffix string) string {
	return fmt.Sprintf("/repos/%s/%s/%s", c.account, c.repository, suffix)
}

func (c *Client) assetPath(assetID int64) string {
	return c.repoPath(fmt.Sprintf("releases/assets/%d", assetID))
}

// drainAndClose reads a bounded tail of the body so the connection can be
// reused, then closes it.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, drainLimit))
	_ = body.Close()
}
