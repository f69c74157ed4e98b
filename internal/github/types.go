package github

import "time"

// Release is the subset of the release payload the gateway uses.
// A Release is immutable once fetched and is never cached across requests.
type Release struct {
	// TagName is the release tag and the source of truth for the version.
	TagName string `json:"tag_name"`
	// PublishedAt is the publication timestamp.
	PublishedAt time.Time `json:"published_at"`
	// CreatedAt is the creation timestamp, used when PublishedAt is absent.
	CreatedAt time.Time `json:"created_at"`
	// Draft marks unpublished releases.
	Draft bool `json:"draft"`
	// Prerelease marks releases published outside the stable channel.
	Prerelease bool `json:"prerelease"`
	// Assets is the ordered list of downloadable files.
	Assets []Asset `json:"assets"`
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	// ID is the opaque identifier, stable for the release's lifetime.
	ID int64 `json:"id"`
	// Name is the filename, unique within a release.
	Name string `json:"name"`
	// BrowserDownloadURL is the direct CDN URL.
	BrowserDownloadURL string `json:"browser_download_url"`
	// Size is the declared content length in bytes.
	Size int64 `json:"size"`
}

// Date returns the best available release timestamp.
func (r *Release) Date() time.Time {
	if !r.PublishedAt.IsZero() {
		return r.PublishedAt
	}

	if !r.CreatedAt.IsZero() {
		return r.CreatedAt
	}

	return time.Now().UTC()
}
