// Package github implements the release-host REST client used by the gateway.
//
// The Client resolves release metadata (latest, by tag, including
// prereleases) and asset content. Asset content is reachable two ways: by
// asking the API for the transient signed location without following the
// redirect, or by fetching the asset outright with redirects followed.
package github
