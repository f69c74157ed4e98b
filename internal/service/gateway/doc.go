// Package gateway implements the update gateway service: it republishes
// releases from the configured repository as the manifest document
// auto-update clients poll, and proxies or redirects asset downloads with
// byte-accurate HTTP semantics.
//
// The Service is an http.Handler routing requests through an ordered list of
// matchers (download proxy, manifest, delegate). Release metadata is fetched
// per request; the only cross-request state is the checksum cache.
package gateway
