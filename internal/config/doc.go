// Package config resolves gateway settings from the environment and
// provides helpers to validate them.
//
// The Config type holds the release repository identity, the optional API
// credential, the externally visible base URL and the HTTP listener options.
package config
