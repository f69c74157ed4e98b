package gateway

import "strings"

// Platform identifies the client operating system an update targets.
// It is derived from the request path, never from client-declared headers.
type Platform string

const (
	// PlatformWin32 targets Windows clients.
	PlatformWin32 Platform = "win32"
	// PlatformDarwin targets macOS clients.
	PlatformDarwin Platform = "darwin"
	// PlatformLinux targets Linux clients.
	PlatformLinux Platform = "linux"
	// PlatformUnknown is any unrecognized or absent platform segment.
	PlatformUnknown Platform = "unknown"
)

// ParsePlatform maps a path segment to a Platform, case-insensitively.
// Common aliases used by update clients are accepted.
func ParsePlatform(s string) Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "win32", "win", "windows":
		return PlatformWin32
	case "darwin", "mac", "macos", "osx":
		return PlatformDarwin
	case "linux":
		return PlatformLinux
	default:
		return PlatformUnknown
	}
}
