package gateway

import (
	"strings"

	"github.com/oshokin/update-gateway/internal/github"
)

// platformPreferences lists file extensions in preference order per platform.
// For darwin, zip is preferred over dmg because it is what auto-update
// clients apply silently.
//
//nolint:gochecknoglobals // Static lookup table.
var platformPreferences = map[Platform][]string{
	PlatformWin32:  {".exe", ".zip"},
	PlatformDarwin: {".zip", ".dmg", ".pkg"},
	PlatformLinux:  {".appimage", ".deb", ".rpm"},
}

// SelectAsset picks the binary asset for a platform using ordered
// extension-pattern preference; the first matching extension wins regardless
// of asset order. When nothing matches (or the platform is unknown) the
// first asset is returned. Returns nil only for an empty asset list.
func SelectAsset(assets []github.Asset, platform Platform) *github.Asset {
	if len(assets) == 0 {
		return nil
	}

	for _, ext := range platformPreferences[platform] {
		for i := range assets {
			if strings.HasSuffix(strings.ToLower(assets[i].Name), ext) {
				return &assets[i]
			}
		}
	}

	return &assets[0]
}

// findAsset resolves an explicitly named asset: exact match first, then
// case-insensitive. Returns nil when the name matches nothing.
func findAsset(assets []github.Asset, name string) *github.Asset {
	for i := range assets {
		if assets[i].Name == name {
			return &assets[i]
		}
	}

	for i := range assets {
		if strings.EqualFold(assets[i].Name, name) {
			return &assets[i]
		}
	}

	return nil
}
