package retrieval

import "embed"

// Placeholder images served when a file cannot be delivered: missing
// records, tombstones and unavailable thumbnails degrade visually instead
// of breaking inline references with an error body.
//
//go:embed assets/*.png
var assetsFS embed.FS

const (
	assetDummy       = "assets/dummy.png"
	assetTombstone   = "assets/tombstone.png"
	assetNoThumbnail = "assets/thumbnail-not-available.png"
)
