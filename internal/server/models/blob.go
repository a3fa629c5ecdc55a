package models

import "time"

// Blob kinds stored by the chunked backend.
const (
	BlobKindOriginal  = "original"
	BlobKindWeb       = "web"
	BlobKindThumbnail = "thumbnail"
)

// BlobRecord is a single stored object in the chunked backend. Variant
// blobs reference their original through OriginalID.
type BlobRecord struct {
	ID string
	// OriginalID is empty for originals and points back to the original
	// blob for web/thumbnail variants.
	OriginalID  string
	Kind        string
	Filename    string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}
