// Package models defines server-side data models persisted in the database.
package models

import "time"

// StorageMode says where a file's bytes live.
type StorageMode string

const (
	// StorageModeMaterialized means the bytes are held by one of our own
	// storage backends.
	StorageModeMaterialized StorageMode = "materialized"
	// StorageModeRemote means no local bytes exist; the object is fetched
	// on demand from its source URL/URI.
	StorageModeRemote StorageMode = "remote"
)

// FileRecord describes one drive file: original metadata, owner, backend
// locators and derived properties. It is immutable after creation except
// for the DeletedAt tombstone and lazy property backfill.
type FileRecord struct {
	// ID is the opaque unique identifier assigned at creation.
	ID string
	// ContentHash is the hex digest of the original bytes, used for
	// per-owner dedup. Not unique on its own.
	ContentHash string
	// Size is the byte length of the original (0 for link-only records).
	Size int64

	Filename    string
	ContentType string
	Comment     string

	// OwnerID identifies the quota pool; OwnerHost is empty for local
	// owners and carries the federation origin otherwise.
	OwnerID   string
	OwnerHost string

	// FolderID optionally references a folder owned by the same user.
	FolderID string

	StorageMode StorageMode

	// BackendKind is set when an object-storage backend holds the bytes
	// ("s3" or "swift"); empty for the chunked backend, which keeps
	// sibling blob records instead.
	BackendKind  string
	ObjectKey    string
	WebKey       string
	ThumbnailKey string

	URL          string
	WebURL       string
	ThumbnailURL string

	// AccessKey, when set, is required to fetch the raw original. It is
	// assigned whenever a redacted web-safe variant exists.
	AccessKey string

	// Derived properties (best-effort, may be zero).
	Width    int
	Height   int
	AvgColor string

	IsSensitive bool

	// SourceURL is the download location used when the file was fetched
	// from a remote resource; SourceURI is the canonical remote identity
	// used as a dedup key across repeated federation deliveries.
	SourceURL string
	SourceURI string

	CreatedAt time.Time
	// DeletedAt is the tombstone; once set retrieval answers "gone".
	DeletedAt *time.Time
}

// IsLocal reports whether the file belongs to a local owner.
func (f *FileRecord) IsLocal() bool {
	return f.OwnerHost == ""
}

// IsImage reports whether the original content type is a still image kind
// the variant generator understands.
func (f *FileRecord) IsImage() bool {
	switch f.ContentType {
	case "image/jpeg", "image/gif", "image/png", "image/webp":
		return true
	}
	return false
}

// Owner carries the slice of user state the drive layer needs: identity,
// federation origin and the files that must never be evicted.
type Owner struct {
	ID   string
	Host string

	// AvatarFileID and BannerFileID are excluded from quota eviction.
	AvatarFileID string
	BannerFileID string

	// AlwaysMarkSensitive applies the uploader's default sensitive flag.
	AlwaysMarkSensitive bool
}

// IsLocal reports whether the owner belongs to this instance.
func (o Owner) IsLocal() bool {
	return o.Host == ""
}
