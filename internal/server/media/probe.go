// Package media implements content probing (hash, size, media type) and
// best-effort generation of derived renditions for drive files.
package media

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// ProbeResult describes a local file's content: digest, byte count and the
// media type sniffed from the bytes themselves (never from the filename).
type ProbeResult struct {
	// Hash is the hex-encoded SHA-256 digest of the file contents.
	Hash string
	// Size is the file length in bytes.
	Size int64
	// MediaType is the sniffed content type, e.g. "image/jpeg".
	MediaType string
	// Ext is the canonical extension for MediaType, with leading dot.
	// Empty when no extension is known.
	Ext string
}

// Probe streams the file once to hash and count bytes, then sniffs the
// media type from a bounded prefix. A failure aborts the whole probe;
// there is no partial result.
func Probe(path string) (*ProbeResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detect type %s: %w", path, err)
	}

	mediaType, ext := normalizeType(mtype.String(), mtype.Extension())

	return &ProbeResult{
		Hash:      hex.EncodeToString(hasher.Sum(nil)),
		Size:      size,
		MediaType: mediaType,
		Ext:       ext,
	}, nil
}

// normalizeType folds aliases into the canonical types used across the
// drive layer. Animated PNG is stored and served as image/png.
func normalizeType(mediaType, ext string) (string, string) {
	switch mediaType {
	case "image/apng", "image/vnd.mozilla.apng":
		return "image/png", ".png"
	case "image/jpeg":
		return mediaType, ".jpg"
	}
	return mediaType, ext
}
