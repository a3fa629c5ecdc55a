// Package common defines shared constants and sentinel errors used across
// the drive service layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound   = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Ingestion errors.
	ErrNoFreeSpace    = errors.New("no free space")
	ErrFolderNotFound = errors.New("folder not found")

	// Retrieval errors.
	ErrAccessDenied = errors.New("access denied")
	ErrGone         = errors.New("gone")
)
