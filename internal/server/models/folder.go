package models

// FolderRecord is the narrow view of a drive folder the ingestion pipeline
// needs to validate a supplied folder reference.
type FolderRecord struct {
	ID      string
	OwnerID string
	Name    string
}
