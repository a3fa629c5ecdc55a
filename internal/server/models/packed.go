package models

import "time"

// PackedFile is the JSON shape of a file record as published on the event
// bus and returned to API consumers.
type PackedFile struct {
	ID           string            `json:"id"`
	CreatedAt    time.Time         `json:"createdAt"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	ContentHash  string            `json:"contentHash"`
	Size         int64             `json:"size"`
	IsSensitive  bool              `json:"isSensitive"`
	Properties   map[string]any    `json:"properties"`
	URL          string            `json:"url,omitempty"`
	ThumbnailURL string            `json:"thumbnailUrl,omitempty"`
	WebURL       string            `json:"webpublicUrl,omitempty"`
	FolderID     string            `json:"folderId,omitempty"`
	Comment      string            `json:"comment,omitempty"`
}

// Pack converts a FileRecord into its published form.
func Pack(f *FileRecord) PackedFile {
	props := map[string]any{}
	if f.Width > 0 {
		props["width"] = f.Width
	}
	if f.Height > 0 {
		props["height"] = f.Height
	}
	if f.AvgColor != "" {
		props["avgColor"] = f.AvgColor
	}

	return PackedFile{
		ID:           f.ID,
		CreatedAt:    f.CreatedAt,
		Name:         f.Filename,
		Type:         f.ContentType,
		ContentHash:  f.ContentHash,
		Size:         f.Size,
		IsSensitive:  f.IsSensitive,
		Properties:   props,
		URL:          f.URL,
		ThumbnailURL: f.ThumbnailURL,
		WebURL:       f.WebURL,
		FolderID:     f.FolderID,
		Comment:      f.Comment,
	}
}
