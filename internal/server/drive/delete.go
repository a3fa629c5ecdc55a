package drive

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/drivestore/internal/server/metrics"
	"github.com/dmitrijs2005/drivestore/internal/server/models"
)

// DeleteFile tombstones the record and removes its stored artifacts.
// Artifact removal is best-effort: the tombstone alone already makes the
// file unreachable, and an orphaned object costs space, not correctness.
func (s *Service) DeleteFile(ctx context.Context, record *models.FileRecord, isEviction bool) error {
	if err := s.files.MarkDeleted(ctx, record.ID); err != nil {
		return fmt.Errorf("marking file deleted: %w", err)
	}

	if record.StorageMode == models.StorageModeMaterialized {
		s.deleteArtifacts(ctx, record)
	}

	metrics.FileDeleted(record.IsLocal())
	if isEviction {
		metrics.Evicted()
		s.logger.Info(ctx, "file evicted", "file_id", record.ID, "owner_id", record.OwnerID, "size", record.Size)
	} else {
		s.logger.Info(ctx, "file deleted", "file_id", record.ID, "owner_id", record.OwnerID)
	}
	return nil
}

// deleteArtifacts removes the original and any rendition objects. The
// chunked backend stores everything under the record id; variant child
// blobs become unreachable with the original and are reaped separately.
func (s *Service) deleteArtifacts(ctx context.Context, record *models.FileRecord) {
	keys := []string{record.ID}
	if record.BackendKind != "" {
		keys = []string{record.ObjectKey}
		if record.WebKey != "" {
			keys = append(keys, record.WebKey)
		}
		if record.ThumbnailKey != "" {
			keys = append(keys, record.ThumbnailKey)
		}
	}

	for _, key := range keys {
		if key == "" {
			continue
		}
		if err := s.backend.Delete(ctx, key); err != nil {
			s.logger.Warn(ctx, "deleting stored object failed", "file_id", record.ID, "key", key, "error", err)
		}
	}
}
