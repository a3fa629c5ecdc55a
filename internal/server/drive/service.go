// Package drive implements the file ingestion pipeline: streaming hash and
// probe, content dedup, quota admission, variant generation, backend writes,
// metadata persistence and event emission.
package drive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrijs2005/drivestore/internal/common"
	"github.com/dmitrijs2005/drivestore/internal/logging"
	"github.com/dmitrijs2005/drivestore/internal/server/events"
	"github.com/dmitrijs2005/drivestore/internal/server/media"
	"github.com/dmitrijs2005/drivestore/internal/server/metrics"
	"github.com/dmitrijs2005/drivestore/internal/server/models"
	"github.com/dmitrijs2005/drivestore/internal/server/repositories/files"
	"github.com/dmitrijs2005/drivestore/internal/server/repositories/folders"
	"github.com/dmitrijs2005/drivestore/internal/server/storage"
)

// accessKeyLength is the byte length of the random token guarding raw
// originals that have a redacted web-safe variant.
const accessKeyLength = 16

// Service orchestrates file ingestion and deletion. All collaborators are
// injected at construction.
type Service struct {
	logger  logging.Logger
	files   files.Repository
	folders folders.Repository
	backend storage.Backend
	media   *media.Generator
	bus     events.Bus
	quota   *QuotaLedger

	keyPrefix string
}

// NewService wires the ingestion pipeline.
func NewService(logger logging.Logger, filesRepo files.Repository, foldersRepo folders.Repository,
	backend storage.Backend, gen *media.Generator, bus events.Bus, quota *QuotaLedger, keyPrefix string) *Service {
	return &Service{
		logger:    logger.With("component", "drive"),
		files:     filesRepo,
		folders:   foldersRepo,
		backend:   backend,
		media:     gen,
		bus:       bus,
		quota:     quota,
		keyPrefix: keyPrefix,
	}
}

// AddFileParams describes one ingestion request. Path must point to a fully
// written local file; for remote links it is the downloaded copy used only
// for probing.
type AddFileParams struct {
	Owner models.Owner
	Path  string

	Name     string
	Comment  string
	FolderID string

	// Force skips the content-hash dedup and always creates a new record.
	Force bool

	// IsRemoteLink records the object without storing its bytes; retrieval
	// proxies the source URL on demand.
	IsRemoteLink bool
	SourceURL    string
	SourceURI    string

	Sensitive bool
}

// AddFile ingests one file and returns its record. A dedup hit returns the
// existing record and emits no event.
func (s *Service) AddFile(ctx context.Context, p AddFileParams) (*models.FileRecord, error) {
	var (
		probe  *media.ProbeResult
		videoW int
		videoH int
	)

	// Probe, folder validation and the best-effort video resolution read
	// have no data dependency on each other.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := media.Probe(p.Path)
		if err != nil {
			return fmt.Errorf("probing file: %w", err)
		}
		probe = res
		return nil
	})
	if p.FolderID != "" {
		g.Go(func() error {
			if _, err := s.folders.FindByIDAndOwner(gctx, p.FolderID, p.Owner.ID); err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					return common.ErrFolderNotFound
				}
				return fmt.Errorf("validating folder: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		w, h, err := s.media.VideoResolution(gctx, p.Path)
		if err == nil {
			videoW, videoH = w, h
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !p.Force && !p.IsRemoteLink {
		existing, err := s.files.FindDuplicate(ctx, p.Owner.ID, probe.Hash)
		if err == nil {
			s.logger.Info(ctx, "duplicate content, returning existing record",
				"file_id", existing.ID, "owner_id", p.Owner.ID)
			metrics.DedupHit()
			return existing, nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("dedup lookup: %w", err)
		}
	}

	if !p.IsRemoteLink {
		admission, err := s.quota.Admit(ctx, p.Owner, probe.Size)
		if err != nil {
			return nil, err
		}
		switch admission {
		case RejectHard:
			return nil, common.ErrNoFreeSpace
		case AdmitWithEviction:
			// Soft policy for remote owners: reclaim space in the
			// background, never gate the new write on it.
			s.evictOldest(p.Owner)
		}
	}

	record := &models.FileRecord{
		ID:          uuid.New().String(),
		ContentHash: probe.Hash,
		Filename:    displayName(p.Name, probe.Ext),
		ContentType: probe.MediaType,
		Comment:     p.Comment,
		OwnerID:     p.Owner.ID,
		OwnerHost:   p.Owner.Host,
		FolderID:    p.FolderID,
		IsSensitive: p.Sensitive || p.Owner.AlwaysMarkSensitive,
		SourceURL:   p.SourceURL,
		SourceURI:   p.SourceURI,
		CreatedAt:   time.Now().UTC(),
	}

	var alts media.Alts
	if !p.IsRemoteLink {
		record.Size = probe.Size
		alts = s.media.Generate(ctx, p.Path, probe.MediaType, p.Owner.IsLocal())
	}
	// Link records keep their probed dimensions even though no bytes are
	// stored; clients size placeholders from them.
	s.fillProperties(ctx, record, p.Path, videoW, videoH)

	if p.IsRemoteLink {
		record.StorageMode = models.StorageModeRemote
		record.URL = p.SourceURL
	} else {
		record.StorageMode = models.StorageModeMaterialized
		if err := s.persistContent(ctx, record, p.Path, probe, alts); err != nil {
			return nil, err
		}
	}

	if alts.Web != nil {
		key, err := common.MakeRandHexString(accessKeyLength)
		if err != nil {
			return nil, fmt.Errorf("generating access key: %w", err)
		}
		record.AccessKey = key
	}

	outcome, err := s.insertRecord(ctx, record, p)
	if err != nil {
		return nil, err
	}
	if outcome.AlreadyExists {
		return outcome.Record, nil
	}

	if err := s.bus.PublishFileCreated(ctx, p.Owner.ID, models.Pack(record)); err != nil {
		// The record is committed; a lost notification must not undo it.
		s.logger.Warn(ctx, "publishing fileCreated failed", "file_id", record.ID, "error", err)
	}
	metrics.FileCreated(p.Owner.IsLocal(), p.Owner.Host, record.Size)

	s.logger.Info(ctx, "file ingested", "file_id", record.ID, "owner_id", p.Owner.ID,
		"type", record.ContentType, "size", record.Size, "backend", s.backend.Kind())

	return record, nil
}

// fillProperties backfills width/height/average color. Every sub-computation
// is allowed to fail independently.
func (s *Service) fillProperties(ctx context.Context, record *models.FileRecord, path string, videoW, videoH int) {
	if media.IsImage(record.ContentType) {
		if w, h, err := media.Dimensions(path); err == nil {
			record.Width, record.Height = w, h
		} else {
			s.logger.Warn(ctx, "reading image dimensions failed", "error", err)
		}
		if c, err := media.AverageColor(path); err == nil {
			record.AvgColor = c
		} else {
			s.logger.Warn(ctx, "computing average color failed", "error", err)
		}
		return
	}
	if videoW > 0 && videoH > 0 {
		record.Width, record.Height = videoW, videoH
	}
}

// persistContent uploads the original and any renditions, then fills the
// record's backend locators and URLs. A failed required upload aborts the
// ingestion; no metadata is written in that case.
func (s *Service) persistContent(ctx context.Context, record *models.FileRecord, path string, probe *media.ProbeResult, alts media.Alts) error {
	if vs, ok := s.backend.(storage.VariantStore); ok {
		return s.persistChunked(ctx, record, path, probe, alts, vs)
	}
	return s.persistObjectStorage(ctx, record, path, probe, alts)
}

// persistChunked stores the original as a blob whose id doubles as the file
// record id, then attaches renditions as child blobs.
func (s *Service) persistChunked(ctx context.Context, record *models.FileRecord, path string, probe *media.ProbeResult, alts media.Alts, vs storage.VariantStore) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening original: %w", err)
	}
	defer f.Close()

	if err := s.backend.Put(ctx, record.ID, f, probe.Size, probe.MediaType, record.Filename); err != nil {
		return fmt.Errorf("storing original: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if alts.Web != nil {
		g.Go(func() error {
			name := record.Filename + ".web" + alts.Web.Ext
			if err := vs.StoreVariant(gctx, record.ID, models.BlobKindWeb, name, alts.Web.ContentType, alts.Web.Data); err != nil {
				return fmt.Errorf("storing web rendition: %w", err)
			}
			return nil
		})
	}
	if alts.Thumbnail != nil {
		g.Go(func() error {
			name := record.Filename + ".thumbnail" + alts.Thumbnail.Ext
			if err := vs.StoreVariant(gctx, record.ID, models.BlobKindThumbnail, name, alts.Thumbnail.ContentType, alts.Thumbnail.Data); err != nil {
				return fmt.Errorf("storing thumbnail: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	record.URL = s.backend.PublicURL(record.ID)
	if alts.Web != nil {
		record.WebURL = record.URL + "?web=1"
	}
	if alts.Thumbnail != nil {
		record.ThumbnailURL = record.URL + "?thumbnail=1"
	}
	return nil
}

// persistObjectStorage uploads original, web and thumbnail under independent
// keys in parallel and waits for all of them.
func (s *Service) persistObjectStorage(ctx context.Context, record *models.FileRecord, path string, probe *media.ProbeResult, alts media.Alts) error {
	record.BackendKind = s.backend.Kind()
	record.ObjectKey = storage.NewKey(s.keyPrefix, probe.Ext)
	if alts.Web != nil {
		record.WebKey = storage.NewKey(s.keyPrefix+"/webpublic", alts.Web.Ext)
	}
	if alts.Thumbnail != nil {
		record.ThumbnailKey = storage.NewKey(s.keyPrefix+"/thumbnail", alts.Thumbnail.Ext)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening original: %w", err)
		}
		defer f.Close()
		if err := s.backend.Put(gctx, record.ObjectKey, f, probe.Size, probe.MediaType, record.Filename); err != nil {
			return fmt.Errorf("storing original: %w", err)
		}
		return nil
	})
	if alts.Web != nil {
		g.Go(func() error {
			if err := storage.PutBytes(gctx, s.backend, record.WebKey, alts.Web.Data, alts.Web.ContentType, record.Filename); err != nil {
				return fmt.Errorf("storing web rendition: %w", err)
			}
			return nil
		})
	}
	if alts.Thumbnail != nil {
		g.Go(func() error {
			if err := storage.PutBytes(gctx, s.backend, record.ThumbnailKey, alts.Thumbnail.Data, alts.Thumbnail.ContentType, record.Filename); err != nil {
				return fmt.Errorf("storing thumbnail: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	record.URL = s.backend.PublicURL(record.ObjectKey)
	if record.WebKey != "" {
		record.WebURL = s.backend.PublicURL(record.WebKey)
	}
	if record.ThumbnailKey != "" {
		record.ThumbnailURL = s.backend.PublicURL(record.ThumbnailKey)
	}
	return nil
}

// insertOutcome is the result of the optimistic metadata insert.
type insertOutcome struct {
	Record *models.FileRecord
	// AlreadyExists is set when a concurrent ingestion of the same remote
	// object won the race; Record then holds the winner's row.
	AlreadyExists bool
}

// insertRecord persists the record. A unique violation on a remote link is
// the sourceUri race: the loser discards its write and adopts the winner's
// record.
func (s *Service) insertRecord(ctx context.Context, record *models.FileRecord, p AddFileParams) (insertOutcome, error) {
	err := s.files.Insert(ctx, record)
	if err == nil {
		return insertOutcome{Record: record}, nil
	}
	if p.IsRemoteLink && errors.Is(err, common.ErrDuplicateKey) {
		existing, ferr := s.files.FindBySourceURI(ctx, p.Owner.ID, p.SourceURI)
		if ferr != nil {
			return insertOutcome{}, fmt.Errorf("refetching after duplicate insert: %w", ferr)
		}
		s.logger.Info(ctx, "lost remote-link insert race, adopting existing record",
			"file_id", existing.ID, "source_uri", p.SourceURI)
		return insertOutcome{Record: existing, AlreadyExists: true}, nil
	}
	return insertOutcome{}, fmt.Errorf("inserting file record: %w", err)
}

// evictOldest removes the owner's oldest file excluding avatar and banner,
// detached from the ingestion that triggered it.
func (s *Service) evictOldest(owner models.Owner) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		exclude := make([]string, 0, 2)
		if owner.AvatarFileID != "" {
			exclude = append(exclude, owner.AvatarFileID)
		}
		if owner.BannerFileID != "" {
			exclude = append(exclude, owner.BannerFileID)
		}

		victim, err := s.files.FindOldestExcluding(ctx, owner.ID, exclude)
		if err != nil {
			if !errors.Is(err, common.ErrorNotFound) {
				s.logger.Warn(ctx, "eviction lookup failed", "owner_id", owner.ID, "error", err)
			}
			return
		}
		if err := s.DeleteFile(ctx, victim, true); err != nil {
			s.logger.Warn(ctx, "eviction failed", "file_id", victim.ID, "error", err)
		}
	}()
}

func displayName(name, ext string) string {
	if name == "" {
		return "untitled" + ext
	}
	return name
}
