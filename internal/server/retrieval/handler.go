// Package retrieval serves stored drive files over HTTP: originals,
// renditions, downloads and on-demand proxying of remote-linked objects.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/drivestore/internal/common"
	"github.com/dmitrijs2005/drivestore/internal/filex"
	"github.com/dmitrijs2005/drivestore/internal/logging"
	"github.com/dmitrijs2005/drivestore/internal/netx"
	"github.com/dmitrijs2005/drivestore/internal/server/media"
	"github.com/dmitrijs2005/drivestore/internal/server/models"
	"github.com/dmitrijs2005/drivestore/internal/server/repositories/files"
	"github.com/dmitrijs2005/drivestore/internal/server/storage"
)

// Served content never changes after creation; placeholders may.
const (
	cacheControlImmutable = "max-age=31536000, immutable"
	cacheControlNone      = "no-store"
)

// mode is the requested presentation of a file.
type mode int

const (
	modeOriginal mode = iota
	modeThumbnail
	modeWeb
	modeDownload
)

// Handler answers GET /files/{id}.
type Handler struct {
	logger  logging.Logger
	files   files.Repository
	backend storage.Backend
	media   *media.Generator
	client  *http.Client
}

// NewHandler wires the retrieval endpoint. client is used for proxying
// remote-linked records and may carry its own timeout policy.
func NewHandler(logger logging.Logger, filesRepo files.Repository, backend storage.Backend,
	gen *media.Generator, client *http.Client) *Handler {
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	return &Handler{
		logger:  logger.With("component", "retrieval"),
		files:   filesRepo,
		backend: backend,
		media:   gen,
		client:  client,
	}
}

// Register mounts the endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/files/{id}", h.Serve)
}

// Serve resolves the record and streams the requested presentation.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	record, err := h.files.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			h.servePlaceholder(w, assetDummy, http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "file lookup failed", "file_id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if record.DeletedAt != nil {
		h.servePlaceholder(w, assetTombstone, http.StatusGone)
		return
	}

	m := requestMode(r)

	if record.StorageMode == models.StorageModeRemote {
		h.serveRemote(w, r, record, m)
		return
	}

	if record.IsImage() && record.Width == 0 {
		go h.backfillProperties(record)
	}

	switch m {
	case modeThumbnail:
		h.serveThumbnail(w, r, record)
	case modeWeb:
		h.serveWeb(w, r, record)
	default:
		h.serveOriginal(w, r, record, m == modeDownload)
	}
}

func requestMode(r *http.Request) mode {
	q := r.URL.Query()
	switch {
	case q.Has("thumbnail"):
		return modeThumbnail
	case q.Has("web"):
		return modeWeb
	case q.Has("download"):
		return modeDownload
	}
	return modeOriginal
}

// serveRemote proxies a link-only record: fetch into a scoped temp file,
// re-probe, optionally convert to a thumbnail, and stream. The temp file is
// removed on every exit path. Nothing here touches the metadata store.
func (h *Handler) serveRemote(w http.ResponseWriter, r *http.Request, record *models.FileRecord, m mode) {
	ctx := r.Context()

	source := record.SourceURI
	if source == "" {
		source = record.SourceURL
	}
	if source == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	path, cleanup, err := filex.TempFile("drivestore-proxy-*")
	if err != nil {
		h.logger.Error(ctx, "creating temp file failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer cleanup()

	if err := netx.DownloadToFile(ctx, h.client, source, path); err != nil {
		var statusErr *netx.StatusError
		if errors.As(err, &statusErr) {
			http.Error(w, fmt.Sprintf("remote fetch failed: %d", statusErr.StatusCode), statusErr.StatusCode)
			return
		}
		h.logger.Warn(ctx, "remote fetch failed", "file_id", record.ID, "url", source, "error", err)
		http.Error(w, "remote fetch failed", http.StatusInternalServerError)
		return
	}

	probe, err := media.Probe(path)
	if err != nil {
		h.logger.Error(ctx, "probing fetched file failed", "file_id", record.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Thumbnail conversion applies only to types the generator can render;
	// anything else is served as fetched. A failed conversion is an error,
	// not a missing file.
	if m == modeThumbnail && media.CanThumbnail(probe.MediaType) {
		rendition, err := h.media.Thumbnail(ctx, path, probe.MediaType)
		if err != nil {
			h.logger.Error(ctx, "thumbnail conversion failed", "file_id", record.ID, "error", err)
			http.Error(w, "thumbnail conversion failed", http.StatusInternalServerError)
			return
		}
		h.writeHeaders(w, rendition.ContentType, record.Filename+".thumbnail"+rendition.Ext, false, int64(len(rendition.Data)))
		w.Write(rendition.Data)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.logger.Error(ctx, "opening fetched file failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	h.writeHeaders(w, probe.MediaType, record.Filename, m == modeDownload, probe.Size)
	io.Copy(w, f)
}

// backfillProperties fills in missing image properties for records created
// before probing existed, detached from the serving request.
func (h *Handler) backfillProperties(record *models.FileRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	key := record.ID
	if record.BackendKind != "" {
		key = record.ObjectKey
	}

	rc, err := h.backend.Open(ctx, key)
	if err != nil {
		return
	}
	defer rc.Close()

	path, cleanup, err := filex.TempFile("drivestore-props-*")
	if err != nil {
		return
	}
	defer cleanup()

	f, err := os.Create(path)
	if err != nil {
		return
	}
	if _, err := io.Copy(f, rc); err != nil {
		f.Close()
		return
	}
	f.Close()

	width, height, err := media.Dimensions(path)
	if err != nil {
		return
	}
	avgColor, err := media.AverageColor(path)
	if err != nil {
		avgColor = ""
	}

	if err := h.files.UpdateProperties(ctx, record.ID, width, height, avgColor); err != nil {
		h.logger.Warn(ctx, "property backfill failed", "file_id", record.ID, "error", err)
	}
}

func (h *Handler) serveThumbnail(w http.ResponseWriter, r *http.Request, record *models.FileRecord) {
	ctx := r.Context()

	if vs, ok := h.backend.(storage.VariantStore); ok && record.BackendKind == "" {
		blob, rc, err := vs.OpenVariant(ctx, record.ID, models.BlobKindThumbnail)
		if err == nil {
			defer rc.Close()
			h.writeHeaders(w, blob.ContentType, record.Filename+".thumbnail"+extFor(blob.ContentType), false, blob.Size)
			io.Copy(w, rc)
			return
		}
		if !errors.Is(err, common.ErrorNotFound) {
			h.logger.Error(ctx, "opening thumbnail failed", "file_id", record.ID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	} else if record.ThumbnailKey != "" {
		h.streamKey(w, r, record.ThumbnailKey, record.ContentType, record.Filename+".thumbnail", false)
		return
	}

	// No stored thumbnail. Images fall back to the original; anything else
	// gets the placeholder.
	if record.IsImage() {
		h.serveOriginal(w, r, record, false)
		return
	}
	h.servePlaceholder(w, assetNoThumbnail, http.StatusNotFound)
}

func (h *Handler) serveWeb(w http.ResponseWriter, r *http.Request, record *models.FileRecord) {
	ctx := r.Context()

	if vs, ok := h.backend.(storage.VariantStore); ok && record.BackendKind == "" {
		blob, rc, err := vs.OpenVariant(ctx, record.ID, models.BlobKindWeb)
		if err == nil {
			defer rc.Close()
			h.writeHeaders(w, blob.ContentType, record.Filename, false, blob.Size)
			io.Copy(w, rc)
			return
		}
		if !errors.Is(err, common.ErrorNotFound) {
			h.logger.Error(ctx, "opening web rendition failed", "file_id", record.ID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	} else if record.WebKey != "" {
		h.streamKey(w, r, record.WebKey, record.ContentType, record.Filename, false)
		return
	}

	h.serveOriginal(w, r, record, false)
}

// serveOriginal streams the raw stored bytes. Every path that ends up here,
// including rendition fallbacks, must present the access key when the record
// carries one.
func (h *Handler) serveOriginal(w http.ResponseWriter, r *http.Request, record *models.FileRecord, attachment bool) {
	if record.AccessKey != "" && r.URL.Query().Get("original") != record.AccessKey {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	key := record.ID
	if record.BackendKind != "" {
		key = record.ObjectKey
	}
	h.streamKey(w, r, key, record.ContentType, record.Filename, attachment)
}

// streamKey opens the backend object and writes it out. Seekable streams
// get range support through http.ServeContent; others are copied whole.
func (h *Handler) streamKey(w http.ResponseWriter, r *http.Request, key, contentType, filename string, attachment bool) {
	ctx := r.Context()

	rc, err := h.backend.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, common.ErrorNotFound) {
			h.servePlaceholder(w, assetDummy, http.StatusNotFound)
			return
		}
		h.logger.Error(ctx, "opening stored object failed", "key", key, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer rc.Close()

	if rs, ok := rc.(io.ReadSeeker); ok {
		h.writeHeaders(w, contentType, filename, attachment, -1)
		http.ServeContent(w, r, "", time.Time{}, rs)
		return
	}

	h.writeHeaders(w, contentType, filename, attachment, -1)
	io.Copy(w, rc)
}

func (h *Handler) writeHeaders(w http.ResponseWriter, contentType, filename string, attachment bool, size int64) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", cacheControlImmutable)
	if size >= 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
	}
	dispType := "inline"
	if attachment {
		dispType = "attachment"
	}
	if filename != "" {
		w.Header().Set("Content-Disposition", netx.ContentDisposition(dispType, filename))
	}
}

func (h *Handler) servePlaceholder(w http.ResponseWriter, asset string, status int) {
	data, err := assetsFS.ReadFile(asset)
	if err != nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", cacheControlNone)
	w.WriteHeader(status)
	w.Write(data)
}

func extFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	return ""
}
