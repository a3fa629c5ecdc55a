package drive

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/dmitrijs2005/drivestore/internal/common"
	"github.com/dmitrijs2005/drivestore/internal/logging"
	"github.com/dmitrijs2005/drivestore/internal/server/events"
	"github.com/dmitrijs2005/drivestore/internal/server/media"
	"github.com/dmitrijs2005/drivestore/internal/server/models"
)

type fakeFiles struct {
	mu      sync.Mutex
	records map[string]*models.FileRecord
	deleted map[string]bool

	insertErr error
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{
		records: map[string]*models.FileRecord{},
		deleted: map[string]bool{},
	}
}

func (f *fakeFiles) Insert(ctx context.Context, file *models.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	cp := *file
	f.records[file.ID] = &cp
	return nil
}

func (f *fakeFiles) FindByID(ctx context.Context, id string) (*models.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, common.ErrorNotFound
}

func (f *fakeFiles) FindDuplicate(ctx context.Context, ownerID, contentHash string) (*models.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.OwnerID == ownerID && r.ContentHash == contentHash && !f.deleted[r.ID] {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeFiles) FindBySourceURI(ctx context.Context, ownerID, sourceURI string) (*models.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.OwnerID == ownerID && r.SourceURI == sourceURI && !f.deleted[r.ID] {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeFiles) AggregateUsage(ctx context.Context, ownerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, r := range f.records {
		if r.OwnerID == ownerID && r.StorageMode == models.StorageModeMaterialized && !f.deleted[r.ID] {
			sum += r.Size
		}
	}
	return sum, nil
}

func (f *fakeFiles) FindOldestExcluding(ctx context.Context, ownerID string, excludeIDs []string) (*models.FileRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var candidates []*models.FileRecord
	for _, r := range f.records {
		if r.OwnerID != ownerID || f.deleted[r.ID] {
			continue
		}
		excluded := false
		for _, id := range excludeIDs {
			if r.ID == id {
				excluded = true
			}
		}
		if !excluded {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, common.ErrorNotFound
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })
	cp := *candidates[0]
	return &cp, nil
}

func (f *fakeFiles) MarkDeleted(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return common.ErrorNotFound
	}
	f.deleted[id] = true
	return nil
}

func (f *fakeFiles) UpdateProperties(ctx context.Context, id string, width, height int, avgColor string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.Width, r.Height, r.AvgColor = width, height, avgColor
	return nil
}

func (f *fakeFiles) deletedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id, d := range f.deleted {
		if d {
			out = append(out, id)
		}
	}
	return out
}

func (f *fakeFiles) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type fakeFolders struct {
	byID map[string]*models.FolderRecord
}

func (f *fakeFolders) FindByIDAndOwner(ctx context.Context, id, ownerID string) (*models.FolderRecord, error) {
	folder, ok := f.byID[id]
	if !ok || folder.OwnerID != ownerID {
		return nil, common.ErrorNotFound
	}
	return folder, nil
}

type fakeBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: map[string][]byte{}}
}

func (b *fakeBackend) Put(ctx context.Context, key string, content io.Reader, size int64, contentType, dispositionName string) error {
	if b.failPut {
		return errors.New("backend unavailable")
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return nil
}

func (b *fakeBackend) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBackend) Delete(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *fakeBackend) PublicURL(key string) string { return "https://files.example.test/" + key }
func (b *fakeBackend) Kind() string                { return "fake" }

func (b *fakeBackend) objectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type testEnv struct {
	svc     *Service
	files   *fakeFiles
	folders *fakeFolders
	backend *fakeBackend
	bus     *events.MemoryBus
}

func newTestEnv(t *testing.T, localMB, remoteMB int64) *testEnv {
	t.Helper()
	env := &testEnv{
		files:   newFakeFiles(),
		folders: &fakeFolders{byID: map[string]*models.FolderRecord{}},
		backend: newFakeBackend(),
		bus:     events.NewMemoryBus(),
	}
	logger := testLogger()
	gen := media.NewGenerator(logger, "/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	quota := NewQuotaLedger(env.files, localMB, remoteMB)
	env.svc = NewService(logger, env.files, env.folders, env.backend, gen, env.bus, quota, "drive")
	return env
}

func writeJPEG(t *testing.T, w, h int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "img.jpg")
	img := imaging.New(w, h, color.NRGBA{R: 120, G: 80, B: 40, A: 255})
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := imaging.Encode(f, img, imaging.JPEG); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return path
}

func localOwner(id string) models.Owner  { return models.Owner{ID: id} }
func remoteOwner(id string) models.Owner { return models.Owner{ID: id, Host: "remote.example"} }

func TestAddFile_ImageEndToEnd(t *testing.T) {
	env := newTestEnv(t, 100, 100)
	path := writeJPEG(t, 1200, 800)

	rec, err := env.svc.AddFile(context.Background(), AddFileParams{
		Owner: localOwner("alice"),
		Path:  path,
		Name:  "photo.jpg",
	})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	if rec.Width != 1200 || rec.Height != 800 {
		t.Errorf("dimensions = %dx%d, want 1200x800", rec.Width, rec.Height)
	}
	if rec.ContentType != "image/jpeg" {
		t.Errorf("content type = %q", rec.ContentType)
	}
	if rec.StorageMode != models.StorageModeMaterialized {
		t.Errorf("storage mode = %q", rec.StorageMode)
	}
	// local jpeg gets a web rendition and a thumbnail next to the original
	if got := env.backend.objectCount(); got != 3 {
		t.Errorf("stored objects = %d, want 3", got)
	}
	if rec.AccessKey == "" {
		t.Error("access key not set despite web rendition")
	}
	if rec.URL == "" || rec.WebURL == "" || rec.ThumbnailURL == "" {
		t.Errorf("urls incomplete: %q %q %q", rec.URL, rec.WebURL, rec.ThumbnailURL)
	}
	if ev := env.bus.Created(); len(ev) != 1 || ev[0].File.ID != rec.ID {
		t.Errorf("events = %+v, want one for %s", ev, rec.ID)
	}
}

func TestAddFile_DedupReturnsExistingWithoutEvent(t *testing.T) {
	env := newTestEnv(t, 100, 100)
	path := writeJPEG(t, 64, 64)
	owner := localOwner("alice")

	first, err := env.svc.AddFile(context.Background(), AddFileParams{Owner: owner, Path: path, Name: "a.jpg"})
	if err != nil {
		t.Fatalf("first AddFile: %v", err)
	}
	second, err := env.svc.AddFile(context.Background(), AddFileParams{Owner: owner, Path: path, Name: "b.jpg"})
	if err != nil {
		t.Fatalf("second AddFile: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("dedup returned %s, want %s", second.ID, first.ID)
	}
	if got := len(env.bus.Created()); got != 1 {
		t.Errorf("events = %d, want 1", got)
	}
	if env.files.count() != 1 {
		t.Errorf("records = %d, want 1", env.files.count())
	}
}

func TestAddFile_ForceCreatesDistinctRecord(t *testing.T) {
	env := newTestEnv(t, 100, 100)
	path := writeJPEG(t, 64, 64)
	owner := localOwner("alice")

	first, err := env.svc.AddFile(context.Background(), AddFileParams{Owner: owner, Path: path})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	second, err := env.svc.AddFile(context.Background(), AddFileParams{Owner: owner, Path: path, Force: true})
	if err != nil {
		t.Fatalf("forced AddFile: %v", err)
	}
	if second.ID == first.ID {
		t.Error("forced ingestion reused the existing record")
	}
}

func TestAddFile_LocalOverQuotaFails(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	path := writeJPEG(t, 256, 256)

	_, err := env.svc.AddFile(context.Background(), AddFileParams{Owner: localOwner("alice"), Path: path})
	if !errors.Is(err, common.ErrNoFreeSpace) {
		t.Fatalf("err = %v, want ErrNoFreeSpace", err)
	}
	if env.files.count() != 0 {
		t.Errorf("records = %d, want none", env.files.count())
	}
	if env.backend.objectCount() != 0 {
		t.Errorf("stored objects = %d, want none", env.backend.objectCount())
	}
}

func TestAddFile_RemoteOverQuotaEvictsOldest(t *testing.T) {
	env := newTestEnv(t, 100, 0)
	owner := remoteOwner("bob")
	owner.AvatarFileID = "avatar-id"

	// avatar is older than the evictable file but must survive
	env.files.records["avatar-id"] = &models.FileRecord{
		ID: "avatar-id", OwnerID: owner.ID, Size: 10,
		StorageMode: models.StorageModeMaterialized,
		CreatedAt:   time.Now().Add(-2 * time.Hour),
	}
	env.files.records["victim-id"] = &models.FileRecord{
		ID: "victim-id", OwnerID: owner.ID, Size: 10,
		StorageMode: models.StorageModeMaterialized,
		CreatedAt:   time.Now().Add(-time.Hour),
	}

	path := writeJPEG(t, 128, 128)
	rec, err := env.svc.AddFile(context.Background(), AddFileParams{Owner: owner, Path: path})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if rec == nil || rec.ID == "" {
		t.Fatal("over-quota remote ingestion did not produce a record")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		deleted := env.files.deletedIDs()
		if len(deleted) == 1 && deleted[0] == "victim-id" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("eviction did not happen, deleted = %v", deleted)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAddFile_FolderMustBelongToOwner(t *testing.T) {
	env := newTestEnv(t, 100, 100)
	env.folders.byID["f1"] = &models.FolderRecord{ID: "f1", OwnerID: "someone-else"}
	path := writeJPEG(t, 64, 64)

	_, err := env.svc.AddFile(context.Background(), AddFileParams{
		Owner: localOwner("alice"), Path: path, FolderID: "f1",
	})
	if !errors.Is(err, common.ErrFolderNotFound) {
		t.Fatalf("err = %v, want ErrFolderNotFound", err)
	}
}

func TestAddFile_RemoteLinkStoresNoBytes(t *testing.T) {
	env := newTestEnv(t, 100, 100)
	path := writeJPEG(t, 64, 64)

	rec, err := env.svc.AddFile(context.Background(), AddFileParams{
		Owner:        remoteOwner("bob"),
		Path:         path,
		IsRemoteLink: true,
		SourceURL:    "https://remote.example/media/1.jpg",
		SourceURI:    "https://remote.example/objects/1",
	})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	if rec.StorageMode != models.StorageModeRemote {
		t.Errorf("storage mode = %q, want remote", rec.StorageMode)
	}
	if rec.Size != 0 {
		t.Errorf("size = %d, want 0 for link-only record", rec.Size)
	}
	if rec.URL != "https://remote.example/media/1.jpg" {
		t.Errorf("url = %q", rec.URL)
	}
	if env.backend.objectCount() != 0 {
		t.Errorf("stored objects = %d, want none", env.backend.objectCount())
	}
	// the probed dimensions are kept even though no bytes are stored
	if rec.Width != 64 || rec.Height != 64 {
		t.Errorf("dimensions = %dx%d, want 64x64", rec.Width, rec.Height)
	}
	if rec.AvgColor == "" {
		t.Error("average color not recorded for link record")
	}
}

func TestAddFile_RemoteLinkInsertRaceAdoptsWinner(t *testing.T) {
	env := newTestEnv(t, 100, 100)
	owner := remoteOwner("bob")
	uri := "https://remote.example/objects/1"

	winner := &models.FileRecord{ID: "winner-id", OwnerID: owner.ID, SourceURI: uri, StorageMode: models.StorageModeRemote}
	env.files.records[winner.ID] = winner
	env.files.insertErr = common.ErrDuplicateKey

	path := writeJPEG(t, 64, 64)
	rec, err := env.svc.AddFile(context.Background(), AddFileParams{
		Owner: owner, Path: path, IsRemoteLink: true,
		SourceURL: "https://remote.example/media/1.jpg", SourceURI: uri,
	})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if rec.ID != "winner-id" {
		t.Errorf("record id = %s, want winner-id", rec.ID)
	}
	if got := len(env.bus.Created()); got != 0 {
		t.Errorf("events = %d, want none for race loser", got)
	}
}

func TestAddFile_BackendFailureCreatesNoRecord(t *testing.T) {
	env := newTestEnv(t, 100, 100)
	env.backend.failPut = true
	path := writeJPEG(t, 64, 64)

	_, err := env.svc.AddFile(context.Background(), AddFileParams{Owner: localOwner("alice"), Path: path})
	if err == nil {
		t.Fatal("expected backend failure to abort ingestion")
	}
	if env.files.count() != 0 {
		t.Errorf("records = %d, want none after failed write", env.files.count())
	}
}

func TestAddFile_MissingFileAborts(t *testing.T) {
	env := newTestEnv(t, 100, 100)

	_, err := env.svc.AddFile(context.Background(), AddFileParams{
		Owner: localOwner("alice"),
		Path:  filepath.Join(t.TempDir(), "nope.bin"),
	})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want fs.ErrNotExist", err)
	}
}

func TestDeleteFile_TombstonesAndRemovesArtifacts(t *testing.T) {
	env := newTestEnv(t, 100, 100)
	path := writeJPEG(t, 64, 64)

	rec, err := env.svc.AddFile(context.Background(), AddFileParams{Owner: localOwner("alice"), Path: path, Name: "x.jpg"})
	if err != nil {
		t.Fatalf("AddFile: %v", err)
	}
	if err := env.svc.DeleteFile(context.Background(), rec, false); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	if deleted := env.files.deletedIDs(); len(deleted) != 1 || deleted[0] != rec.ID {
		t.Errorf("deleted = %v, want [%s]", deleted, rec.ID)
	}
	if env.backend.objectCount() != 0 {
		t.Errorf("stored objects = %d, want none after delete", env.backend.objectCount())
	}
}
