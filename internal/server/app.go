// Package server initializes and runs the drive server: database and
// migrations, the selected storage backend, the event bus, the ingestion
// service and the HTTP retrieval endpoint, with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dmitrijs2005/drivestore/internal/logging"
	"github.com/dmitrijs2005/drivestore/internal/server/config"
	"github.com/dmitrijs2005/drivestore/internal/server/drive"
	"github.com/dmitrijs2005/drivestore/internal/server/events"
	"github.com/dmitrijs2005/drivestore/internal/server/media"
	"github.com/dmitrijs2005/drivestore/internal/server/metrics"
	"github.com/dmitrijs2005/drivestore/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/drivestore/internal/server/retrieval"
	"github.com/dmitrijs2005/drivestore/internal/server/storage"
)

type App struct {
	config *config.Config
	logger logging.Logger

	db      *sql.DB
	bus     events.Bus
	drive   *drive.Service
	handler *retrieval.Handler
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	filesRepo := rm.Files(db)
	foldersRepo := rm.Folders(db)

	backend, err := newBackend(ctx, cfg, db, rm)
	if err != nil {
		return nil, fmt.Errorf("storage backend init error: %w", err)
	}

	var bus events.Bus
	if cfg.RedisAddr != "" {
		redisBus, err := events.NewRedisBus(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		bus = redisBus
	} else {
		logger.Warn(ctx, "redis not configured, events stay in-process")
		bus = events.NewMemoryBus()
	}

	gen := media.NewGenerator(logger, cfg.FfmpegPath, cfg.FfprobePath)
	quota := drive.NewQuotaLedger(filesRepo, cfg.LocalCapacityMB, cfg.RemoteCapacityMB)
	driveSvc := drive.NewService(logger, filesRepo, foldersRepo, backend, gen, bus, quota, cfg.KeyPrefix)

	client := &http.Client{Timeout: cfg.RemoteFetchTimeout}
	handler := retrieval.NewHandler(logger, filesRepo, backend, gen, client)

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		bus:     bus,
		drive:   driveSvc,
		handler: handler,
	}, nil
}

// Drive exposes the ingestion service for upload and federation
// collaborators hosted in the same process.
func (app *App) Drive() *drive.Service {
	return app.drive
}

func newBackend(ctx context.Context, cfg *config.Config, db *sql.DB, rm repomanager.RepositoryManager) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case storage.KindChunked:
		return storage.NewChunkedBackend(db, rm.Blobs(db), cfg.PublicBaseURL), nil
	case storage.KindS3:
		return storage.NewS3Backend(ctx, cfg.S3)
	case storage.KindSwift:
		return storage.NewSwiftBackend(ctx, cfg.Swift)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) router() chi.Router {
	r := chi.NewRouter()
	r.Use(app.requestLogger)
	r.Use(metrics.Middleware)

	app.handler.Register(r)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/healthz", app.healthz)

	return r
}

func (app *App) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		app.logger.Info(r.Context(), "request",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start).String())
	})
}

func (app *App) healthz(w http.ResponseWriter, r *http.Request) {
	if err := app.db.PingContext(r.Context()); err != nil {
		http.Error(w, "db unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app", "addr", app.config.EndpointAddrHTTP,
		"backend", app.config.StorageBackend)

	app.initSignalHandler(cancelFunc)

	srv := &http.Server{
		Addr:    app.config.EndpointAddrHTTP,
		Handler: app.router(),
	}

	errCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			app.logger.Error(ctx, "http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(shutdownCtx, "shutdown error", "error", err)
	}

	if closer, ok := app.bus.(interface{ Close() error }); ok {
		closer.Close()
	}
	if err := app.db.Close(); err != nil {
		app.logger.Error(shutdownCtx, "db close error", "error", err)
	}
	app.logger.Info(context.Background(), "app stopped")
}
