package repomanager

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/drivestore/internal/server/repositories/blobs"
	"github.com/dmitrijs2005/drivestore/internal/server/repositories/files"
	"github.com/dmitrijs2005/drivestore/internal/server/repositories/folders"
	"github.com/pressly/goose/v3"
)

func newDB(t *testing.T) *sql.DB {
	t.Helper()
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestFactories_ReturnConcreteRepos(t *testing.T) {
	db := newDB(t)
	m := NewPostgresRepositoryManager()

	var _ RepositoryManager = m
	var _ files.Repository = m.Files(db)
	var _ folders.Repository = m.Folders(db)
	var _ blobs.Repository = m.Blobs(db)
}

func TestRunMigrations_Success(t *testing.T) {
	db := newDB(t)

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	called := false
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		called = true
		if dir != "." {
			return errors.New("unexpected dir")
		}
		return nil
	}

	m := NewPostgresRepositoryManager()
	if err := m.RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("goose.UpContext was not invoked")
	}
}

func TestRunMigrations_PropagatesError(t *testing.T) {
	db := newDB(t)

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	want := errors.New("migration failed")
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return want
	}

	m := NewPostgresRepositoryManager()
	if err := m.RunMigrations(context.Background(), db); !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}
