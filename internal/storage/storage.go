// Package storage opens the sqlite databases used for settings and
// metrics and keeps their schema at the expected version.
package storage

import (
	"database/sql"
	"os"
	"path/filepath"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultDirPerm = 0o755
	backupDirName  = "backups"
)

// Open opens or creates the database at path and migrates it to schema.
// Backups of outdated schemas go to a backups directory next to path.
func Open(path string, schema Schema, log logger.Logger) (*sql.DB, error) {
	errFactory := errors.New()

	if path == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  path,
			Error: err.Error(),
		})
	}

	dsn := path + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	backupDir := filepath.Join(filepath.Dir(path), backupDirName)
	if err := ValidateAndUpdateSchema(db, schema, backupDir, log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	return db, nil
}

// Close checkpoints the write-ahead log and closes db.
func Close(db *sql.DB) error {
	errFactory := errors.New()

	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.Close()
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	return nil
}
