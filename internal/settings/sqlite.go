package settings

import (
	"context"
	"database/sql"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"codeberg.org/mutker/handheldctl/internal/storage"
)

// SchemaVersion is the version of the settings database layout.
const SchemaVersion = 1

var schema = storage.Schema{
	Name:    "settings",
	Version: SchemaVersion,
	CreateSQL: `
	   CREATE TABLE IF NOT EXISTS settings (
	       key         TEXT PRIMARY KEY,
	       value       BLOB NOT NULL,
	       updated_at  TEXT NOT NULL
	   );`,
	Tables: []string{"settings"},
}

const (
	selectSettingSQL = `SELECT value FROM settings WHERE key = ?`

	upsertSettingSQL = `
    INSERT INTO settings (key, value, updated_at)
    VALUES (?, ?, datetime('now'))
    ON CONFLICT (key) DO UPDATE SET
        value = excluded.value,
        updated_at = excluded.updated_at`
)

type sqliteStore struct {
	db  *sql.DB
	log logger.Logger
}

// NewSQLiteStore opens the settings database at path.
func NewSQLiteStore(path string, log logger.Logger) (Store, error) {
	db, err := storage.Open(path, schema, log)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrPersistence, err)
	}

	log.Debug().Str("path", path).Msg("Settings database opened")

	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context, key string) ([]byte, error) {
	errFactory := errors.New()

	if err := validateKey(key); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.QueryRowContext(ctx, selectSettingSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errFactory.WithData(ErrNotFound, key)
	}
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrPersistence, err)
	}

	return value, nil
}

func (s *sqliteStore) Save(ctx context.Context, key string, blob []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, upsertSettingSQL, key, blob); err != nil {
		return errors.New().Wrap(errors.ErrPersistence, err)
	}

	s.log.Debug().Str("key", key).Int("bytes", len(blob)).Msg("Settings saved")

	return nil
}

func (s *sqliteStore) Close() error {
	return storage.Close(s.db)
}
