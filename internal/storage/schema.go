package storage

import (
	"database/sql"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/logger"
)

const createVersionsSQL = `
	CREATE TABLE IF NOT EXISTS schema_versions (
	    version     INTEGER PRIMARY KEY,
	    applied_at  TEXT NOT NULL
	);`

// Schema describes the tables owned by one database file.
type Schema struct {
	// Name prefixes backup files.
	Name    string
	Version int
	// CreateSQL creates every table of the current version.
	CreateSQL string
	// Tables are dropped when the stored version does not match.
	Tables []string
}

// InitSchema creates a new database schema with the current version
func InitSchema(db *sql.DB, schema Schema, log logger.Logger) error {
	errFactory := errors.New()

	log.Debug().Str("schema", schema.Name).Msg("Creating database...")

	tx, err := db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				if !errors.Is(err, sql.ErrTxDone) {
					log.Debug().Err(err).Msg("Failed to rollback transaction")
				}
			}
		}
	}()

	for _, stmt := range []string{createVersionsSQL, schema.CreateSQL} {
		log.Debug().Str("sql", stmt).Msg("Executing SQL statement")
		if _, err := tx.Exec(stmt); err != nil {
			return errFactory.WithData(ErrSchemaInitFailed, struct {
				Error string
				SQL   string
			}{
				Error: err.Error(),
				SQL:   stmt,
			})
		}
	}

	if _, err := tx.Exec(`
        INSERT INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, schema.Version); err != nil {
		return errFactory.WithData(ErrSchemaInitFailed, struct {
			Error string
			Phase string
		}{
			Error: err.Error(),
			Phase: "record_version",
		})
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrSchemaInitFailed, err)
	}
	committed = true

	log.Info().
		Str("schema", schema.Name).
		Int("version", schema.Version).
		Msg("Schema initialized successfully")

	return nil
}

// SchemaVersion returns the stored schema version, or 0 for a new database.
func SchemaVersion(db *sql.DB) (int, error) {
	errFactory := errors.New()

	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, errFactory.Wrap(ErrSchemaValidationFailed, err)
	}
	if !exists {
		return 0, nil
	}

	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errFactory.WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Error string
		}{
			Phase: "get_version",
			Error: err.Error(),
		})
	}

	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, errors.New().WithData(ErrSchemaValidationFailed, struct {
			Phase string
			Table string
			Error string
		}{
			Phase: "check_table_exists",
			Table: tableName,
			Error: err.Error(),
		})
	}

	return exists, nil
}
