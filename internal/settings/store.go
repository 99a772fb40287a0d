// Package settings persists the user settings blob under a single key.
package settings

import (
	"context"
	"strings"

	"codeberg.org/mutker/handheldctl/internal/config"
	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/logger"
)

// Store is a key-value store for opaque settings blobs. Load returns an
// error with code ErrNotFound for keys that were never saved.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, blob []byte) error
	Close() error
}

// Open returns the store selected by cfg.Backend.
func Open(cfg config.Settings, log logger.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		return NewSQLiteStore(cfg.Path, log)
	case config.BackendFile:
		return NewFileStore(cfg.Path, log)
	default:
		return nil, errors.New().WithData(ErrUnknownBackend, cfg.Backend)
	}
}

// IsNotFound reports whether err means the key holds no value.
func IsNotFound(err error) bool {
	return errors.HasCode(err, ErrNotFound)
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return errors.New().WithData(ErrInvalidKey, key)
	}

	return nil
}
