package settings

import (
	"context"
	"os"
	"path/filepath"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"github.com/tidwall/jsonc"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

// fileStore keeps each key in <dir>/<key>.json. Files may contain
// comments and trailing commas; they are stripped on load.
type fileStore struct {
	dir string
	log logger.Logger
}

// NewFileStore returns a Store writing JSON files into dir.
func NewFileStore(dir string, log logger.Logger) (Store, error) {
	if dir == "" {
		return nil, errors.New().WithMessage(errors.ErrInvalidConfig, "settings directory not set")
	}

	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, errors.New().Wrap(errors.ErrPersistence, err)
	}

	return &fileStore{dir: dir, log: log}, nil
}

func (s *fileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *fileStore) Load(ctx context.Context, key string) ([]byte, error) {
	errFactory := errors.New()

	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errFactory.Wrap(errors.ErrTimeout, err)
	}

	data, err := os.ReadFile(s.path(key))
	if os.IsNotExist(err) {
		return nil, errFactory.WithData(ErrNotFound, key)
	}
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrPersistence, err)
	}

	return jsonc.ToJSON(data), nil
}

// Save writes blob to a temporary file and renames it over the old one,
// so readers never observe a partial write.
func (s *fileStore) Save(ctx context.Context, key string, blob []byte) error {
	errFactory := errors.New()

	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(errors.ErrTimeout, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+key+".*.tmp")
	if err != nil {
		return errFactory.Wrap(errors.ErrPersistence, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return errFactory.Wrap(errors.ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errFactory.Wrap(errors.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return errFactory.Wrap(errors.ErrPersistence, err)
	}
	if err := os.Chmod(tmp.Name(), defaultFilePerm); err != nil {
		return errFactory.Wrap(errors.ErrPersistence, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return errFactory.Wrap(errors.ErrPersistence, err)
	}

	s.log.Debug().Str("path", s.path(key)).Msg("Settings saved")

	return nil
}

func (*fileStore) Close() error {
	return nil
}
