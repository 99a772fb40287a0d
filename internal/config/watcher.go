package config

import (
	"context"
	"path/filepath"
	"time"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 500 * time.Millisecond

type fileWatcher struct {
	path     string
	opts     []Option
	debounce time.Duration
	log      logger.Logger
}

// NewWatcher returns a Watcher that reloads the configuration file at path
// with opts whenever it changes. Reload failures are logged and the
// previous configuration stays in effect.
func NewWatcher(path string, log logger.Logger, opts ...Option) Watcher {
	return &fileWatcher{
		path:     path,
		opts:     append([]Option{WithConfigFile(path)}, opts...),
		debounce: defaultWatchDebounce,
		log:      log,
	}
}

func (w *fileWatcher) Watch(ctx context.Context, callback func(Provider)) error {
	errFactory := errors.New()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errFactory.Wrap(errors.ErrWatchConfig, err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return errFactory.Wrap(errors.ErrWatchConfig, err)
	}

	base := filepath.Base(w.path)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounce)
			debounceCh = debounceTimer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Str("path", w.path).Msg("Configuration watcher error")

		case <-debounceCh:
			debounceTimer = nil
			debounceCh = nil

			cfg, err := Load(w.opts...)
			if err != nil {
				w.log.Warn().Err(err).Str("path", w.path).Msg("Ignoring invalid configuration change")
				continue
			}
			w.log.Info().Str("path", w.path).Msg("Configuration reloaded")
			callback(cfg)
		}
	}
}
