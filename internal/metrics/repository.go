package metrics

import (
	"database/sql"
	"sync"
	"time"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"codeberg.org/mutker/handheldctl/internal/storage"
)

type repository struct {
	db            *sql.DB
	logger        logger.Logger
	cfg           Config
	mu            sync.Mutex
	buffer        []*Snapshot
	flushTicker   *time.Ticker
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
	closeOnce     sync.Once
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	db, err := storage.Open(cfg.DBPath, schema, log)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Int("batch_timeout", cfg.BatchTimeout).
		Msg("Metrics repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*Snapshot, 0, max(cfg.BatchSize, 1)),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	// Start background goroutine for periodic flushing if batching is enabled
	if cfg.BatchSize > 1 && cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(time.Duration(cfg.BatchTimeout) * time.Second)
		go repo.flusher()
	} else {
		close(repo.flushDoneChan)
	}

	return repo, nil
}

func (r *repository) Record(snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buffer = append(r.buffer, snapshot)

	if len(r.buffer) >= r.cfg.BatchSize {
		return r.flush()
	}

	return nil
}

func (r *repository) RecordPower(event *PowerEvent) error {
	_, err := r.db.Exec(insertPowerEventSQL,
		event.Timestamp.UnixMilli(),
		int64(event.TDPWatts),
		int64(boolToInt(event.Boost)),
		int64(boolToInt(event.SMT)),
		int64(boolToInt(event.Success)),
	)
	if err != nil {
		return errors.New().Wrap(ErrTransactionFailed, err)
	}

	return nil
}

func (r *repository) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.shutdownChan)

		if r.flushTicker != nil {
			r.flushTicker.Stop()
		}

		// Wait for the flusher to finish its final flush
		<-r.flushDoneChan

		r.mu.Lock()
		if flushErr := r.flush(); flushErr != nil {
			r.logger.Error().Err(flushErr).Msg("Failed to flush metrics on close")
		}
		r.mu.Unlock()

		if closeErr := storage.Close(r.db); closeErr != nil {
			err = errors.New().Wrap(ErrStorageClose, closeErr)
			return
		}

		r.logger.Info().Msg("Metrics repository closed gracefully")
	})

	return err
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	for {
		select {
		case <-r.flushTicker.C:
			r.mu.Lock()
			r.flush()
			r.mu.Unlock()
		case <-r.shutdownChan:
			return
		}
	}
}

func (r *repository) flush() error {
	if len(r.buffer) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(insertFanMetricsSQL)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to prepare statement")
		if err := tx.Rollback(); err != nil {
			r.logger.Error().Err(err).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	rows := 0
	for _, snapshot := range r.buffer {
		for _, fan := range snapshot.Fans {
			values := []interface{}{
				snapshot.Timestamp.UnixMilli(),
				int64(fan.Index),
				fan.Temperature.Current,
				fan.Temperature.Average,
				int64(fan.Speed.RPM),
				int64(fan.Speed.Target),
				int64(fan.Speed.Applied),
				int64(boolToInt(fan.Auto)),
				int64(boolToInt(fan.Actuated)),
			}

			if _, err := stmt.Exec(values...); err != nil {
				r.logger.Error().Err(err).Msg("Failed to execute insert")
				if err := tx.Rollback(); err != nil {
					r.logger.Error().Err(err).Msg("Failed to roll back transaction")
				}
				return errFactory.Wrap(ErrTransactionFailed, err)
			}
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	r.logger.Debug().Int("records", rows).Msg("Flushed metrics to database")
	r.buffer = r.buffer[:0]

	return nil
}
