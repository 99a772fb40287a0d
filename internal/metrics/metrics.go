// Package metrics optionally records fan control ticks and power profile
// changes to a local sqlite database.
package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/fan"
	"codeberg.org/mutker/handheldctl/internal/logger"
)

type service struct {
	repo Repository
	cfg  Config
}

// No-op implementation
type noopCollector struct{}

// NewService returns a Collector backed by sqlite, or a no-op Collector
// when metrics are disabled.
func NewService(cfg Config, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	// If metrics is disabled, return a no-op collector
	if !cfg.Enabled {
		log.Debug().Msg("Metrics collection disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create metrics repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Bool("enabled", cfg.Enabled).
		Msg("Metrics service initialized successfully")

	return &service{
		repo: repo,
		cfg:  cfg,
	}, nil
}

// SnapshotFromSamples converts the result of a fan control tick. Skipped
// fans are left out.
func SnapshotFromSamples(at time.Time, samples []fan.Sample) *Snapshot {
	s := &Snapshot{Timestamp: at, Fans: make([]FanMetrics, 0, len(samples))}
	for _, sample := range samples {
		if sample.Skipped {
			continue
		}
		s.Fans = append(s.Fans, FanMetrics{
			Index: sample.Index,
			Temperature: TempMetrics{
				Current: sample.Temperature,
				Average: sample.Average,
			},
			Speed: SpeedMetrics{
				RPM:     sample.RPM,
				Target:  sample.Target,
				Applied: sample.Applied,
			},
			Auto:     sample.Mode == fan.ModeAuto,
			Actuated: sample.Actuated,
		})
	}

	return s
}

func (s *service) Record(ctx context.Context, snapshot *Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidMetrics)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(snapshot); err != nil {
			return errFactory.Wrap(ErrMetricsCollection, err)
		}
	}

	return nil
}

func (s *service) RecordPower(ctx context.Context, event *PowerEvent) error {
	errFactory := errors.New()

	if event == nil {
		return errFactory.New(ErrInvalidMetrics)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.RecordPower(event); err != nil {
			return errFactory.Wrap(ErrMetricsCollection, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}
	return nil
}

func (*noopCollector) Record(context.Context, *Snapshot) error {
	return nil
}

func (*noopCollector) RecordPower(context.Context, *PowerEvent) error {
	return nil
}

func (*noopCollector) Close() error {
	return nil
}
