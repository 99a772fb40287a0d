package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"codeberg.org/mutker/handheldctl/internal/config"
	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/fan"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"codeberg.org/mutker/handheldctl/internal/pid"
	"github.com/oklog/run"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func newRunCmd(getConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the fan and power control daemon",
		Long: `Run the control loop until SIGINT or SIGTERM. SIGUSR1 restores fan
and power state after resume from suspend. Changes to the configuration
file are picked up without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), getConfig(), cmd.Flags())
		},
	}
}

type daemon struct {
	*app
	interval atomic.Int64
}

// runDaemon runs the control loop. Configuration reloads keep the flags
// in fs ahead of the file.
func runDaemon(ctx context.Context, cfg *config.Config, fs *pflag.FlagSet) error {
	errFactory := errors.New()

	if err := pid.Write(cfg.PIDFile); err != nil {
		if errors.HasCode(err, errors.ErrAlreadyRunning) {
			logger.ErrorWithCode(errFactory.WithData(errors.ErrAlreadyRunning, cfg.PIDFile)).
				Msg("Another instance is already running")
		}
		return err
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, cfg, false, true)
	if err != nil {
		return err
	}
	defer a.close()

	d := &daemon{app: a}
	d.interval.Store(int64(time.Duration(cfg.Interval) * time.Second))

	if cfg.Monitor {
		logger.Info().Msg("Monitor mode activated. Logging fan status...")
	}

	a.plugin.Start(ctx)

	var g run.Group

	// control loop
	{
		ctx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return d.loop(ctx)
		}, func(error) {
			cancel()
		})
	}

	// signals
	{
		ctx, cancel := context.WithCancel(ctx)
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
		g.Add(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case sig := <-sigs:
					if sig == syscall.SIGUSR1 {
						d.plugin.Resume(ctx)
						continue
					}
					logger.Info().Str("signal", sig.String()).Msg("Received termination signal.")
					return nil
				}
			}
		}, func(error) {
			signal.Stop(sigs)
			cancel()
		})
	}

	// configuration reload
	if path := cfg.File(); path != "" {
		ctx, cancel := context.WithCancel(ctx)
		watcher := config.NewWatcher(path, a.log, config.WithFlags(fs))
		g.Add(func() error {
			return watcher.Watch(ctx, d.reload)
		}, func(error) {
			cancel()
		})
	}

	runErr := g.Run()

	if err := a.plugin.Shutdown(); err != nil {
		logger.ErrorWithContext(err, "main", "shutdown").Msg("Failed to hand fans back to firmware")
	}
	logger.Info().Msg("Exiting...")

	if runErr != nil {
		return errFactory.Wrap(errors.ErrMainLoop, runErr)
	}

	return nil
}

func (d *daemon) loop(ctx context.Context) error {
	interval := time.Duration(d.interval.Load())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.logSamples(d.plugin.Tick(ctx))

			if next := time.Duration(d.interval.Load()); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// reload applies the settings that can change without a restart.
func (d *daemon) reload(p config.Provider) {
	logger.SetLogLevel(logger.ParseLevel(p.GetLogLevel()))
	d.fans.SetTuning(p.GetHysteresis(), p.GetTemperatureWindow())
	d.interval.Store(int64(time.Duration(p.GetInterval()) * time.Second))

	logger.Debug().
		Int("interval", p.GetInterval()).
		Int("hysteresis", p.GetHysteresis()).
		Int("temperature_window", p.GetTemperatureWindow()).
		Msg("Runtime settings updated")
}

func (d *daemon) logSamples(samples []fan.Sample) {
	for _, s := range samples {
		if s.Skipped {
			continue
		}

		event := logger.Debug()
		if d.cfg.Monitor {
			event = logger.Info()
		}

		event.
			Int("fan", s.Index).
			Str("mode", string(s.Mode)).
			Float64("temperature", s.Temperature).
			Float64("avg_temperature", s.Average).
			Int("rpm", s.RPM).
			Int("target", s.Target).
			Int("applied", s.Applied).
			Bool("actuated", s.Actuated).
			Bool("firmware", s.Firmware).
			Msg("")
	}
}
