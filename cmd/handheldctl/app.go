package main

import (
	"context"

	"codeberg.org/mutker/handheldctl/internal/config"
	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/fan"
	"codeberg.org/mutker/handheldctl/internal/hwmon"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"codeberg.org/mutker/handheldctl/internal/metrics"
	"codeberg.org/mutker/handheldctl/internal/plugin"
	"codeberg.org/mutker/handheldctl/internal/power"
	"codeberg.org/mutker/handheldctl/internal/powertool"
	"codeberg.org/mutker/handheldctl/internal/settings"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	gateway *hwmon.Gateway
	driver  *hwmon.Driver
	fans    *fan.Controller
	power   *power.Controller
	store   settings.Store
	plugin  *plugin.Plugin
}

// newApp builds every component from cfg and the stored settings. With
// monitor set, fans are never driven regardless of cfg.
func newApp(ctx context.Context, cfg *config.Config, monitor, withMetrics bool) (*app, error) {
	errFactory := errors.New()
	log := logger.Default()

	store, err := settings.Open(cfg.Settings, log)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}

	pc := power.New(powertool.New(cfg.Power, log), cfg.Power, log)

	stored := true
	blob, err := settings.LoadBlob(ctx, store, cfg.Settings.Key, settings.Blob{
		Enabled: true,
		Power:   pc.Profile(),
	})
	switch {
	case settings.IsNotFound(err):
		stored = false
		log.Info().Msg("No stored settings, using defaults")
	case err != nil:
		stored = false
		log.Warn().Err(err).Msg("Stored settings unreadable, using defaults")
	}

	gateway := hwmon.NewGateway(cfg.HwmonPath, cfg.Fans)
	driver := hwmon.NewDriver(gateway)
	fans := fan.New(gateway, driver, blob.Fans, curveFromConfig(cfg.Curve), fan.Options{
		Hysteresis:        cfg.Hysteresis,
		TemperatureWindow: cfg.TemperatureWindow,
		Monitor:           monitor || cfg.Monitor,
	}, log)

	if stored {
		pc.SetDesired(blob.Power)
	}

	collectorCfg := metrics.FromConfig(cfg.Metrics)
	collectorCfg.Enabled = collectorCfg.Enabled && withMetrics
	collector, err := metrics.NewService(collectorCfg, log)
	if err != nil {
		store.Close()
		return nil, errFactory.Wrap(errors.ErrInitMetrics, err)
	}

	p := plugin.New(plugin.Options{
		Fans:    fans,
		Power:   pc,
		Store:   store,
		Metrics: collector,
		Logger:  log,
		Key:     cfg.Settings.Key,
		Enabled: blob.Enabled,
	})

	return &app{
		cfg:     cfg,
		log:     log,
		gateway: gateway,
		driver:  driver,
		fans:    fans,
		power:   pc,
		store:   store,
		plugin:  p,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.ErrorWithContext(err, "main", "close_settings").Send()
	}
}

func curveFromConfig(points []config.CurvePoint) fan.Curve {
	curve := make(fan.Curve, len(points))
	for i, p := range points {
		curve[i] = fan.Point{Temperature: p.Temperature, Speed: p.Speed}
	}

	return curve
}
