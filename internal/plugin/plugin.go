// Package plugin exposes the fan and power controllers to a host. Every
// method returns a usable value: failures are logged and mapped to a
// default, and panics are recovered.
package plugin

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/fan"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"codeberg.org/mutker/handheldctl/internal/metrics"
	"codeberg.org/mutker/handheldctl/internal/platform"
	"codeberg.org/mutker/handheldctl/internal/power"
	"codeberg.org/mutker/handheldctl/internal/settings"
	"codeberg.org/mutker/handheldctl/internal/version"
)

const component = "plugin"

// Options wires a Plugin to its collaborators. Fans, Power, Store and
// Logger are required.
type Options struct {
	Fans    FanController
	Power   PowerController
	Store   settings.Store
	Metrics metrics.Collector
	Logger  logger.Logger
	// Key is the settings key, normally "handheldctl".
	Key string
	// Enabled is the stored master switch.
	Enabled bool
	// PlatformInfo overrides host detection.
	PlatformInfo func(ctx context.Context) string
	// Now overrides the clock used for metrics timestamps.
	Now func() time.Time
}

// Plugin is the boundary between the host and the controllers.
type Plugin struct {
	fans         FanController
	power        PowerController
	store        settings.Store
	collector    metrics.Collector
	log          logger.Logger
	key          string
	platformInfo func(ctx context.Context) string
	now          func() time.Time

	mu         sync.Mutex
	enabled    bool
	capability Capability
}

// New returns a Plugin. Call RefreshCapability before the first
// Capability to populate the platform description.
func New(opts Options) *Plugin {
	p := &Plugin{
		fans:         opts.Fans,
		power:        opts.Power,
		store:        opts.Store,
		collector:    opts.Metrics,
		log:          opts.Logger,
		key:          opts.Key,
		platformInfo: opts.PlatformInfo,
		now:          opts.Now,
		enabled:      opts.Enabled,
	}

	if p.collector == nil {
		p.collector, _ = metrics.NewService(metrics.Config{}, opts.Logger)
	}
	if p.platformInfo == nil {
		p.platformInfo = func(ctx context.Context) string {
			return platform.Collect(ctx).Text()
		}
	}
	if p.now == nil {
		p.now = time.Now
	}

	return p
}

// recovered logs a panic raised by operation. Deferred by every host
// method so the named results keep their defaults.
func (p *Plugin) recovered(operation string) {
	if r := recover(); r != nil {
		p.log.Error().
			Str("component", component).
			Str("operation", operation).
			Interface("panic", r).
			Msg("Recovered from panic")
	}
}

func (p *Plugin) logError(err error, operation string) {
	p.log.ErrorWithContext(err, component, operation).Msg("Operation failed")
}

// Version returns the build version.
func (p *Plugin) Version() (v string) {
	defer p.recovered("version")
	return version.Short()
}

// Enabled reports the master switch.
func (p *Plugin) Enabled() (enabled bool) {
	defer p.recovered("enabled")
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled
}

// FanCount returns the number of controlled fans.
func (p *Plugin) FanCount() (n int) {
	defer p.recovered("fan_count")
	return p.fans.FanCount()
}

// FanRPM returns the tachometer reading of fan index, or 0.
func (p *Plugin) FanRPM(index int) (rpm int) {
	defer p.recovered("fan_rpm")
	return p.fans.RPM(index)
}

// FanRPMPercent returns the speed of fan index relative to its maximum.
func (p *Plugin) FanRPMPercent(index int) (percent int) {
	defer p.recovered("fan_rpm_percent")
	return p.fans.RPMPercent(index)
}

// FanTemperature returns the temperature of fan index in degrees Celsius.
func (p *Plugin) FanTemperature(index int) (temp float64) {
	defer p.recovered("fan_temperature")
	return p.fans.Temperature(index)
}

// FanIsAuto reports whether fan index follows its curve.
func (p *Plugin) FanIsAuto(index int) (auto bool) {
	defer p.recovered("fan_is_auto")
	return p.fans.IsAuto(index)
}

// FanConfigs returns every fan configuration.
func (p *Plugin) FanConfigs() (configs []fan.Config) {
	defer p.recovered("fan_configs")
	return p.fans.Configs()
}

// SetFanAuto switches fan index between curve and manual control.
func (p *Plugin) SetFanAuto(ctx context.Context, index int, enabled bool) (ok bool) {
	defer p.recovered("set_fan_auto")
	return p.mutateFan(ctx, "set_fan_auto", p.fans.SetAuto(index, enabled))
}

// SetFanPercent records the manual speed of fan index and drives it in
// manual mode.
func (p *Plugin) SetFanPercent(ctx context.Context, index, percent int) (ok bool) {
	defer p.recovered("set_fan_percent")
	return p.mutateFan(ctx, "set_fan_percent", p.fans.SetPercent(index, percent))
}

// SetFanCurve replaces the curve of fan index.
func (p *Plugin) SetFanCurve(ctx context.Context, index int, curve fan.Curve) (ok bool) {
	defer p.recovered("set_fan_curve")
	return p.mutateFan(ctx, "set_fan_curve", p.fans.SetCurve(index, curve))
}

// mutateFan persists the fan state unless err shows nothing changed.
func (p *Plugin) mutateFan(ctx context.Context, operation string, err error) bool {
	if err != nil {
		p.logError(err, operation)
		if rejected(err) {
			return false
		}
	}

	p.persist(ctx)

	return err == nil
}

func rejected(err error) bool {
	return errors.HasCode(err, errors.ErrInvalidArgument) || errors.HasCode(err, fan.ErrInvalidCurve)
}

// HasPowerTool probes for the power tool.
func (p *Plugin) HasPowerTool() (ok bool) {
	defer p.recovered("has_power_tool")
	return p.power.HasCapability()
}

// PowerToolInfo returns the power tool's diagnostic output or its error
// text.
func (p *Plugin) PowerToolInfo(ctx context.Context) (info string) {
	defer p.recovered("power_tool_info")
	return p.power.Info(ctx)
}

// PowerProfile returns the desired power profile.
func (p *Plugin) PowerProfile() (profile power.Profile) {
	defer p.recovered("power_profile")
	return p.power.Profile()
}

// PowerLimits returns the accepted TDP range.
func (p *Plugin) PowerLimits() (limits power.Limits) {
	defer p.recovered("power_limits")
	return p.power.Limits()
}

// ApplyPower applies profile and persists it. It reports whether the tool
// accepted the profile.
func (p *Plugin) ApplyPower(ctx context.Context, profile power.Profile) (ok bool) {
	defer p.recovered("apply_power")

	err := p.power.Apply(ctx, profile)
	if err != nil {
		p.logError(err, "apply_power")
	}

	p.recordPower(ctx, err == nil)
	p.persist(ctx)

	return err == nil
}

func (p *Plugin) recordPower(ctx context.Context, success bool) {
	profile := p.power.Profile()
	event := &metrics.PowerEvent{
		Timestamp: p.now(),
		TDPWatts:  profile.TDPWatts,
		Boost:     profile.BoostEnabled,
		SMT:       profile.SMTEnabled,
		Success:   success,
	}
	if err := p.collector.RecordPower(ctx, event); err != nil {
		p.log.Debug().Err(err).Msg("Failed to record power event")
	}
}

// Capability returns the last probed capability.
func (p *Plugin) Capability() (c Capability) {
	defer p.recovered("capability")
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capability
}

// RefreshCapability probes the power tool and the platform again.
func (p *Plugin) RefreshCapability(ctx context.Context) (c Capability) {
	defer p.recovered("refresh_capability")

	c = Capability{
		HasPowerTool: p.power.HasCapability(),
		PlatformInfo: p.platformInfo(ctx),
	}

	p.mu.Lock()
	p.capability = c
	p.mu.Unlock()

	p.log.Info().Bool("has_power_tool", c.HasPowerTool).Msg("Capability probed")

	return c
}

// Settings returns the current settings blob.
func (p *Plugin) Settings() (b settings.Blob) {
	defer p.recovered("settings")
	return p.snapshot()
}

func (p *Plugin) snapshot() settings.Blob {
	p.mu.Lock()
	enabled := p.enabled
	p.mu.Unlock()

	return settings.Blob{
		Enabled: enabled,
		Fans:    p.fans.Configs(),
		Power:   p.power.Profile(),
	}
}

// SetSettings replaces every setting with b and persists the result.
// Disabling hands the fans back to firmware; enabling takes control again
// and applies the power profile when the tool is present. Fan
// configurations given while disabled are stored but not driven.
func (p *Plugin) SetSettings(ctx context.Context, b settings.Blob) (ok bool) {
	defer p.recovered("set_settings")

	ok = true

	p.mu.Lock()
	wasEnabled := p.enabled
	p.enabled = b.Enabled
	p.mu.Unlock()

	switch {
	case wasEnabled && !b.Enabled:
		if err := p.fans.Release(); err != nil {
			p.logError(err, "set_settings")
			ok = false
		}
	case !wasEnabled && b.Enabled:
		p.fans.Reset()
	}

	for _, cfg := range b.Fans {
		if err := p.applyFanConfig(cfg); err != nil {
			p.logError(err, "set_settings")
			ok = false
		}
	}

	if b.Enabled && p.power.HasCapability() {
		err := p.power.Apply(ctx, b.Power)
		if err != nil {
			p.logError(err, "set_settings")
			ok = false
		}
		p.recordPower(ctx, err == nil)
	} else {
		p.power.SetDesired(b.Power)
	}

	p.persist(ctx)

	return ok
}

func (p *Plugin) applyFanConfig(cfg fan.Config) error {
	if err := p.fans.SetCurve(cfg.Index, cfg.Curve); err != nil {
		return err
	}
	if err := p.fans.SetPercent(cfg.Index, cfg.ManualPercent); err != nil {
		return err
	}

	return p.fans.SetAuto(cfg.Index, cfg.Mode != fan.ModeManual)
}

// Start probes the capability and takes control of the fans, or hands
// them to firmware when disabled. A stored power profile is applied when
// enabled and the tool is present.
func (p *Plugin) Start(ctx context.Context) {
	defer p.recovered("start")

	p.RefreshCapability(ctx)

	if !p.Enabled() {
		if err := p.fans.Release(); err != nil {
			p.logError(err, "start")
		}
		return
	}

	p.fans.Reset()

	if !p.Capability().HasPowerTool {
		return
	}

	err := p.power.Reapply(ctx)
	if errors.HasCode(err, power.ErrNoProfile) {
		return
	}
	if err != nil {
		p.logError(err, "start")
	}
	p.recordPower(ctx, err == nil)
}

// Resume restores hardware state after the device wakes from suspend.
func (p *Plugin) Resume(ctx context.Context) {
	defer p.recovered("resume")

	p.log.Info().Msg("Resuming")

	if !p.Enabled() {
		if err := p.fans.Release(); err != nil {
			p.logError(err, "resume")
		}
		return
	}

	p.fans.Reset()

	if err := p.power.Reapply(ctx); err != nil && !errors.HasCode(err, power.ErrNoProfile) {
		p.logError(err, "resume")
	}
}

// Tick runs one fan control step while enabled.
func (p *Plugin) Tick(ctx context.Context) (samples []fan.Sample) {
	defer p.recovered("tick")

	if !p.Enabled() {
		return nil
	}

	samples = p.fans.Tick()
	if err := p.collector.Record(ctx, metrics.SnapshotFromSamples(p.now(), samples)); err != nil {
		p.log.Debug().Err(err).Msg("Failed to record metrics")
	}

	return samples
}

// Shutdown hands the fans back to firmware and closes the metrics
// collector.
func (p *Plugin) Shutdown() (err error) {
	defer p.recovered("shutdown")

	var errs []error
	if releaseErr := p.fans.Release(); releaseErr != nil {
		errs = append(errs, releaseErr)
	}
	if closeErr := p.collector.Close(); closeErr != nil {
		errs = append(errs, closeErr)
	}

	return errors.Join(errs...)
}

// persist saves the current settings. Failures are logged; the in-memory
// state stays authoritative.
func (p *Plugin) persist(ctx context.Context) {
	if err := settings.SaveBlob(ctx, p.store, p.key, p.snapshot()); err != nil {
		p.logError(err, "persist")
	}
}
