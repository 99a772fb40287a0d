// Package fan evaluates temperature curves and keeps per-fan auto/manual
// state for the configured fans.
package fan

import (
	"fmt"
	"sync"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"github.com/asecurityteam/rolling"
)

const (
	// DefaultManualPercent is used for fans without a stored configuration.
	DefaultManualPercent = 50

	maxBackoffTicks = 16
)

type fanState struct {
	cfg Config

	temps *rolling.PointPolicy

	// lastApplied is the percent most recently written to the hardware.
	lastApplied int
	hasApplied  bool
	// firmware is set once the fan has been handed back to firmware.
	firmware bool

	// manualTarget is the percent held while in manual mode. It differs
	// from cfg.ManualPercent when a switch to manual froze the fan.
	manualTarget  int
	pendingManual bool
	needsDrive    bool

	failures int
	skip     int
}

// Controller owns the control state of every fan. It is safe for
// concurrent use.
type Controller struct {
	sensors  Sensors
	actuator Actuator
	log      logger.Logger

	mu         sync.Mutex
	hysteresis int
	window     int
	monitor    bool
	// released is set while every fan is left to firmware. Mutations are
	// recorded but not driven until Reset or Tick takes control again.
	released bool
	fans     []*fanState
}

// DefaultConfigs returns auto-mode configurations using curve for count fans.
func DefaultConfigs(count int, curve Curve) []Config {
	configs := make([]Config, count)
	for i := range configs {
		configs[i] = Config{
			Index:         i,
			Mode:          ModeAuto,
			ManualPercent: DefaultManualPercent,
			Curve:         curve.Clone(),
		}
	}

	return configs
}

// New returns a Controller for every fan reported by sensors. Entries of
// configs are matched by Index; fans without one get defaults built from
// fallback.
func New(sensors Sensors, actuator Actuator, configs []Config, fallback Curve, opts Options, log logger.Logger) *Controller {
	c := &Controller{
		sensors:    sensors,
		actuator:   actuator,
		log:        log,
		hysteresis: clamp(opts.Hysteresis, 0, 100),
		window:     max(opts.TemperatureWindow, 1),
		monitor:    opts.Monitor,
	}

	defaults := DefaultConfigs(sensors.FanCount(), fallback)
	for _, cfg := range configs {
		if cfg.Index < 0 || cfg.Index >= len(defaults) {
			log.Warn().Int("fan", cfg.Index).Msg("Ignoring configuration for unknown fan")
			continue
		}
		defaults[cfg.Index] = normalize(cfg)
	}

	c.fans = make([]*fanState, len(defaults))
	for i, cfg := range defaults {
		c.fans[i] = &fanState{
			cfg:          cfg,
			temps:        c.newWindow(),
			manualTarget: cfg.ManualPercent,
			needsDrive:   cfg.Mode == ModeManual,
		}
	}

	return c
}

func normalize(cfg Config) Config {
	if cfg.Mode != ModeManual {
		cfg.Mode = ModeAuto
	}
	cfg.ManualPercent = clamp(cfg.ManualPercent, 0, 100)
	if cfg.Curve.Validate() != nil {
		cfg.Curve = nil
	}
	cfg.Curve = cfg.Curve.Clone()

	return cfg
}

func (c *Controller) newWindow() *rolling.PointPolicy {
	return rolling.NewPointPolicy(rolling.NewWindow(c.window))
}

func (c *Controller) fan(index int) (*fanState, error) {
	if index < 0 || index >= len(c.fans) {
		return nil, errors.New().WithData(errors.ErrInvalidArgument,
			fmt.Sprintf("fan index %d out of range", index))
	}

	return c.fans[index], nil
}

// FanCount returns the number of controlled fans.
func (c *Controller) FanCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fans)
}

// RPM returns the current tachometer reading of fan index, or 0.
func (c *Controller) RPM(index int) int {
	rpm, err := c.sensors.RPM(index)
	if err != nil {
		c.log.ErrorWithContext(err, "fan", "rpm").Int("fan", index).Send()
		return 0
	}

	return rpm
}

// RPMPercent returns the RPM of fan index relative to its rated maximum.
func (c *Controller) RPMPercent(index int) int {
	maxRPM := c.sensors.MaxRPM(index)
	if maxRPM <= 0 {
		return 0
	}

	return clamp(c.RPM(index)*100/maxRPM, 0, 100)
}

// Temperature returns the current temperature of fan index in degrees
// Celsius, or 0.
func (c *Controller) Temperature(index int) float64 {
	temp, err := c.sensors.Temperature(index)
	if err != nil {
		c.log.ErrorWithContext(err, "fan", "temperature").Int("fan", index).Send()
		return 0
	}

	return temp
}

// IsAuto reports whether fan index follows its curve. Unknown fans report
// false.
func (c *Controller) IsAuto(index int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.fan(index)
	if err != nil {
		return false
	}

	return f.cfg.Mode == ModeAuto
}

// Configs returns a copy of every fan configuration.
func (c *Controller) Configs() []Config {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Config, len(c.fans))
	for i, f := range c.fans {
		out[i] = f.cfg
		out[i].Curve = f.cfg.Curve.Clone()
	}

	return out
}

// SetAuto switches fan index between curve and manual control. Leaving
// auto mode holds the fan at its last applied speed, unless a manual
// percent was set while in auto mode, in which case that percent is driven.
func (c *Controller) SetAuto(index int, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.fan(index)
	if err != nil {
		return err
	}

	if enabled {
		if f.cfg.Mode == ModeAuto {
			return nil
		}
		f.cfg.Mode = ModeAuto
		f.hasApplied = false
		f.pendingManual = false
		f.needsDrive = false
		c.log.Debug().Int("fan", index).Msg("Fan switched to auto")

		return nil
	}

	if f.cfg.Mode == ModeManual {
		return nil
	}

	f.cfg.Mode = ModeManual
	switch {
	case f.pendingManual || !f.hasApplied:
		f.manualTarget = f.cfg.ManualPercent
	default:
		f.manualTarget = f.lastApplied
	}
	f.pendingManual = false
	c.log.Debug().Int("fan", index).Int("percent", f.manualTarget).Msg("Fan switched to manual")

	return c.driveManual(index, f)
}

// SetPercent records a manual speed for fan index and drives it when the
// fan is in manual mode.
func (c *Controller) SetPercent(index, percent int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.fan(index)
	if err != nil {
		return err
	}

	percent = clamp(percent, 0, 100)
	f.cfg.ManualPercent = percent

	if f.cfg.Mode == ModeAuto {
		f.pendingManual = true
		return nil
	}

	f.manualTarget = percent

	return c.driveManual(index, f)
}

// SetCurve replaces the curve of fan index. An empty curve leaves the fan
// to firmware while in auto mode.
func (c *Controller) SetCurve(index int, curve Curve) error {
	if err := curve.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := c.fan(index)
	if err != nil {
		return err
	}

	if !curve.Monotonic() {
		c.log.Warn().Int("fan", index).Msg("Fan curve speeds decrease with temperature")
	}

	f.cfg.Curve = curve.Clone()
	f.hasApplied = false
	f.firmware = false

	return nil
}

// SetTuning updates hysteresis and the moving-average window. Changing the
// window discards collected temperature samples.
func (c *Controller) SetTuning(hysteresis, window int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hysteresis = clamp(hysteresis, 0, 100)

	window = max(window, 1)
	if window == c.window {
		return
	}
	c.window = window
	for _, f := range c.fans {
		f.temps = c.newWindow()
	}
}

// Tick runs one control step for every fan and reports what happened.
func (c *Controller) Tick() []Sample {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.released = false

	samples := make([]Sample, len(c.fans))
	for i, f := range c.fans {
		samples[i] = c.tickFan(i, f)
	}

	return samples
}

func (c *Controller) tickFan(index int, f *fanState) Sample {
	s := Sample{Index: index, Mode: f.cfg.Mode}

	if f.skip > 0 {
		f.skip--
		s.Skipped = true
		return s
	}

	if rpm, err := c.sensors.RPM(index); err == nil {
		s.RPM = rpm
	}

	if f.cfg.Mode == ModeManual {
		s.Target = f.manualTarget
		if f.needsDrive {
			s.Err = c.driveManual(index, f)
			s.Actuated = s.Err == nil && !c.monitor
		}
		s.Applied = f.lastApplied

		return s
	}

	temp, err := c.sensors.Temperature(index)
	if err != nil {
		s.Err = err
		c.fail(index, f, err)
		return s
	}
	s.Temperature = temp

	f.temps.Append(temp)
	s.Average = f.temps.Reduce(rolling.Avg)

	target, ok := f.cfg.Curve.Evaluate(s.Average)
	if !ok {
		s.Firmware = true
		if !f.firmware {
			s.Err = c.release(index, f)
		}
		return s
	}
	s.Target = target

	if f.hasApplied && (target == f.lastApplied || abs(target-f.lastApplied) < c.hysteresis) {
		s.Applied = f.lastApplied
		return s
	}

	if err := c.drive(index, f, target); err != nil {
		s.Err = err
		return s
	}
	s.Applied = target
	s.Actuated = !c.monitor

	return s
}

func (c *Controller) driveManual(index int, f *fanState) error {
	if c.released {
		f.needsDrive = true
		return nil
	}

	if err := c.drive(index, f, f.manualTarget); err != nil {
		f.needsDrive = true
		return err
	}
	f.needsDrive = false

	return nil
}

func (c *Controller) drive(index int, f *fanState, percent int) error {
	if c.monitor {
		c.log.Debug().Int("fan", index).Int("percent", percent).Msg("Monitor mode, not setting fan speed")
		f.lastApplied = percent
		f.hasApplied = true
		return nil
	}

	if err := c.actuator.SetPercent(index, percent); err != nil {
		c.fail(index, f, err)
		return errors.New().Wrap(ErrSetSpeedFailed, err)
	}

	f.lastApplied = percent
	f.hasApplied = true
	f.firmware = false
	f.failures = 0

	return nil
}

func (c *Controller) release(index int, f *fanState) error {
	if c.monitor {
		f.firmware = true
		return nil
	}

	if err := c.actuator.Release(index); err != nil {
		c.fail(index, f, err)
		return errors.New().Wrap(ErrReleaseFailed, err)
	}

	f.firmware = true
	f.hasApplied = false
	f.failures = 0

	return nil
}

// fail schedules a growing number of skipped ticks after consecutive
// failures of one fan.
func (c *Controller) fail(index int, f *fanState, err error) {
	f.failures++
	f.skip = min(1<<min(f.failures-1, 4), maxBackoffTicks)
	if f.cfg.Mode == ModeManual {
		f.needsDrive = true
	}

	c.log.ErrorWithContext(err, "fan", "tick").
		Int("fan", index).
		Int("failures", f.failures).
		Int("skip_ticks", f.skip).
		Msg("Fan control failed")
}

// Reset forgets hysteresis, backoff and averaging state so the next Tick
// rewrites every fan. It is called after resume from suspend.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.released = false
	for _, f := range c.fans {
		f.hasApplied = false
		f.firmware = false
		f.failures = 0
		f.skip = 0
		f.temps = c.newWindow()
		f.needsDrive = f.cfg.Mode == ModeManual
	}
}

// Release hands every fan back to firmware control. Until the next Reset
// or Tick, SetAuto and SetPercent only record their values.
func (c *Controller) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.released = true

	var errs []error
	for i, f := range c.fans {
		if c.monitor {
			continue
		}
		if err := c.actuator.Release(i); err != nil {
			errs = append(errs, fmt.Errorf("fan %d: %w", i, err))
			continue
		}
		f.firmware = true
		f.hasApplied = false
		f.needsDrive = f.cfg.Mode == ModeManual
	}

	if len(errs) > 0 {
		return errors.New().Wrap(errors.ErrReleaseFans, errors.Join(errs...))
	}

	return nil
}
