package plugin_test

import (
	"context"
	"testing"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/fan"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"codeberg.org/mutker/handheldctl/internal/plugin"
	"codeberg.org/mutker/handheldctl/internal/power"
	"codeberg.org/mutker/handheldctl/internal/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const key = "handheldctl"

var curve = fan.Curve{
	{Temperature: 40, Speed: 20},
	{Temperature: 60, Speed: 50},
	{Temperature: 80, Speed: 100},
}

type sensors struct{ temp float64 }

func (*sensors) FanCount() int                      { return 1 }
func (*sensors) MaxRPM(int) int                     { return 5000 }
func (s *sensors) Temperature(int) (float64, error) { return s.temp, nil }

func (*sensors) RPM(index int) (int, error) {
	if index != 0 {
		return 0, errors.New().New(errors.ErrInvalidArgument)
	}
	return 2500, nil
}

type actuator struct {
	sets     []int
	releases int
}

func (a *actuator) SetPercent(_, percent int) error { a.sets = append(a.sets, percent); return nil }
func (a *actuator) Release(int) error               { a.releases++; return nil }

type powerController struct {
	available bool
	desired   power.Profile
	applied   []power.Profile
	reapplied int
	hasSet    bool
}

func (p *powerController) HasCapability() bool         { return p.available }
func (p *powerController) Info(context.Context) string { return "info" }
func (p *powerController) Profile() power.Profile      { return p.desired }
func (p *powerController) Limits() power.Limits        { return power.Limits{MinTDP: 3, MaxTDP: 25} }
func (p *powerController) SetDesired(pr power.Profile) power.Profile {
	p.desired, p.hasSet = pr, true
	return pr
}

func (p *powerController) Apply(_ context.Context, pr power.Profile) error {
	p.desired, p.hasSet = pr, true
	if !p.available {
		return errors.New().New(errors.ErrToolUnavailable)
	}
	p.applied = append(p.applied, pr)
	return nil
}

func (p *powerController) Reapply(context.Context) error {
	if !p.hasSet {
		return errors.New().New(power.ErrNoProfile)
	}
	p.reapplied++
	return nil
}

type fixture struct {
	plugin   *plugin.Plugin
	fans     *fan.Controller
	actuator *actuator
	power    *powerController
	store    settings.Store
	dir      string
}

func newFixture(t *testing.T, enabled bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := settings.NewFileStore(dir, logger.Default())
	require.NoError(t, err)

	act := &actuator{}
	fans := fan.New(&sensors{temp: 50}, act, nil, curve, fan.Options{TemperatureWindow: 1}, logger.Default())
	pc := &powerController{desired: power.Profile{TDPWatts: 15, BoostEnabled: true, SMTEnabled: true}}

	p := plugin.New(plugin.Options{
		Fans:         fans,
		Power:        pc,
		Store:        store,
		Logger:       logger.Default(),
		Key:          key,
		Enabled:      enabled,
		PlatformInfo: func(context.Context) string { return "Host: test\n" },
	})

	return &fixture{plugin: p, fans: fans, actuator: act, power: pc, store: store, dir: dir}
}

func (f *fixture) reload(t *testing.T) settings.Blob {
	t.Helper()
	store, err := settings.NewFileStore(f.dir, logger.Default())
	require.NoError(t, err)
	b, err := settings.LoadBlob(context.Background(), store, key, settings.Blob{})
	require.NoError(t, err)
	return b
}

func TestFanMutationsPersist(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	assert.True(t, f.plugin.SetFanPercent(ctx, 0, 60))
	assert.True(t, f.plugin.SetFanAuto(ctx, 0, false))
	assert.False(t, f.plugin.FanIsAuto(0))
	assert.Equal(t, []int{60}, f.actuator.sets)

	stored := f.reload(t)
	require.Len(t, stored.Fans, 1)
	assert.Equal(t, fan.ModeManual, stored.Fans[0].Mode)
	assert.Equal(t, 60, stored.Fans[0].ManualPercent)
	assert.True(t, stored.Enabled)
}

func TestRejectedCallsReturnDefaults(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	assert.False(t, f.plugin.SetFanAuto(ctx, 4, true))
	assert.False(t, f.plugin.SetFanCurve(ctx, 0, fan.Curve{{Temperature: 50, Speed: 10}, {Temperature: 40, Speed: 20}}))
	assert.False(t, f.plugin.FanIsAuto(4))
	assert.Zero(t, f.plugin.FanRPM(4))

	_, err := f.store.Load(ctx, key)
	assert.True(t, settings.IsNotFound(err), "rejected calls do not persist")
}

func TestFanReads(t *testing.T) {
	f := newFixture(t, true)

	assert.Equal(t, 1, f.plugin.FanCount())
	assert.Equal(t, 2500, f.plugin.FanRPM(0))
	assert.Equal(t, 50, f.plugin.FanRPMPercent(0))
	assert.InDelta(t, 50.0, f.plugin.FanTemperature(0), 0.001)
	assert.Equal(t, curve, f.plugin.FanConfigs()[0].Curve)
}

func TestApplyPowerWithoutTool(t *testing.T) {
	f := newFixture(t, true)

	assert.False(t, f.plugin.HasPowerTool())
	assert.False(t, f.plugin.ApplyPower(context.Background(), power.Profile{TDPWatts: 8}))
	assert.Empty(t, f.power.applied)
	assert.Equal(t, 8, f.reload(t).Power.TDPWatts)
}

func TestApplyPower(t *testing.T) {
	f := newFixture(t, true)
	f.power.available = true

	assert.True(t, f.plugin.ApplyPower(context.Background(), power.Profile{TDPWatts: 10, SMTEnabled: true}))
	assert.Equal(t, []power.Profile{{TDPWatts: 10, SMTEnabled: true}}, f.power.applied)
	assert.Equal(t, "info", f.plugin.PowerToolInfo(context.Background()))
	assert.Equal(t, 10, f.plugin.PowerProfile().TDPWatts)
}

func TestSetSettingsDisableAndEnable(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NotEmpty(t, f.plugin.Tick(ctx))

	b := f.plugin.Settings()
	b.Enabled = false
	b.Power = power.Profile{TDPWatts: 7}
	assert.True(t, f.plugin.SetSettings(ctx, b))
	assert.Equal(t, 1, f.actuator.releases)
	assert.Nil(t, f.plugin.Tick(ctx))
	assert.Empty(t, f.power.applied, "disabled settings only record the profile")
	assert.False(t, f.reload(t).Enabled)

	f.power.available = true
	b.Enabled = true
	assert.True(t, f.plugin.SetSettings(ctx, b))
	assert.Equal(t, []power.Profile{{TDPWatts: 7}}, f.power.applied)
	assert.NotEmpty(t, f.plugin.Tick(ctx))
}

func TestDisabledFansStayWithFirmware(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	b := f.plugin.Settings()
	b.Enabled = false
	b.Fans = []fan.Config{{Index: 0, Mode: fan.ModeManual, ManualPercent: 40, Curve: curve}}
	assert.True(t, f.plugin.SetSettings(ctx, b))
	assert.True(t, f.plugin.SetFanPercent(ctx, 0, 90))
	assert.True(t, f.plugin.SetFanAuto(ctx, 0, false))

	assert.Empty(t, f.actuator.sets)
	assert.Equal(t, 1, f.actuator.releases)
	assert.False(t, f.plugin.FanIsAuto(0))
	assert.Equal(t, 90, f.reload(t).Fans[0].ManualPercent)

	b = f.plugin.Settings()
	b.Enabled = true
	assert.True(t, f.plugin.SetSettings(ctx, b))
	f.plugin.Tick(ctx)
	assert.Equal(t, []int{90}, f.actuator.sets)
}

func TestSetSettingsAppliesFanConfigs(t *testing.T) {
	f := newFixture(t, true)

	b := f.plugin.Settings()
	b.Fans = []fan.Config{{Index: 0, Mode: fan.ModeManual, ManualPercent: 80, Curve: curve}}
	assert.True(t, f.plugin.SetSettings(context.Background(), b))

	assert.False(t, f.plugin.FanIsAuto(0))
	assert.Equal(t, []int{80}, f.actuator.sets)
}

func TestResume(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.plugin.Tick(ctx)
	f.plugin.Resume(ctx)
	assert.Zero(t, f.power.reapplied, "nothing to reapply before a profile is set")

	f.power.available = true
	require.True(t, f.plugin.ApplyPower(ctx, power.Profile{TDPWatts: 12}))
	f.plugin.Resume(ctx)
	assert.Equal(t, 1, f.power.reapplied)

	f.plugin.Tick(ctx)
	assert.Equal(t, []int{35, 35}, f.actuator.sets, "resume rewrites the fan")
}

func TestStartAndCapability(t *testing.T) {
	f := newFixture(t, true)
	f.power.available = true
	f.power.SetDesired(power.Profile{TDPWatts: 11})

	f.plugin.Start(context.Background())

	assert.Equal(t, plugin.Capability{HasPowerTool: true, PlatformInfo: "Host: test\n"}, f.plugin.Capability())
	assert.Equal(t, 1, f.power.reapplied)
	assert.Zero(t, f.actuator.releases)
}

func TestStartWhileDisabledReleasesFans(t *testing.T) {
	f := newFixture(t, false)
	f.power.available = true
	f.power.SetDesired(power.Profile{TDPWatts: 11})
	ctx := context.Background()

	f.plugin.Start(ctx)
	assert.Equal(t, 1, f.actuator.releases)
	assert.Zero(t, f.power.reapplied)

	assert.True(t, f.plugin.SetFanPercent(ctx, 0, 0))
	assert.True(t, f.plugin.SetFanAuto(ctx, 0, false))
	f.plugin.Resume(ctx)
	assert.Equal(t, 2, f.actuator.releases)
	assert.Empty(t, f.actuator.sets)
}

type panickingFans struct{ plugin.FanController }

func (panickingFans) RPM(int) int { panic("sensor exploded") }

func TestPanicsAreRecovered(t *testing.T) {
	f := newFixture(t, true)
	p := plugin.New(plugin.Options{
		Fans:   panickingFans{FanController: f.fans},
		Power:  f.power,
		Store:  f.store,
		Logger: logger.Default(),
		Key:    key,
	})

	assert.NotPanics(t, func() {
		assert.Zero(t, p.FanRPM(0))
	})
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, newFixture(t, true).plugin.Version())
}

func TestShutdownReleasesFans(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.plugin.Shutdown())
	assert.Equal(t, 1, f.actuator.releases)
}
