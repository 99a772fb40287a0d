package fan_test

import (
	stderrors "errors"
	"testing"

	"codeberg.org/mutker/handheldctl/internal/errors"
	"codeberg.org/mutker/handheldctl/internal/fan"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSensors struct {
	temps   []float64
	rpms    []int
	maxRPM  int
	tempErr error
}

func (f *fakeSensors) FanCount() int { return len(f.temps) }

func (f *fakeSensors) RPM(i int) (int, error) { return f.rpms[i], nil }

func (f *fakeSensors) MaxRPM(int) int { return f.maxRPM }

func (f *fakeSensors) Temperature(i int) (float64, error) {
	if f.tempErr != nil {
		return 0, f.tempErr
	}
	return f.temps[i], nil
}

type fakeActuator struct {
	sets     []int
	releases int
	err      error
}

func (f *fakeActuator) SetPercent(_, percent int) error {
	if f.err != nil {
		return f.err
	}
	f.sets = append(f.sets, percent)
	return nil
}

func (f *fakeActuator) Release(int) error {
	if f.err != nil {
		return f.err
	}
	f.releases++
	return nil
}

func newController(t *testing.T, hysteresis, window int) (*fan.Controller, *fakeSensors, *fakeActuator) {
	t.Helper()
	sensors := &fakeSensors{temps: []float64{50}, rpms: []int{2500}, maxRPM: 5000}
	actuator := &fakeActuator{}
	c := fan.New(sensors, actuator, nil, threePoint, fan.Options{
		Hysteresis:        hysteresis,
		TemperatureWindow: window,
	}, logger.Default())
	return c, sensors, actuator
}

func TestTickFollowsCurve(t *testing.T) {
	c, sensors, actuator := newController(t, 0, 1)

	for _, tc := range []struct {
		temp float64
		want int
	}{{50, 35}, {90, 100}, {10, 20}} {
		sensors.temps[0] = tc.temp
		samples := c.Tick()
		require.Len(t, samples, 1)
		assert.Equal(t, tc.want, samples[0].Applied)
		assert.True(t, samples[0].Actuated)
	}

	assert.Equal(t, []int{35, 100, 20}, actuator.sets)
}

func TestTickAveragesTemperature(t *testing.T) {
	c, sensors, actuator := newController(t, 0, 3)

	for _, temp := range []float64{40, 60, 80} {
		sensors.temps[0] = temp
		c.Tick()
	}

	assert.Equal(t, []int{20, 35, 50}, actuator.sets)
}

func TestHysteresisSuppressesChatter(t *testing.T) {
	c, sensors, actuator := newController(t, 3, 1)

	const ticks = 10
	for i := 0; i < ticks; i++ {
		sensors.temps[0] = 50 + float64(i%2)
		c.Tick()
	}

	assert.Len(t, actuator.sets, 1)
	assert.Less(t, len(actuator.sets), ticks)

	sensors.temps[0] = 70
	c.Tick()
	assert.Equal(t, []int{35, 75}, actuator.sets)
}

func TestManualAutoRoundTrip(t *testing.T) {
	c, _, actuator := newController(t, 50, 1)

	c.Tick()
	require.Equal(t, []int{35}, actuator.sets)

	require.NoError(t, c.SetAuto(0, false))
	assert.False(t, c.IsAuto(0))
	assert.Equal(t, 35, actuator.sets[len(actuator.sets)-1], "switching to manual holds the last speed")

	require.NoError(t, c.SetPercent(0, 70))
	assert.Equal(t, 70, actuator.sets[len(actuator.sets)-1])

	c.Tick()
	assert.Len(t, actuator.sets, 3, "manual fans are not rewritten every tick")

	require.NoError(t, c.SetAuto(0, true))
	assert.True(t, c.IsAuto(0))

	c.Tick()
	assert.Equal(t, 35, actuator.sets[len(actuator.sets)-1], "auto resumes the curve despite hysteresis")
	assert.Equal(t, 70, c.Configs()[0].ManualPercent)
}

func TestSetPercentInAutoIsRecordedOnly(t *testing.T) {
	c, _, actuator := newController(t, 0, 1)

	c.Tick()
	require.NoError(t, c.SetPercent(0, 150))
	assert.Equal(t, []int{35}, actuator.sets)
	assert.Equal(t, 100, c.Configs()[0].ManualPercent)

	require.NoError(t, c.SetAuto(0, false))
	assert.Equal(t, []int{35, 100}, actuator.sets)
}

func TestInvalidIndex(t *testing.T) {
	c, _, _ := newController(t, 0, 1)

	err := c.SetAuto(3, true)
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidArgument, errors.CodeOf(err))

	assert.Error(t, c.SetPercent(-1, 10))
	assert.Error(t, c.SetCurve(7, threePoint))
	assert.False(t, c.IsAuto(3))
}

func TestSetCurve(t *testing.T) {
	c, sensors, actuator := newController(t, 0, 1)

	err := c.SetCurve(0, fan.Curve{{Temperature: 60, Speed: 20}, {Temperature: 40, Speed: 30}})
	assert.Equal(t, fan.ErrInvalidCurve, errors.CodeOf(err))

	require.NoError(t, c.SetCurve(0, fan.Curve{{Temperature: 40, Speed: 80}, {Temperature: 60, Speed: 40}}))
	sensors.temps[0] = 50
	c.Tick()
	assert.Equal(t, []int{60}, actuator.sets)
}

func TestEmptyCurveReleasesToFirmware(t *testing.T) {
	c, _, actuator := newController(t, 0, 1)
	require.NoError(t, c.SetCurve(0, nil))

	for i := 0; i < 3; i++ {
		samples := c.Tick()
		assert.True(t, samples[0].Firmware)
	}

	assert.Equal(t, 1, actuator.releases)
	assert.Empty(t, actuator.sets)
}

func TestFailureBackoff(t *testing.T) {
	c, _, actuator := newController(t, 0, 1)
	actuator.err = stderrors.New("write error")

	first := c.Tick()
	require.Error(t, first[0].Err)
	assert.Equal(t, fan.ErrSetSpeedFailed, errors.CodeOf(first[0].Err))

	assert.True(t, c.Tick()[0].Skipped)

	second := c.Tick()
	require.Error(t, second[0].Err)
	assert.True(t, c.Tick()[0].Skipped)
	assert.True(t, c.Tick()[0].Skipped)

	actuator.err = nil
	samples := c.Tick()
	assert.NoError(t, samples[0].Err)
	assert.Equal(t, []int{35}, actuator.sets)
}

func TestResetRedrivesManualFans(t *testing.T) {
	c, _, actuator := newController(t, 0, 1)
	require.NoError(t, c.SetPercent(0, 40))
	require.NoError(t, c.SetAuto(0, false))
	require.Equal(t, []int{40}, actuator.sets)

	c.Tick()
	assert.Len(t, actuator.sets, 1)

	c.Reset()
	c.Tick()
	assert.Equal(t, []int{40, 40}, actuator.sets)
}

func TestReleaseAll(t *testing.T) {
	c, _, actuator := newController(t, 0, 1)
	require.NoError(t, c.Release())
	assert.Equal(t, 1, actuator.releases)

	actuator.err = stderrors.New("busy")
	err := c.Release()
	require.Error(t, err)
	assert.Equal(t, errors.ErrReleaseFans, errors.CodeOf(err))
}

func TestReleasedFansOnlyRecord(t *testing.T) {
	c, _, actuator := newController(t, 0, 1)
	require.NoError(t, c.Release())

	require.NoError(t, c.SetAuto(0, false))
	require.NoError(t, c.SetPercent(0, 0))
	assert.Empty(t, actuator.sets)
	assert.False(t, c.IsAuto(0))
	assert.Equal(t, 0, c.Configs()[0].ManualPercent)

	c.Reset()
	c.Tick()
	assert.Equal(t, []int{0}, actuator.sets)
}

func TestReadsAndDefaults(t *testing.T) {
	c, sensors, _ := newController(t, 0, 1)

	assert.Equal(t, 2500, c.RPM(0))
	assert.Equal(t, 50, c.RPMPercent(0))
	assert.InDelta(t, 50.0, c.Temperature(0), 0.001)

	sensors.rpms[0] = 9000
	assert.Equal(t, 100, c.RPMPercent(0))

	sensors.tempErr = stderrors.New("gone")
	assert.Zero(t, c.Temperature(0))
}

func TestStoredConfigsAreApplied(t *testing.T) {
	sensors := &fakeSensors{temps: []float64{50, 50}, rpms: []int{0, 0}, maxRPM: 5000}
	actuator := &fakeActuator{}
	c := fan.New(sensors, actuator, []fan.Config{
		{Index: 1, Mode: fan.ModeManual, ManualPercent: 65},
		{Index: 9, Mode: fan.ModeManual},
	}, threePoint, fan.Options{TemperatureWindow: 1}, logger.Default())

	configs := c.Configs()
	require.Len(t, configs, 2)
	assert.Equal(t, fan.ModeAuto, configs[0].Mode)
	assert.Equal(t, fan.DefaultManualPercent, configs[0].ManualPercent)
	assert.Equal(t, threePoint, configs[0].Curve)
	assert.Equal(t, fan.ModeManual, configs[1].Mode)

	c.Tick()
	assert.ElementsMatch(t, []int{35, 65}, actuator.sets)
}

func TestMonitorModeDoesNotActuate(t *testing.T) {
	sensors := &fakeSensors{temps: []float64{50}, rpms: []int{0}, maxRPM: 5000}
	actuator := &fakeActuator{}
	c := fan.New(sensors, actuator, nil, threePoint, fan.Options{Monitor: true}, logger.Default())

	samples := c.Tick()
	assert.Equal(t, 35, samples[0].Target)
	assert.False(t, samples[0].Actuated)
	assert.Empty(t, actuator.sets)
}
