package plugin

import (
	"context"

	"codeberg.org/mutker/handheldctl/internal/fan"
	"codeberg.org/mutker/handheldctl/internal/power"
)

// FanController is the fan control surface used by the Plugin.
type FanController interface {
	FanCount() int
	RPM(index int) int
	RPMPercent(index int) int
	Temperature(index int) float64
	IsAuto(index int) bool
	Configs() []fan.Config
	SetAuto(index int, enabled bool) error
	SetPercent(index, percent int) error
	SetCurve(index int, curve fan.Curve) error
	Tick() []fan.Sample
	Reset()
	Release() error
}

// PowerController is the power control surface used by the Plugin.
type PowerController interface {
	HasCapability() bool
	Info(ctx context.Context) string
	Apply(ctx context.Context, p power.Profile) error
	Reapply(ctx context.Context) error
	SetDesired(p power.Profile) power.Profile
	Profile() power.Profile
	Limits() power.Limits
}

// Capability summarises what the device supports.
type Capability struct {
	HasPowerTool bool   `json:"has_power_tool"`
	PlatformInfo string `json:"platform_info"`
}
