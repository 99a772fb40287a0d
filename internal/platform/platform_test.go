package platform_test

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/handheldctl/internal/platform"
	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	info := platform.Info{
		Hostname:        "deck",
		Platform:        "arch",
		PlatformVersion: "rolling",
		KernelVersion:   "6.9.1",
		CPUModel:        "AMD Ryzen 7 7840U",
		PhysicalCores:   8,
		LogicalCores:    16,
		Uptime:          90*time.Minute + 30*time.Second,
	}

	assert.Equal(t, "Host:      deck\n"+
		"OS:        arch rolling\n"+
		"Kernel:    6.9.1\n"+
		"CPU:       AMD Ryzen 7 7840U\n"+
		"Cores:     8 physical, 16 logical\n"+
		"Uptime:    1h30m0s\n", info.Text())
}

func TestTextSkipsEmptyFields(t *testing.T) {
	assert.Equal(t, "CPU:       x\n", platform.Info{CPUModel: "x"}.Text())
	assert.Empty(t, platform.Info{}.Text())
}

func TestCollect(t *testing.T) {
	info := platform.Collect(context.Background())
	assert.GreaterOrEqual(t, info.LogicalCores, 0)
}
