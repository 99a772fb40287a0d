// Package platform describes the machine the daemon runs on.
package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
)

// Info is a best-effort description of the host. Fields that could not be
// read are left empty.
type Info struct {
	Hostname        string
	OS              string
	Platform        string
	PlatformVersion string
	KernelVersion   string
	CPUModel        string
	PhysicalCores   int
	LogicalCores    int
	Uptime          time.Duration
}

// Collect reads host and CPU information.
func Collect(ctx context.Context) Info {
	var info Info

	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Hostname = h.Hostname
		info.OS = h.OS
		info.Platform = h.Platform
		info.PlatformVersion = h.PlatformVersion
		info.KernelVersion = h.KernelVersion
		info.Uptime = time.Duration(h.Uptime) * time.Second
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
		info.CPUModel = strings.TrimSpace(infos[0].ModelName)
	}
	if phys, err := cpu.CountsWithContext(ctx, false); err == nil {
		info.PhysicalCores = phys
	}
	if logical, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.LogicalCores = logical
	}

	return info
}

// Text renders info as aligned "key: value" lines, skipping empty fields.
func (i Info) Text() string {
	var b strings.Builder

	line := func(key, value string) {
		if value == "" {
			return
		}
		fmt.Fprintf(&b, "%-10s %s\n", key+":", value)
	}

	line("Host", i.Hostname)
	line("OS", strings.TrimSpace(strings.Join([]string{i.Platform, i.PlatformVersion}, " ")))
	line("Kernel", i.KernelVersion)
	line("CPU", i.CPUModel)
	if i.LogicalCores > 0 {
		line("Cores", fmt.Sprintf("%d physical, %d logical", i.PhysicalCores, i.LogicalCores))
	}
	if i.Uptime > 0 {
		line("Uptime", i.Uptime.Truncate(time.Minute).String())
	}

	return b.String()
}
