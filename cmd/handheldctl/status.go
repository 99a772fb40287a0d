package main

import (
	"fmt"
	"io"
	"strings"

	"codeberg.org/mutker/handheldctl/internal/config"
	"codeberg.org/mutker/handheldctl/internal/fan"
	"codeberg.org/mutker/handheldctl/internal/pid"
	"github.com/spf13/cobra"
)

func newStatusCmd(getConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sensors, fan modes and the stored power profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := getConfig()

			a, err := newApp(cmd.Context(), cfg, true, false)
			if err != nil {
				return err
			}
			defer a.close()

			printStatus(cmd.OutOrStdout(), a)
			return nil
		},
	}
}

func printStatus(w io.Writer, a *app) {
	p := a.plugin

	if daemonPID, err := pid.Read(a.cfg.PIDFile); err == nil {
		fmt.Fprintf(w, "Daemon:     running (PID %d)\n", daemonPID)
	} else {
		fmt.Fprintln(w, "Daemon:     not running")
	}
	fmt.Fprintf(w, "Enabled:    %v\n", p.Enabled())
	fmt.Fprintln(w)

	for _, c := range p.FanConfigs() {
		name := fmt.Sprintf("fan%d", c.Index)
		if dev, err := a.gateway.Device(c.Index); err == nil && dev.Name != "" {
			name = dev.Name
		}

		fmt.Fprintf(w, "%s:\n", name)
		fmt.Fprintf(w, "  Mode:        %s\n", c.Mode)
		if reading, err := a.gateway.Read(c.Index); err == nil {
			fmt.Fprintf(w, "  Speed:       %d RPM (%d%%)\n", reading.RPM, p.FanRPMPercent(c.Index))
			fmt.Fprintf(w, "  Temperature: %.1f°C\n", reading.Temperature)
		} else {
			fmt.Fprintf(w, "  Sensors:     unavailable (%v)\n", err)
		}
		if output, err := a.driver.Percent(c.Index); err == nil {
			fmt.Fprintf(w, "  Output:      %d%%\n", output)
		}
		fmt.Fprintf(w, "  Manual:      %d%%\n", c.ManualPercent)
		fmt.Fprintf(w, "  Curve:       %s\n", formatCurve(c.Curve))
	}
	fmt.Fprintln(w)

	profile := p.PowerProfile()
	limits := p.PowerLimits()
	fmt.Fprintln(w, "Power:")
	fmt.Fprintf(w, "  Tool:        %v\n", p.HasPowerTool())
	fmt.Fprintf(w, "  TDP:         %d W (%d-%d W)\n", profile.TDPWatts, limits.MinTDP, limits.MaxTDP)
	fmt.Fprintf(w, "  Boost:       %v\n", profile.BoostEnabled)
	fmt.Fprintf(w, "  SMT:         %v\n", profile.SMTEnabled)
}

func formatCurve(c fan.Curve) string {
	if len(c) == 0 {
		return "firmware"
	}

	parts := make([]string, len(c))
	for i, p := range c {
		parts[i] = fmt.Sprintf("%g°C→%d%%", p.Temperature, p.Speed)
	}

	return strings.Join(parts, " ")
}
