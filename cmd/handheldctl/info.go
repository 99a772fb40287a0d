package main

import (
	"fmt"

	"codeberg.org/mutker/handheldctl/internal/config"
	"github.com/spf13/cobra"
)

func newInfoCmd(getConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show platform details and the power tool's report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			a, err := newApp(ctx, getConfig(), true, false)
			if err != nil {
				return err
			}
			defer a.close()

			w := cmd.OutOrStdout()
			c := a.plugin.RefreshCapability(ctx)
			fmt.Fprint(w, c.PlatformInfo)
			fmt.Fprintf(w, "%-10s %v\n", "ryzenadj:", c.HasPowerTool)

			if c.HasPowerTool {
				fmt.Fprintln(w)
				fmt.Fprintln(w, a.plugin.PowerToolInfo(ctx))
			}

			return nil
		},
	}
}
