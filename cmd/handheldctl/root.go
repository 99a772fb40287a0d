package main

import (
	"codeberg.org/mutker/handheldctl/internal/config"
	"codeberg.org/mutker/handheldctl/internal/logger"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfg *config.Config

	root := &cobra.Command{
		Use:   "handheldctl",
		Short: "Fan curve and CPU power manager for handheld PCs",
		Long: `handheldctl drives the fans of a handheld PC from a temperature
curve and applies CPU power limits through ryzenadj.

Run 'handheldctl run' as a service, or 'handheldctl status' to inspect
the sensors and stored settings.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.WithFlags(cmd.Flags()))
			if err != nil {
				return err
			}
			logger.Init(loaded.LogLevel, logger.IsService())
			logger.Debug().Str("file", loaded.File()).Msg("Config loaded")
			cfg = loaded
			return nil
		},
	}

	config.RegisterFlags(root.PersistentFlags())

	getConfig := func() *config.Config { return cfg }
	root.AddCommand(
		newRunCmd(getConfig),
		newStatusCmd(getConfig),
		newInfoCmd(getConfig),
		newVersionCmd(),
	)

	return root
}
