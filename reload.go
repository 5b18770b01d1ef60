package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/patchbay-go/internal/config"
)

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Tell the running watch to reload its configuration",
		Long: `Send SIGHUP to the running "watch" process. The watcher re-reads the
config file and applies the log level and view filters. A changed bus URL
takes effect only after a restart.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			info, err := sendSIGHUP(config.PIDFilePath())
			if err != nil {
				return err
			}

			if info.Bus != "" {
				cc.Statusf("Reload requested (watch PID %d on %s)\n", info.PID, info.Bus)
			} else {
				cc.Statusf("Reload requested (watch PID %d)\n", info.PID)
			}

			return nil
		},
	}
}
