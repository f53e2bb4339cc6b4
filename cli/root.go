// Package cli implements the beelzebub command line interface.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hamuko/beelzebub/buildinfo"
)

// Root returns the root beelzebub command.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "beelzebub",
		Short:         "Track application usage and report it for aggregation",
		Version:       buildinfo.Version(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
	cmd.AddCommand(
		client(),
		server(),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the beelzebub version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "beelzebub "+buildinfo.Version())
			return err
		},
	}
}
