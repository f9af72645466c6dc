package commands

import "github.com/spf13/cobra"

func (c *CLI) newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <remote>",
		Short: "Check that a named remote is configured (no metadata is pulled or merged)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			return c.app.Fetch(cmd.Context(), args[0])
		},
	}
}
