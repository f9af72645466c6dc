package commands

import "github.com/spf13/cobra"

func (c *CLI) newUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <remote>",
		Short: "Check that a named remote is configured (no metadata is pushed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			return c.app.Update(cmd.Context(), args[0])
		},
	}
}
