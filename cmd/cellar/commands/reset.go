package commands

import "github.com/spf13/cobra"

func (c *CLI) newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <hash>",
		Short: "Clear a task's state back to CLEAN",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			return c.app.Reset(cmd.Context(), args[0])
		},
	}
}
