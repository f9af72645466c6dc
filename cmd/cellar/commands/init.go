package commands

import "github.com/spf13/cobra"

func (c *CLI) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new cellar state directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.app.CafDir = c.cafDir(cmd)
			return c.app.Init(cmd.Context())
		},
	}
}
