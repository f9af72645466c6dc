package commands

import "github.com/spf13/cobra"

func (c *CLI) newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <remote>",
		Short: "Verify a named remote is configured and addressable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			return c.app.Check(args[0])
		},
	}
}
