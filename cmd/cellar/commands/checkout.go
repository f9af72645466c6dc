package commands

import "github.com/spf13/cobra"

func (c *CLI) newCheckoutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout <dir> [patterns...]",
		Short: "Materialize a past build's targets into dir",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			nth, _ := cmd.Flags().GetInt("nth")
			nolink, _ := cmd.Flags().GetBool("no-link")
			return c.app.Checkout(cmd.Context(), args[0], args[1:], nth, nolink)
		},
	}
	cmd.Flags().Int("nth", 0, "Nth-most-recent build, 0 is latest")
	cmd.Flags().Bool("no-link", false, "Copy files instead of symlinking")
	return cmd
}
