package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <queue>",
		Short: "Register a remote queue and record it as the last-used queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			url, err := c.app.Submit(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), url)
			return nil
		},
	}
}
