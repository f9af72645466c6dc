package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newConfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conf",
		Short: "Get or set a core config.ini value",
	}

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print a core config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			v, err := c.app.ConfGet(args[0])
			if err != nil {
				return usageError{err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}
	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write a core config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			if err := c.app.ConfSet(args[0], args[1]); err != nil {
				return usageError{err}
			}
			return nil
		},
	}
	cmd.AddCommand(getCmd, setCmd)
	return cmd
}
