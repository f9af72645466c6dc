package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newRemoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage configured sync remotes",
	}

	addCmd := &cobra.Command{
		Use:   "add <name> <host> <path>",
		Short: "Add a named remote",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			return c.app.RemoteAdd(args[0], args[1], args[2])
		},
	}
	pathCmd := &cobra.Command{
		Use:   "path <name>",
		Short: "Print a remote's configured path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			path, err := c.app.RemotePath(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List configured remote names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.app.CafDir = c.cafDir(cmd)
			names, err := c.app.ListRemotes()
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}

	cmd.AddCommand(addCmd, pathCmd, listCmd)
	return cmd
}
