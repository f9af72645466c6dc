package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "list {profiles|remotes|builds|tasks}",
		Short:     "List profiles, remotes, builds, or tasks",
		Args:      cobra.ExactValidArgs(1),
		ValidArgs: []string{"profiles", "remotes", "builds", "tasks"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			workspace, _ := cmd.Flags().GetString("workspace")
			out := cmd.OutOrStdout()

			switch args[0] {
			case "profiles":
				names, err := c.app.ListProfiles(workspace)
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(out, n)
				}
			case "remotes":
				names, err := c.app.ListRemotes()
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(out, n)
				}
			case "builds":
				ids, err := c.app.ListBuilds(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(out, id)
				}
			case "tasks":
				tasks, err := c.app.ListTasks(cmd.Context())
				if err != nil {
					return err
				}
				for hash, state := range tasks {
					fmt.Fprintf(out, "%s %s\n", hash, state)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("workspace", ".", "Workspace root cellarfile.yaml is searched from")
	return cmd
}
