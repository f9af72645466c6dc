package commands

import "github.com/spf13/cobra"

func (c *CLI) newGoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "go <queue-host> <token>",
		Short: "Run this host as a remote worker against a queue",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			max, _ := cmd.Flags().GetInt("max-tasks")
			return c.app.Go(cmd.Context(), args[0], args[1], max)
		},
	}
	cmd.Flags().Int("max-tasks", 0, "Stop after this many tasks (0 = run until cancelled)")
	return cmd
}
