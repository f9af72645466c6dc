package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.trai.ch/cellar/internal/app"
)

// newRunCmd builds the `run` command, or its `make` alias (spec §6 lists
// both names for the same operation).
func (c *CLI) newRunCmd(use string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " [targets...]",
		Short: "Build the named profile targets",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			c.app.CafDir = c.cafDir(cmd)
			parallelism, _ := cmd.Flags().GetInt("jobs")
			workspace, _ := cmd.Flags().GetString("workspace")

			results, err := c.app.Run(cmd.Context(), args, app.RunOptions{
				Parallelism:   parallelism,
				WorkspaceRoot: workspace,
			})
			if err != nil {
				return err
			}
			for i, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", args[i], r)
			}
			return nil
		},
	}
	cmd.Flags().IntP("jobs", "j", 0, "Maximum concurrent tasks (default: number of CPUs)")
	cmd.Flags().String("workspace", ".", "Workspace root cellarfile.yaml is searched from")
	return cmd
}
