package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) newGCCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gc",
		Short: "Garbage collect unreferenced tasks and blobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.app.CafDir = c.cafDir(cmd)
			keep, _ := cmd.Flags().GetInt("keep")
			tasks, blobs, err := c.app.GC(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d tasks, %d blobs\n", tasks, blobs)
			return nil
		},
	}
	cmd.Flags().Int("keep", 10, "Number of most recent builds to retain")
	return cmd
}
