package commands

import "github.com/spf13/cobra"

func (c *CLI) newArchiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Save a self-contained snapshot of the latest build",
	}
	saveCmd := &cobra.Command{
		Use:   "save <dir>",
		Short: "Materialize the latest build's targets into dir by copy, not symlink",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.app.CafDir = c.cafDir(cmd)
			return c.app.ArchiveSave(cmd.Context(), args[0])
		},
	}
	cmd.AddCommand(saveCmd)
	return cmd
}
