// Package commands implements the CLI commands for the cellar build tool.
package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"go.trai.ch/cellar/internal/app"
)

// CLI represents the command line interface for cellar.
type CLI struct {
	app     *app.App
	rootCmd *cobra.Command
}

// usageError marks an error that should exit 2 (invalid CLI) rather than 1.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// IsUsageError reports whether err should map to exit code 2: an explicit
// usageError from a command body, or one of cobra's own argument/flag
// validation failures (which never carry a typed error of their own).
func IsUsageError(err error) bool {
	var u usageError
	if errors.As(err, &u) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{"unknown command", "invalid argument", "accepts ", "requires ", "unknown flag", "unknown shorthand flag"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// New creates a new CLI instance with the given app.
func New(a *app.App) *CLI {
	rootCmd := &cobra.Command{
		Use:           "cellar",
		Short:         "A content-addressed build engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("cafdir", app.DefaultCafDir, "Path to the cellar state directory")

	c := &CLI{app: a, rootCmd: rootCmd}

	rootCmd.AddCommand(
		c.newInitCmd(),
		c.newConfCmd(),
		c.newRunCmd("run"),
		c.newRunCmd("make"),
		c.newCheckoutCmd(),
		c.newSubmitCmd(),
		c.newResetCmd(),
		c.newListCmd(),
		c.newStatusCmd(),
		c.newGCCmd(),
		c.newRemoteCmd(),
		c.newUpdateCmd(),
		c.newCheckCmd(),
		c.newFetchCmd(),
		c.newArchiveCmd(),
		c.newGoCmd(),
		c.newVersionCmd(),
	)

	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

func (c *CLI) cafDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("cafdir")
	if dir == "" {
		return app.DefaultCafDir
	}
	return dir
}
