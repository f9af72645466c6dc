// Package main is the entry point for the cellar CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"go.trai.ch/cellar/cmd/cellar/commands"
	"go.trai.ch/cellar/internal/adapters/config"
	"go.trai.ch/cellar/internal/adapters/executor"
	"go.trai.ch/cellar/internal/adapters/logger"
	"go.trai.ch/cellar/internal/adapters/profile"
	"go.trai.ch/cellar/internal/adapters/telemetry/progrock"
	"go.trai.ch/cellar/internal/app"
)

func main() {
	os.Exit(run())
}

// run wires the application by hand (graft's DI graph backs cmd/cellar's
// eventual plugin surface, but the CLI entry point itself stays a plain
// constructor chain, matching the teacher's own main.go) and executes the
// requested subcommand, returning the exit code spec §6 specifies: 0 on
// success, 1 on any fatal error, 2 on invalid CLI usage.
func run() int {
	log := logger.New()
	a := app.New(
		log,
		config.NewLoader(log),
		profile.NewLoader(log),
		executor.NewShell(log),
		progrock.New(),
		app.DefaultCafDir,
	)

	cli := commands.New(a)
	if err := cli.Execute(context.Background()); err != nil {
		if commands.IsUsageError(err) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 2
		}
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		return 1
	}
	return 0
}
