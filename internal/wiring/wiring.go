// Package wiring registers all Graft nodes for the application. The
// cellar, session, and scheduler are deliberately absent: each is opened
// or constructed per run (a session and a sandboxed scheduler run cannot
// be cached singletons), so internal/app builds them directly instead of
// pulling them from this graph.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/cellar/internal/adapters/config"
	_ "go.trai.ch/cellar/internal/adapters/executor"
	_ "go.trai.ch/cellar/internal/adapters/logger"
	_ "go.trai.ch/cellar/internal/adapters/profile"
	_ "go.trai.ch/cellar/internal/adapters/telemetry/progrock"
	// Register app node.
	_ "go.trai.ch/cellar/internal/app"
)
