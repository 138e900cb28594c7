// dugout is the command-line scorebook for baseball and softball.
//
// Usage:
//
//	dugout <command> [flags]
//
// Commands:
//
//	init        Create a dugout.yaml configuration
//	match       Record, undo and inspect matches
//	serve       Serve the scorebook HTTP API
//	migrate     Manage the database schema
//	diagnose    Run diagnostic checks on your setup
//	version     Show version information
//
// Examples:
//
//	# Create a config
//	dugout init --driver=sqlite
//
//	# Start a match and record an at-bat
//	dugout match start -f setup.yaml --id opener
//	dugout match at-bat opener double
//
//	# Take back the last two actions
//	dugout match undo opener -n 2 --yes
//
//	# Serve the HTTP API with /metrics
//	DUGOUT_METRICS_ENABLED=true dugout serve --addr :8080
package main

import (
	"os"

	"github.com/AshkanYarmoradi/go-dugout/cli/commands"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
