// reservo is the command-line interface for the reservo reservation engine.
//
// Usage:
//
//	reservo <command> [flags]
//
// Commands:
//
//	serve       Run the HTTP admission gate
//	consume     Handle commands from the kafka topic or azqueue queue
//	send        Admit a request and write it to the command transport
//	decide      Decide a command against a state offline
//	validate    Check request data against the admission table
//	config      Create, show and validate reservo.yaml
//	diagnose    Run diagnostic checks on your setup
//	version     Show version information
//
// Examples:
//
//	# Write a configuration using Postgres and Kafka
//	reservo config init --state postgres --broker kafka
//
//	# Serve the admission gate
//	RESERVO_STATE_POSTGRES_DSN=postgres://localhost/reservo reservo serve
//
//	# Try a command without any backend
//	reservo decide --kind CreateUser --data @user.json
package main

import (
	"os"

	"github.com/AshkanYarmoradi/go-reservo/cli/commands"
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
