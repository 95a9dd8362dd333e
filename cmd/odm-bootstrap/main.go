// cmd/odm-bootstrap/main.go
//
// This is the entry point for the odm-bootstrap CLI.
// Running `odm-bootstrap` with no arguments in a workspace performs the whole
// bootstrap: install requirements, import connections, set credentials,
// import tools, import agents.

package main

import (
	"context"
	"os"
	"os/signal"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Interrupts cancel the context, which kills the running child process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := newRootCmd(defaultOptions())
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
