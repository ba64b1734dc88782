// Command echorunner is the self-contained executable a manager spawns in
// runner mode: it parses the runner's command-line surface (spec §6),
// selects the named hosted service from a small static registry, and runs
// the dispatch loop until StopAsync is received or the command stream
// closes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"bridgerpc/examples/echoservice"
	"bridgerpc/runner"
)

// services maps a fully-qualified service identifier to the factory that
// constructs it — the implementer-chosen substitute for the reference's
// reflective activation off a type name (spec §4.4).
var services = map[string]func() any{
	"echoservice.EchoService": func() any { return echoservice.New() },
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("echorunner", flag.ContinueOnError)
	process := fs.String("process", "", "fully-qualified service identifier to host")
	cmdPipe := fs.String("command-pipe", "", "command endpoint path")
	respPipe := fs.String("response-pipe", "", "response endpoint path")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	newService, ok := services[*process]
	if !ok {
		fmt.Fprintf(os.Stderr, "echorunner: unknown service %q\n", *process)
		return 1
	}
	if *cmdPipe == "" || *respPipe == "" {
		fmt.Fprintln(os.Stderr, "echorunner: --command-pipe and --response-pipe are required")
		return 1
	}

	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	r := runner.New(runner.Options{
		CommandPath:  *cmdPipe,
		ResponsePath: *respPipe,
		NewService:   newService,
		Logger:       logger,
	})

	if err := r.Run(context.Background()); err != nil && err != runner.ErrStopAsync {
		fmt.Fprintf(os.Stderr, "echorunner: %v\n", err)
		return 1
	}
	return 0
}
