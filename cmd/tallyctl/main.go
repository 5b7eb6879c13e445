package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/benedict2310/tally/internal/cli"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(cli.ExitCode(err))
}

// run executes tallyctl with args. An interrupt cancels ctx, which aborts an
// in-flight press or import instead of leaving it to the HTTP timeout.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cmd := cli.NewRootCmd(version)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	return cmd.ExecuteContext(ctx)
}
