package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"coursedl/pkg/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := CourseEngine(ctx, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	code := cli.ExitOK
	if res != nil {
		code = res.ExitCode
	} else if err != nil {
		code = cli.ExitError
	}
	stop()
	os.Exit(code)
}

// CourseEngine builds the command line and runs it against args.
func CourseEngine(ctx context.Context, args []string) (*cli.ExecutionResult, error) {
	engine := cli.MakeEngine(cli.NewHandlers())
	return engine.Run(ctx, args)
}
