// Command fastscan scans websites through a FastScan backend and rates them.
// Usage: fastscan [-config file] [-reset] <command> [flags] [args]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raysh454/fastscan/internal/app"
	"github.com/raysh454/fastscan/internal/cli"
	"github.com/raysh454/fastscan/internal/logging"
)

const usage = `usage: fastscan [-config file] [-reset] <command> [flags] [args]

commands:
  scan [-yes] <url>                      scan a website
  rate -stars N [-pin PIN] <comment>     rate the last scan
  pin <PIN>                              unlock rating again
  history [-limit N] [host...]           recent scans and feedback
  search [-page N] [-filter F] [-sort S] <query>
  stats [-watch]                         site totals
  identity                               show the visitor identity
  reset                                  clear the local rating state
`

func main() {
	args, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "fastscan: %v\n\n%s", err, usage)
		os.Exit(2)
	}

	cfg, err := app.LoadConfig(args.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fastscan: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.Logging, "fastscan")
	if err != nil {
		fmt.Fprintf(os.Stderr, "fastscan: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApplication(ctx, cfg, args, logger)
	if err != nil {
		logger.Error("startup failed", logging.Field{Key: "error", Value: err.Error()})
		os.Exit(1)
	}

	runErr := application.Run(ctx, os.Stdout, os.Stdin)
	if err := application.Shutdown(); err != nil {
		logger.Warn("shutdown", logging.Field{Key: "error", Value: err.Error()})
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "fastscan: %v\n", runErr)
		os.Exit(1)
	}
}
