package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/xka/flowmon/common/config"
	"github.com/xka/flowmon/common/logger"
	"github.com/xka/flowmon/common/telemetry"
)

// Exit codes
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

const usage = `usage: flowmon <command> [flags]

commands:
  run     submit a graph and watch it until it finishes
  watch   watch an existing run
  status  fetch a run once and print its summary
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(runMain(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func runMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cfg, err := config.Load("flowmon")
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitUsage
	}

	log := logger.NewWithWriter(stderr, cfg.Service.LogLevel, cfg.Service.LogFormat)
	if cfg.Telemetry.EnableTracing {
		tel, err := telemetry.New(cfg, log)
		if err != nil {
			log.Warn("tracing disabled", "error", err)
		} else {
			defer tel.Shutdown(context.Background())
		}
	}

	app := newApp(cfg, log, stdout, stderr)

	switch args[0] {
	case "run":
		return app.run(ctx, args[1:])
	case "watch":
		return app.watch(ctx, args[1:])
	case "status":
		return app.status(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return exitUsage
	}
}
