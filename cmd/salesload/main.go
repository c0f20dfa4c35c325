// Command salesload loads sales transaction exports into PostgreSQL through
// the data-quality pipeline.
//
// Usage:
//
//	salesload migrate            # create tables
//	salesload run <file>         # run the pipeline once on a CSV or XLSX file
//	salesload serve              # HTTP API
//	salesload schedule           # cron-driven runs and dead-letter purge
//
// Exit codes for run: 0 success, 75 input not available yet (retry),
// 65 corrupt input or structural failure (escalate), 74 persistence failure,
// 1 anything else.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if msg := userMessage(err); msg != "" {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}
		return exitCode(err)
	}
	return exitOK
}
