// Package main is the entry point for the bonita CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"bonita/cmd/cli/cmd"
	"bonita/internal/errors"
	"bonita/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cmd.ExecuteContext(ctx)
	stop()

	if err != nil && !errors.IsType(err, errors.TypeDeclined) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logging.Debug("command failed", zap.Error(err), zap.Any("context", errors.ContextOf(err)))
	}
	logging.Sync()
	os.Exit(errors.ExitCode(err))
}
