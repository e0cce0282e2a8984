package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"PageviewsETL/internal/domain"
)

// exitTempFail is EX_TEMPFAIL from sysexits.h; orchestrators treat it as retryable.
const exitTempFail = 75

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var stageErr *domain.StageError
	if errors.As(err, &stageErr) && domain.Retryable(stageErr) {
		return exitTempFail
	}
	return 1
}
