package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/aikohanasaki/SillyTavern-WorldInfoLocks/internal/lifecycle"
)

func main() {
	// Set up context with signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, lifecycle.ErrCancelled) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
