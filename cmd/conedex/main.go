// Command conedex runs the ConeDex API server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/conedex/conedex/internal/app/runtime"
	"github.com/conedex/conedex/pkg/logger"
)

func main() {
	log := logger.NewDefault("conedex")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := runtime.NewApplication(ctx)
	if err != nil {
		log.WithError(err).Fatal("failed to build application")
	}

	runErr := application.Run(ctx)
	if runErr != nil {
		log.WithError(runErr).Error("server stopped")
	}

	log.Info("shutting down")
	if err := application.Shutdown(context.Background()); err != nil {
		log.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
	if runErr != nil {
		os.Exit(1)
	}
}
