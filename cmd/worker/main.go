// Package main is the entry point for the leadflow auction worker
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	lfconfig "github.com/thenexusengine/tne_leadflow/internal/config"
	"github.com/thenexusengine/tne_leadflow/pkg/logger"
)

func main() {
	// Parse configuration from flags and environment
	cfg := ParseConfig()

	// Initialize structured logger
	logger.Init(logger.DefaultConfig())
	log := logger.Log

	// Create worker
	worker, err := NewWorker(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create worker")
	}

	// Consume until a shutdown signal arrives
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- worker.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		cancel()
		<-done
	case err := <-done:
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Consumer stopped with error")
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), lfconfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := worker.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Worker forced to shutdown")
	}
}
