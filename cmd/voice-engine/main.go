// Package main provides the entry point for the voice engine service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/fx"

	"github.com/vocalia/voice-engine/internal/app"
	"github.com/vocalia/voice-engine/internal/config"
	"github.com/vocalia/voice-engine/internal/credentials"
	"github.com/vocalia/voice-engine/internal/devices"
	"github.com/vocalia/voice-engine/internal/infrastructure"
	"github.com/vocalia/voice-engine/internal/metering"
	"github.com/vocalia/voice-engine/internal/ratelimit"
	"github.com/vocalia/voice-engine/internal/voice"
	pkginfra "github.com/vocalia/voice-engine/pkg/infrastructure"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	application := app.New(
		// Core modules
		config.Module,
		infrastructure.LoggerModule,

		// Collaborator modules
		credentials.Module,
		ratelimit.Module,
		metering.Module,
		devices.Module,

		// Engine
		voice.Module,

		// Supply the config path
		fx.Supply(*configPath),

		// Route Fx's own logging through the application logger
		fx.WithLogger(pkginfra.NewFxLoggerAdapter),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go application.Run()

	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Stop(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		os.Exit(1)
	}
}
