// Package app provides the main application structure and lifecycle
// management.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/vocalia/voice-engine/internal/voice"
)

// Application wraps the dependency-injected engine with its lifecycle.
type Application struct {
	app *fx.App
}

// New creates a new Application with the provided modules and options.
func New(modules ...fx.Option) *Application {
	options := append(modules, fx.Invoke(registerLifecycleHooks))

	return &Application{
		app: fx.New(options...),
	}
}

// Run starts the application and blocks until it is stopped.
func (a *Application) Run() {
	a.app.Run()
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	return a.app.Stop(ctx)
}

// registerLifecycleHooks ties the session controller into process shutdown
// so an active session is torn down cleanly before exit.
func registerLifecycleHooks(lc fx.Lifecycle, controller *voice.Controller, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("voice engine ready")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down voice engine")
			return controller.Shutdown(ctx)
		},
	})
}
