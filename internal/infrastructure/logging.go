// Package infrastructure wires shared infrastructure components to the
// application configuration.
package infrastructure

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/vocalia/voice-engine/internal/config"
	pkginfra "github.com/vocalia/voice-engine/pkg/infrastructure"
)

// LoggerModule provides the application logger at the configured level.
var LoggerModule = fx.Module("logger",
	fx.Provide(newLogger),
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return pkginfra.NewLogger(cfg.LogLevel)
}
