package metering

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/vocalia/voice-engine/internal/ports"
)

// Module provides the Prometheus-backed usage recorder and the registry it
// writes into.
var Module = fx.Module("metering",
	fx.Provide(
		newRegistry,
		fx.Annotate(
			NewRecorder,
			fx.As(new(ports.UsageRecorder)),
		),
	),
)

func newRegistry() (*prometheus.Registry, prometheus.Registerer) {
	reg := prometheus.NewRegistry()
	return reg, reg
}
