package ratelimit

import (
	"go.uber.org/fx"

	"github.com/vocalia/voice-engine/internal/ports"
)

// Module provides the rate limiter.
var Module = fx.Module("ratelimit",
	fx.Provide(
		fx.Annotate(
			NewLimiter,
			fx.As(new(ports.RateLimiter)),
		),
	),
)
