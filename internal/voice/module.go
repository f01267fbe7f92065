package voice

import "go.uber.org/fx"

// Module provides the voice engine components.
var Module = fx.Module("voice",
	fx.Provide(
		NewRealtimeProvider,
		NewController,
	),
)
