package devices

import (
	"go.uber.org/fx"

	"github.com/vocalia/voice-engine/internal/ports"
)

// Module provides the software audio devices.
var Module = fx.Module("devices",
	fx.Provide(
		fx.Annotate(
			NewSilentCapture,
			fx.As(new(ports.CaptureDevice)),
		),
		fx.Annotate(
			NewTimerPlayback,
			fx.As(new(ports.PlaybackDevice)),
		),
	),
)
