// Package metering records per-session usage as Prometheus metrics.
package metering

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/vocalia/voice-engine/internal/config"
	"github.com/vocalia/voice-engine/internal/ports"
)

// Recorder implements ports.UsageRecorder on a Prometheus registry. One
// RecordUsage call arrives per session that reached the connected state.
type Recorder struct {
	logger *zap.Logger

	sessions       prometheus.Counter
	turns          prometheus.Counter
	outboundFrames prometheus.Counter
	sessionSeconds prometheus.Histogram
}

// NewRecorder creates the recorder and registers its metrics.
func NewRecorder(logger *zap.Logger, cfg *config.Config, reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	ns := cfg.Metrics.Namespace

	return &Recorder{
		logger: logger,
		sessions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "sessions_total",
			Help:      "Sessions that reached the connected state.",
		}),
		turns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "turns_total",
			Help:      "Completed conversational turns.",
		}),
		outboundFrames: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "outbound_frames_total",
			Help:      "Speech frames sent to the remote endpoint.",
		}),
		sessionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "session_duration_seconds",
			Help:      "Connected time per session.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~68min
		}),
	}
}

// RecordUsage adds one session's accounting to the metrics.
func (r *Recorder) RecordUsage(usage ports.Usage) {
	r.sessions.Inc()
	r.turns.Add(float64(usage.Turns))
	r.outboundFrames.Add(float64(usage.OutboundFrames))
	r.sessionSeconds.Observe(usage.SessionSeconds)

	r.logger.Info("session usage recorded",
		zap.String("user_id", usage.UserID),
		zap.Int("turns", usage.Turns),
		zap.Int64("outbound_frames", usage.OutboundFrames),
		zap.Float64("session_seconds", usage.SessionSeconds))
}
