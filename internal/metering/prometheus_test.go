package metering

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/vocalia/voice-engine/internal/config"
	"github.com/vocalia/voice-engine/internal/ports"
)

func TestRecorderAccumulatesUsage(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	reg := prometheus.NewPedanticRegistry()
	r := NewRecorder(zaptest.NewLogger(t), cfg, reg)

	r.RecordUsage(ports.Usage{
		UserID:         "user-1",
		Turns:          4,
		OutboundFrames: 1200,
		SessionSeconds: 93.5,
	})
	r.RecordUsage(ports.Usage{
		UserID:         "user-2",
		Turns:          1,
		OutboundFrames: 300,
		SessionSeconds: 12.0,
	})

	assert.Equal(t, 2.0, testutil.ToFloat64(r.sessions))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.turns))
	assert.Equal(t, 1500.0, testutil.ToFloat64(r.outboundFrames))

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "voice_engine_session_duration_seconds" {
			found = true
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, uint64(2), f.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found, "session duration histogram should be registered")
}
