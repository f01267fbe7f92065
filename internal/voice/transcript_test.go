package voice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestAggregatorCoalescesSameSpeaker(t *testing.T) {
	a := NewAggregator(zaptest.NewLogger(t), time.Hour)
	defer a.Stop()

	// Cumulative chunks for one turn replace the open text.
	a.Observe(SpeakerAgent, "Hello")
	a.Observe(SpeakerAgent, "Hello there")
	a.Observe(SpeakerAgent, "Hello there, how can I help?")

	transcript := a.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, "Hello there, how can I help?", transcript[0].Text)
	assert.Equal(t, SpeakerAgent, transcript[0].Speaker)
	assert.False(t, transcript[0].Finalized())
}

func TestAggregatorSpeakerSwitchFinalizes(t *testing.T) {
	a := NewAggregator(zaptest.NewLogger(t), time.Hour)
	defer a.Stop()

	a.Observe(SpeakerUser, "what's the weather")
	a.Observe(SpeakerAgent, "Let me check")

	transcript := a.Transcript()
	require.Len(t, transcript, 2)
	assert.True(t, transcript[0].Finalized(), "previous speaker's turn should be finalized")
	assert.Equal(t, "what's the weather", transcript[0].Text)
	assert.False(t, transcript[1].Finalized())

	open, ok := a.OpenUtterance()
	require.True(t, ok)
	assert.Equal(t, SpeakerAgent, open.Speaker)
}

func TestAggregatorQuietPeriodFinalizes(t *testing.T) {
	a := NewAggregator(zaptest.NewLogger(t), 20*time.Millisecond)
	defer a.Stop()

	a.Observe(SpeakerUser, "hello")

	assert.Eventually(t, func() bool {
		_, open := a.OpenUtterance()
		return !open
	}, time.Second, 5*time.Millisecond)

	transcript := a.Transcript()
	require.Len(t, transcript, 1)
	assert.True(t, transcript[0].Finalized())
}

func TestAggregatorChunkRestartsQuietTimer(t *testing.T) {
	a := NewAggregator(zaptest.NewLogger(t), 60*time.Millisecond)
	defer a.Stop()

	a.Observe(SpeakerUser, "one")
	time.Sleep(30 * time.Millisecond)
	a.Observe(SpeakerUser, "one two")
	time.Sleep(30 * time.Millisecond)

	// 60ms of wall time have passed but never 60ms of silence.
	_, open := a.OpenUtterance()
	assert.True(t, open)
}

func TestAggregatorFlushIsIdempotent(t *testing.T) {
	a := NewAggregator(zaptest.NewLogger(t), time.Hour)
	defer a.Stop()

	a.Observe(SpeakerUser, "hello")
	a.Flush()

	transcript := a.Transcript()
	require.Len(t, transcript, 1)
	require.True(t, transcript[0].Finalized())
	first := *transcript[0].FinalizedAt

	// A second flush must not move the finalization time or add entries.
	a.Flush()
	transcript = a.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, first, *transcript[0].FinalizedAt)
}

func TestAggregatorIgnoresEmptyChunks(t *testing.T) {
	a := NewAggregator(zaptest.NewLogger(t), time.Hour)
	defer a.Stop()

	a.Observe(SpeakerUser, "")
	assert.Empty(t, a.Transcript())
}

func TestAggregatorAlternatingSpeakers(t *testing.T) {
	a := NewAggregator(zaptest.NewLogger(t), time.Hour)
	defer a.Stop()

	a.Observe(SpeakerUser, "hi")
	a.Observe(SpeakerAgent, "hello")
	a.Observe(SpeakerUser, "bye")
	a.Flush()

	transcript := a.Transcript()
	require.Len(t, transcript, 3)
	for i, u := range transcript {
		assert.True(t, u.Finalized(), "entry %d should be finalized", i)
	}
	assert.Equal(t, SpeakerUser, transcript[0].Speaker)
	assert.Equal(t, SpeakerAgent, transcript[1].Speaker)
	assert.Equal(t, SpeakerUser, transcript[2].Speaker)
}
