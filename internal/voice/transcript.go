package voice

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vocalia/voice-engine/pkg/util"
)

// Aggregator merges successive partial-text chunks into rolling, then
// finalized, utterance records. The remote endpoint sends cumulative text
// for a turn, so a chunk replaces the open utterance's text rather than
// appending to it. A chunk for the other speaker, or a quiet period longer
// than the coalesce timeout, finalizes the open utterance.
type Aggregator struct {
	logger  *zap.Logger
	timeout time.Duration

	mu      sync.Mutex
	entries []*Utterance
	open    *Utterance
	timer   *util.Debouncer

	// now is swappable for tests.
	now func() time.Time
}

// NewAggregator creates an aggregator that finalizes an open utterance
// after timeout of silence on its speaker's channel.
func NewAggregator(logger *zap.Logger, timeout time.Duration) *Aggregator {
	a := &Aggregator{
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
	a.timer = util.NewDebouncer(timeout, a.finalizeOpen)
	return a
}

// Observe applies one (speaker, text) chunk.
func (a *Aggregator) Observe(speaker Speaker, text string) {
	if text == "" {
		return
	}

	a.mu.Lock()
	if a.open != nil && a.open.Speaker == speaker {
		a.open.Text = text
	} else {
		// Speaker switch or no open turn: the previous open utterance, if
		// any, is implicitly finalized.
		a.finalizeOpenLocked()
		u := &Utterance{Speaker: speaker, Text: text}
		a.entries = append(a.entries, u)
		a.open = u
	}
	a.mu.Unlock()

	a.timer.Reset()
}

// Flush finalizes any open utterance, e.g. at session teardown.
func (a *Aggregator) Flush() {
	a.timer.Cancel()
	a.mu.Lock()
	a.finalizeOpenLocked()
	a.mu.Unlock()
}

// Stop releases the coalescing timer. The aggregator remains readable.
func (a *Aggregator) Stop() {
	a.timer.Stop()
}

// Transcript returns a copy of all utterances in arrival order.
func (a *Aggregator) Transcript() []Utterance {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]Utterance, len(a.entries))
	for i, u := range a.entries {
		out[i] = *u
	}
	return out
}

// OpenUtterance returns the current non-finalized utterance, if any.
func (a *Aggregator) OpenUtterance() (Utterance, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.open == nil {
		return Utterance{}, false
	}
	return *a.open, true
}

func (a *Aggregator) finalizeOpen() {
	a.mu.Lock()
	a.finalizeOpenLocked()
	a.mu.Unlock()
}

// finalizeOpenLocked freezes the open utterance. Idempotent: finalizing an
// already-finalized or absent utterance is a no-op.
func (a *Aggregator) finalizeOpenLocked() {
	if a.open == nil || a.open.Finalized() {
		a.open = nil
		return
	}

	at := a.now()
	a.open.FinalizedAt = &at
	a.logger.Debug("utterance finalized",
		zap.String("speaker", a.open.Speaker.String()),
		zap.Int("text_length", len(a.open.Text)))
	a.open = nil
}
