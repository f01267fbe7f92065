package voice

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vocalia/voice-engine/internal/ports"
)

// SessionState is the lifecycle state of a voice session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateConnected
	StateError
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// Speaker identifies which side of the conversation produced an utterance.
type Speaker int

const (
	SpeakerUser Speaker = iota
	SpeakerAgent
)

func (s Speaker) String() string {
	if s == SpeakerAgent {
		return "agent"
	}
	return "user"
}

// Utterance is one conversational turn. Text is replaced in place while the
// turn is still arriving and frozen once FinalizedAt is set.
type Utterance struct {
	Speaker     Speaker
	Text        string
	FinalizedAt *time.Time
}

// Finalized reports whether the utterance is frozen.
func (u *Utterance) Finalized() bool { return u.FinalizedAt != nil }

// StartOptions configure one session attempt.
type StartOptions struct {
	UserID       string
	Instructions string // falls back to the configured default
	Model        string // falls back to the configured default
	Voice        string // falls back to the configured default
}

// SessionHandlers receive engine signals the hosting UI renders. All fields
// are optional; handlers are invoked from engine goroutines and must not
// block.
type SessionHandlers struct {
	OnStateChange   func(state SessionState)
	OnInputLevel    func(level float32)
	OnAgentSpeaking func(speaking bool)
	OnNotice        func(notice string)
	OnError         func(err error)
}

// Session is one conversation attempt. All fields are owned by the
// controller; external triggers reach them only through controller methods.
type Session struct {
	id     string
	userID string

	mu    sync.Mutex
	state SessionState

	// aborted is set by teardown. A Start still suspended in mic
	// acquisition or connect re-checks it before committing, so a stop
	// that raced the attempt unwinds instead of resurrecting the session.
	aborted bool

	// muted is read fresh on every captured frame. It is shared by pointer
	// with the capture pipeline so a toggle is visible on the very next
	// frame, never a snapshot taken at pipeline setup.
	muted atomic.Bool

	startTime   time.Time
	connectedAt time.Time
	connected   bool

	outboundFrames atomic.Int64
	turns          atomic.Int32
	lastActivity   atomic.Int64 // unix nanos of last inbound/outbound traffic

	aggregator    *Aggregator
	scheduler     *Scheduler
	captureStream ports.CaptureStream

	cancel   context.CancelFunc
	teardown sync.Once
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) abortRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// SetMuted flips the live mute flag. Takes effect on the next captured
// frame.
func (s *Session) SetMuted(muted bool) { s.muted.Store(muted) }

// Muted reports the live mute flag.
func (s *Session) Muted() bool { return s.muted.Load() }

// Transcript returns a snapshot of the transcript so far.
func (s *Session) Transcript() []Utterance { return s.aggregator.Transcript() }

func (s *Session) touchActivity() { s.lastActivity.Store(time.Now().UnixNano()) }
