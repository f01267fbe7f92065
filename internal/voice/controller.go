package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/vocalia/voice-engine/internal/config"
	"github.com/vocalia/voice-engine/internal/ports"
	"github.com/vocalia/voice-engine/pkg/audio"
)

// LimitKindSessionStart is the rate-limit kind consulted once per session
// start attempt.
const LimitKindSessionStart = "session_start"

const persistTimeout = 5 * time.Second

// errStartAborted is returned by Start when teardown was triggered while
// the attempt was still acquiring its resources. The session is already
// closed and released by the time Start returns it.
var errStartAborted = errors.New("session stopped before startup completed")

// Controller owns the session lifecycle: it wires the capture pipeline,
// the remote provider, the playback scheduler and the transcript aggregator
// together for one session at a time, and guarantees teardown runs exactly
// once no matter which of its triggers fires first.
type Controller struct {
	logger   *zap.Logger
	cfg      *config.Config
	provider RemoteProvider
	capture  ports.CaptureDevice
	playback ports.PlaybackDevice
	creds    ports.CredentialSource
	limiter  ports.RateLimiter
	recorder ports.UsageRecorder
	store    ports.TranscriptStore
	privacy  ports.PrivacyPrefs
	tools    ports.ToolHandler

	mu      sync.Mutex
	current *Session
	seq     atomic.Int64
}

// ControllerParams collects the controller's collaborators. Transcript
// persistence, privacy preferences and tool execution are optional; a nil
// collaborator disables the feature.
type ControllerParams struct {
	fx.In

	Logger   *zap.Logger
	Config   *config.Config
	Provider RemoteProvider
	Capture  ports.CaptureDevice
	Playback ports.PlaybackDevice
	Creds    ports.CredentialSource
	Limiter  ports.RateLimiter
	Recorder ports.UsageRecorder
	Store    ports.TranscriptStore `optional:"true"`
	Privacy  ports.PrivacyPrefs    `optional:"true"`
	Tools    ports.ToolHandler     `optional:"true"`
}

// NewController creates the session controller.
func NewController(p ControllerParams) *Controller {
	return &Controller{
		logger:   p.Logger,
		cfg:      p.Config,
		provider: p.Provider,
		capture:  p.Capture,
		playback: p.Playback,
		creds:    p.Creds,
		limiter:  p.Limiter,
		recorder: p.Recorder,
		store:    p.Store,
		privacy:  p.Privacy,
		tools:    p.Tools,
	}
}

// Current returns the active session, nil when none.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Start runs one session attempt. Precondition failures reject the attempt
// without leaving Idle; acquisition failures land in StateError with nothing
// half-open: the microphone is acquired before the remote connection is
// opened, so a permission denial never leaves a connection behind, and a
// connect failure releases the already-held microphone inline.
func (c *Controller) Start(ctx context.Context, opts StartOptions, handlers SessionHandlers) (*Session, error) {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return nil, newError(KindConfiguration, "a session is already active")
	}

	sess := &Session{
		id:        "sess-" + strconv.FormatInt(c.seq.Add(1), 10),
		userID:    opts.UserID,
		state:     StateIdle,
		startTime: time.Now(),
	}
	c.current = sess
	c.mu.Unlock()

	logger := c.logger.With(zap.String("session_id", sess.id), zap.String("user_id", sess.userID))

	release := func() {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
	}

	// Precondition failures happen before any device or network access;
	// the attempt never leaves Idle.
	reject := func(err *Error) (*Session, error) {
		logger.Warn("session start rejected",
			zap.String("kind", err.Kind.String()), zap.Error(err))
		if handlers.OnError != nil {
			handlers.OnError(err)
		}
		release()
		return nil, err
	}

	// Acquisition failures happen mid-Connecting; the attempt lands in
	// Error.
	fail := func(err *Error) (*Session, error) {
		logger.Warn("session start failed",
			zap.String("kind", err.Kind.String()), zap.Error(err))
		sess.setState(StateError)
		notifyState(handlers, StateError)
		if handlers.OnError != nil {
			handlers.OnError(err)
		}
		release()
		return nil, err
	}

	instructions := opts.Instructions
	if instructions == "" {
		instructions = c.cfg.Realtime.DefaultInstructions
	}
	if instructions == "" {
		return reject(newError(KindConfiguration, "no instructions configured for this session"))
	}

	credential, ok := c.creds.Credential(opts.UserID)
	if !ok {
		return reject(newError(KindConfiguration, "no remote credential available for user"))
	}

	if d := c.limiter.Allow(opts.UserID, LimitKindSessionStart); !d.Allowed {
		return reject(newError(KindRateLimited,
			fmt.Sprintf("session starts throttled, retry in %s", d.RetryAfter)))
	}

	model := opts.Model
	if model == "" {
		model = c.cfg.Realtime.Model
	}
	voice := opts.Voice
	if voice == "" {
		voice = c.cfg.Realtime.Voice
	}

	// The wire profile must be one the remote endpoint actually decodes;
	// shipping, say, Opus frames into a PCM16 input buffer would produce
	// garbage audio with no error.
	if !c.provider.SupportsWireCodec(c.cfg.Audio.WireCodec) {
		return reject(newError(KindConfiguration,
			fmt.Sprintf("wire codec %q not supported by the remote endpoint", c.cfg.Audio.WireCodec)))
	}

	codec, err := c.wireCodec()
	if err != nil {
		return reject(wrapError(KindConfiguration, "failed to build wire codec", err))
	}

	sess.setState(StateConnecting)
	notifyState(handlers, StateConnecting)
	logger.Info("starting session", zap.String("model", model), zap.String("voice", voice))

	sessCtx, cancel := context.WithCancel(context.Background())
	sess.cancel = cancel

	// Microphone first. If the user denies access no remote connection has
	// been opened yet, so there is nothing to unwind but the local stream.
	stream, err := c.capture.Start(sessCtx, ports.CaptureConfig{
		SampleRate: c.cfg.Audio.CaptureSampleRate,
		Channels:   c.cfg.Audio.CaptureChannels,
		FrameSize:  c.cfg.Audio.FrameSize,
	})
	if err != nil {
		cancel()
		return fail(classifyCaptureError(err))
	}
	sess.captureStream = stream

	// Stop may have landed while acquisition was pending; the teardown that
	// ran could not see the stream, so release it here.
	if sess.abortRequested() {
		_ = stream.Close()
		cancel()
		logger.Info("session start aborted during microphone acquisition")
		return nil, errStartAborted
	}

	sess.aggregator = NewAggregator(logger,
		time.Duration(c.cfg.Session.CoalesceTimeoutMs)*time.Millisecond)

	var speaking atomic.Bool
	sess.scheduler = NewScheduler(logger, c.playback, func() {
		if speaking.CompareAndSwap(true, false) && handlers.OnAgentSpeaking != nil {
			handlers.OnAgentSpeaking(false)
		}
	})

	c.provider.SetEvents(c.remoteEvents(sess, handlers, &speaking, logger))

	if err := c.provider.Connect(ctx, credential, SessionOptions{
		Model:        model,
		Voice:        voice,
		Instructions: instructions,
		VADMode:      c.cfg.Realtime.VADMode,
		WireCodec:    c.cfg.Audio.WireCodec,
		Tools:        c.cfg.Tools,
	}); err != nil {
		cancel()
		_ = stream.Close()
		sess.aggregator.Stop()
		return fail(wrapError(KindConnection, "failed to reach voice service", err))
	}

	sess.scheduler.Reset()

	pipeline := &capturePipeline{
		logger:      logger,
		codec:       codec,
		limiter:     c.limiter,
		captureRate: c.cfg.Audio.CaptureSampleRate,
		channels:    c.cfg.Audio.CaptureChannels,
		wireRate:    c.cfg.Audio.WireSampleRate,
		userID:      sess.userID,
		muted:       &sess.muted,
		frames:      &sess.outboundFrames,
		send:        c.provider.AppendAudio,
		onLevel:     handlers.OnInputLevel,
		onNotice:    handlers.OnNotice,
		onFatal: func(err error) {
			if handlers.OnError != nil {
				handlers.OnError(err)
			}
			c.teardown(sess, handlers, StateError)
		},
		touch: sess.touchActivity,
	}
	// Commit under the session lock. Teardown sets aborted under the same
	// lock, so either it ran first and this unwinds the connection it could
	// not see, or the commit wins and teardown closes everything normally.
	sess.mu.Lock()
	if sess.aborted {
		sess.mu.Unlock()
		_ = c.provider.Close()
		_ = stream.Close()
		sess.scheduler.Clear()
		sess.aggregator.Stop()
		cancel()
		logger.Info("session start aborted during connect")
		return nil, errStartAborted
	}
	sess.state = StateConnected
	sess.connected = true
	sess.connectedAt = time.Now()
	sess.mu.Unlock()
	sess.touchActivity()

	notifyState(handlers, StateConnected)
	logger.Info("session connected")

	go pipeline.run(sessCtx, stream)
	go c.watchdog(sessCtx, sess, handlers)

	return sess, nil
}

// Stop tears the given session down. Safe to call repeatedly and
// concurrently with the engine's own teardown triggers.
func (c *Controller) Stop(sess *Session, handlers SessionHandlers) {
	if sess == nil {
		return
	}
	c.teardown(sess, handlers, StateClosed)
}

// Shutdown stops the active session, if any. Wired into process shutdown.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	sess := c.current
	c.mu.Unlock()
	if sess != nil {
		c.teardown(sess, SessionHandlers{}, StateClosed)
	}
	return nil
}

func (c *Controller) remoteEvents(sess *Session, handlers SessionHandlers, speaking *atomic.Bool, logger *zap.Logger) RemoteEvents {
	return RemoteEvents{
		OnAudio: func(pcm []byte) {
			sess.touchActivity()
			buf := audio.Renderable(pcm, c.cfg.Audio.WireSampleRate, audio.WireChannels)
			if err := sess.scheduler.Enqueue(buf); err != nil {
				logger.Warn("failed to enqueue playback buffer", zap.Error(err))
				return
			}
			if speaking.CompareAndSwap(false, true) && handlers.OnAgentSpeaking != nil {
				handlers.OnAgentSpeaking(true)
			}
		},
		OnAgentTranscript: func(text string) {
			sess.touchActivity()
			sess.aggregator.Observe(SpeakerAgent, text)
		},
		OnUserTranscript: func(text string) {
			sess.touchActivity()
			sess.aggregator.Observe(SpeakerUser, text)
		},
		OnInterruption: func() {
			sess.touchActivity()
			sess.scheduler.Interrupt()
			if speaking.CompareAndSwap(true, false) && handlers.OnAgentSpeaking != nil {
				handlers.OnAgentSpeaking(false)
			}
		},
		OnToolCall: func(callID, name string, args json.RawMessage) {
			sess.touchActivity()
			go c.runTool(sess, callID, name, args, logger)
		},
		OnTurnDone: func(usage *TurnUsage) {
			sess.touchActivity()
			sess.turns.Add(1)
			if usage != nil {
				logger.Debug("turn completed",
					zap.Int("input_tokens", usage.InputTokens),
					zap.Int("output_tokens", usage.OutputTokens),
					zap.Int("input_audio_tokens", usage.InputAudioTokens),
					zap.Int("output_audio_tokens", usage.OutputAudioTokens))
			}
		},
		OnProtocolError: func(err error) {
			logger.Error("remote protocol error", zap.Error(err))
			if handlers.OnError != nil {
				handlers.OnError(err)
			}
			c.teardown(sess, handlers, StateError)
		},
		OnDisconnect: func(err error) {
			logger.Warn("remote connection lost", zap.Error(err))
			if handlers.OnError != nil {
				handlers.OnError(wrapError(KindConnection, "voice service connection lost", err))
			}
			c.teardown(sess, handlers, StateError)
		},
	}
}

// runTool executes one requested action and relays its result. Handler
// failures are reported back to the remote endpoint rather than ending the
// session.
func (c *Controller) runTool(sess *Session, callID, name string, args json.RawMessage, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var output string
	if c.tools == nil {
		output = toolErrorOutput(fmt.Sprintf("no handler registered for tool %q", name))
	} else if result, err := c.tools.HandleToolCall(ctx, name, args); err != nil {
		logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
		output = toolErrorOutput(err.Error())
	} else {
		output = result
	}

	if err := c.provider.SendToolResult(ctx, callID, output); err != nil {
		logger.Warn("failed to relay tool result",
			zap.String("tool", name), zap.Error(err))
	}
}

func toolErrorOutput(msg string) string {
	out, _ := json.Marshal(map[string]string{"error": msg})
	return string(out)
}

// watchdog enforces the configured maximum session length and inactivity
// timeout. Zero values disable the respective check.
func (c *Controller) watchdog(ctx context.Context, sess *Session, handlers SessionHandlers) {
	maxLength := time.Duration(c.cfg.Session.MaxSessionLengthMin) * time.Minute
	inactivity := time.Duration(c.cfg.Session.InactivityTimeoutSec) * time.Second
	if maxLength == 0 && inactivity == 0 {
		return
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if maxLength > 0 && time.Since(sess.startTime) > maxLength {
				notice(handlers, "session reached its maximum length")
				c.teardown(sess, handlers, StateClosed)
				return
			}
			if inactivity > 0 {
				last := time.Unix(0, sess.lastActivity.Load())
				if time.Since(last) > inactivity {
					notice(handlers, "session ended after inactivity")
					c.teardown(sess, handlers, StateClosed)
					return
				}
			}
		}
	}
}

// teardown releases everything a session holds, in an order that is safe
// whichever trigger got here first: user stop, device loss, remote
// disconnect, watchdog or process shutdown. Runs at most once per session.
func (c *Controller) teardown(sess *Session, handlers SessionHandlers, final SessionState) {
	sess.teardown.Do(func() {
		logger := c.logger.With(zap.String("session_id", sess.id))
		logger.Info("tearing down session", zap.String("final_state", final.String()))

		// A Start still suspended in acquisition checks this flag before
		// committing; resources it acquires after this point are its own
		// to unwind.
		sess.mu.Lock()
		sess.aborted = true
		sess.mu.Unlock()

		// Stop outbound traffic before inbound: closing the remote
		// connection first means no frame races a dying socket.
		if err := c.provider.Close(); err != nil {
			logger.Warn("error closing remote connection", zap.Error(err))
		}
		if sess.cancel != nil {
			sess.cancel()
		}
		if sess.captureStream != nil {
			if err := sess.captureStream.Close(); err != nil {
				logger.Warn("error closing capture stream", zap.Error(err))
			}
		}
		if sess.scheduler != nil {
			sess.scheduler.Clear()
		}

		if sess.aggregator != nil {
			sess.aggregator.Flush()
			sess.aggregator.Stop()
			c.persistTranscript(sess, logger)
		}

		sess.mu.Lock()
		connected := sess.connected
		connectedAt := sess.connectedAt
		sess.mu.Unlock()

		// Usage is only billed for sessions that actually connected; a
		// failed start produces no record.
		if connected {
			c.recorder.RecordUsage(ports.Usage{
				UserID:         sess.userID,
				Turns:          int(sess.turns.Load()),
				OutboundFrames: sess.outboundFrames.Load(),
				SessionSeconds: time.Since(connectedAt).Seconds(),
			})
		}

		sess.setState(final)
		notifyState(handlers, final)

		c.mu.Lock()
		if c.current == sess {
			c.current = nil
		}
		c.mu.Unlock()

		logger.Info("session torn down",
			zap.Int32("turns", sess.turns.Load()),
			zap.Int64("outbound_frames", sess.outboundFrames.Load()))
	})
}

// persistTranscript hands the finalized transcript to the store, gated on
// the user's recording preference. No store or no opt-in means the
// transcript stays in memory only.
func (c *Controller) persistTranscript(sess *Session, logger *zap.Logger) {
	if c.store == nil || c.privacy == nil || !c.privacy.ShouldPersist(sess.userID) {
		return
	}

	transcript := sess.aggregator.Transcript()
	if len(transcript) == 0 {
		return
	}

	entries := make([]ports.TranscriptEntry, 0, len(transcript))
	for _, u := range transcript {
		if !u.Finalized() {
			continue
		}
		entries = append(entries, ports.TranscriptEntry{
			Speaker:     u.Speaker.String(),
			Text:        u.Text,
			FinalizedAt: *u.FinalizedAt,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	meta := ports.TranscriptMeta{
		SessionID: sess.id,
		UserID:    sess.userID,
		StartedAt: sess.startTime,
		EndedAt:   time.Now(),
	}
	if err := c.store.Persist(ctx, entries, meta); err != nil {
		logger.Error("failed to persist transcript", zap.Error(err))
		return
	}
	logger.Info("transcript persisted", zap.Int("entries", len(entries)))
}

func (c *Controller) wireCodec() (audio.WireCodec, error) {
	switch c.cfg.Audio.WireCodec {
	case "opus":
		return audio.NewOpusCodec(
			c.cfg.Audio.WireSampleRate,
			audio.WireChannels,
			c.cfg.Audio.OpusFrameSize,
			c.cfg.Audio.OpusBitrate)
	default:
		return audio.PCM16Codec{}, nil
	}
}

func notifyState(handlers SessionHandlers, state SessionState) {
	if handlers.OnStateChange != nil {
		handlers.OnStateChange(state)
	}
}

func notice(handlers SessionHandlers, msg string) {
	if handlers.OnNotice != nil {
		handlers.OnNotice(msg)
	}
}
