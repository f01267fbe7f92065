package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	openairt "github.com/WqyJh/go-openai-realtime"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/vocalia/voice-engine/internal/config"
)

// TurnUsage is the token accounting the remote endpoint reports per
// completed response.
type TurnUsage struct {
	InputTokens       int
	OutputTokens      int
	InputAudioTokens  int
	OutputAudioTokens int
}

// RemoteEvents receive the remote endpoint's event stream, already decoded
// from the wire tagged union. All fields are optional.
type RemoteEvents struct {
	// OnAudio delivers a decoded synthesized-speech chunk (raw 16-bit PCM).
	OnAudio func(pcm []byte)

	// OnAgentTranscript delivers the cumulative transcript of the agent's
	// current turn; each call replaces the previous text.
	OnAgentTranscript func(text string)

	// OnUserTranscript delivers the completed transcription of a user turn.
	OnUserTranscript func(text string)

	// OnInterruption fires when the user starts talking over the agent.
	OnInterruption func()

	// OnToolCall delivers a named action the handler must execute.
	OnToolCall func(callID, name string, args json.RawMessage)

	// OnTurnDone fires when a response completes, with its usage if any.
	OnTurnDone func(usage *TurnUsage)

	// OnProtocolError delivers a remote-reported error.
	OnProtocolError func(err error)

	// OnDisconnect fires when the event stream ends. err is nil for a
	// clean remote close.
	OnDisconnect func(err error)
}

// SessionOptions configure the remote session at connect time.
type SessionOptions struct {
	Model        string
	Voice        string
	Instructions string
	VADMode      string
	WireCodec    string
	Tools        []config.ToolConfig
}

// RemoteProvider is the engine's view of the remote conversational-AI
// endpoint. Sending is only valid after Connect returns: the provider
// retains the concrete connection handle then, never a pending open.
type RemoteProvider interface {
	// SetEvents installs the event handlers. Must be called before Connect.
	SetEvents(events RemoteEvents)

	// SupportsWireCodec reports whether the endpoint accepts outbound
	// frames in the named wire profile.
	SupportsWireCodec(name string) bool

	// Connect opens the stream, configures the session and starts event
	// dispatch.
	Connect(ctx context.Context, credential string, opts SessionOptions) error

	// AppendAudio sends one encoded outbound frame.
	AppendAudio(ctx context.Context, wire []byte) error

	// SendToolResult relays a tool handler's result and requests a
	// follow-up response.
	SendToolResult(ctx context.Context, callID, output string) error

	// Close tears the connection down. Idempotent.
	Close() error
}

type openAIRealtimeProvider struct {
	logger *zap.Logger

	mu         sync.Mutex
	conn       *openairt.Conn
	readCancel context.CancelFunc
	events     RemoteEvents

	// turnTranscript accumulates agent transcript deltas into the
	// cumulative text of the current turn. Touched only by the read loop.
	turnTranscript string
}

// NewRealtimeProvider creates the OpenAI Realtime implementation of
// RemoteProvider.
func NewRealtimeProvider(logger *zap.Logger) RemoteProvider {
	return &openAIRealtimeProvider{logger: logger}
}

func (p *openAIRealtimeProvider) SetEvents(events RemoteEvents) {
	p.mu.Lock()
	p.events = events
	p.mu.Unlock()
}

// SupportsWireCodec reports whether the realtime endpoint accepts the named
// wire profile. The input audio buffer only takes uncompressed PCM16.
func (p *openAIRealtimeProvider) SupportsWireCodec(name string) bool {
	return name == "" || name == "pcm16"
}

func (p *openAIRealtimeProvider) Connect(ctx context.Context, credential string, opts SessionOptions) error {
	if !p.SupportsWireCodec(opts.WireCodec) {
		return newError(KindConfiguration,
			fmt.Sprintf("wire codec %q not supported by realtime endpoint", opts.WireCodec))
	}

	p.mu.Lock()
	if p.conn != nil {
		p.mu.Unlock()
		return errors.New("already connected to remote endpoint")
	}
	p.mu.Unlock()

	p.logger.Info("connecting to realtime endpoint", zap.String("model", opts.Model))

	client := openairt.NewClient(credential)
	conn, err := client.Connect(ctx, openairt.WithModel(opts.Model))
	if err != nil {
		return fmt.Errorf("failed to connect to realtime endpoint: %w", err)
	}

	if err := p.configureSession(ctx, conn, opts); err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to configure realtime session: %w", err)
	}

	// Only now is the concrete handle retained; AppendAudio before this
	// point reports not-connected instead of racing a pending open.
	readCtx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	p.conn = conn
	p.readCancel = cancel
	p.mu.Unlock()

	go p.readLoop(readCtx, conn)

	p.logger.Info("connected to realtime endpoint", zap.String("model", opts.Model))
	return nil
}

func (p *openAIRealtimeProvider) configureSession(ctx context.Context, conn *openairt.Conn, opts SessionOptions) error {
	sessionUpdate := &openairt.SessionUpdateEvent{
		Session: openairt.ClientSession{
			Modalities:        []openairt.Modality{openairt.ModalityText, openairt.ModalityAudio},
			Instructions:      opts.Instructions,
			Voice:             remoteVoice(opts.Voice),
			InputAudioFormat:  openairt.AudioFormatPcm16,
			OutputAudioFormat: openairt.AudioFormatPcm16,
			InputAudioTranscription: &openairt.InputAudioTranscription{
				Model: openai.Whisper1,
			},
		},
	}

	if opts.VADMode != "server_vad" {
		sessionUpdate.Session.TurnDetection = nil // disable server-side turn detection
	}

	for _, tool := range opts.Tools {
		sessionUpdate.Session.Tools = append(sessionUpdate.Session.Tools, openairt.Tool{
			Type:        openairt.ToolTypeFunction,
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}

	return conn.SendMessage(ctx, sessionUpdate)
}

func (p *openAIRealtimeProvider) AppendAudio(ctx context.Context, wire []byte) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return errors.New("not connected to remote endpoint")
	}

	event := &openairt.InputAudioBufferAppendEvent{
		Audio: base64.StdEncoding.EncodeToString(wire),
	}
	return conn.SendMessage(ctx, event)
}

func (p *openAIRealtimeProvider) SendToolResult(ctx context.Context, callID, output string) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return errors.New("not connected to remote endpoint")
	}

	item := &openairt.ConversationItemCreateEvent{
		Item: openairt.MessageItem{
			Type:   openairt.MessageItemTypeFunctionCallOutput,
			CallID: callID,
			Output: output,
		},
	}
	if err := conn.SendMessage(ctx, item); err != nil {
		return err
	}

	// Ask the endpoint to continue the conversation with the result.
	response := &openairt.ResponseCreateEvent{
		Response: openairt.ResponseCreateParams{
			Modalities: []openairt.Modality{openairt.ModalityText, openairt.ModalityAudio},
		},
	}
	return conn.SendMessage(ctx, response)
}

func (p *openAIRealtimeProvider) Close() error {
	p.mu.Lock()
	conn := p.conn
	cancel := p.readCancel
	p.conn = nil
	p.readCancel = nil
	p.mu.Unlock()

	if conn == nil {
		return nil
	}

	p.logger.Info("closing realtime connection")
	if cancel != nil {
		cancel()
	}
	if err := conn.Close(); err != nil {
		p.logger.Warn("error closing realtime connection", zap.Error(err))
	}
	return nil
}

func (p *openAIRealtimeProvider) readLoop(ctx context.Context, conn *openairt.Conn) {
	for {
		event, err := conn.ReadMessage(ctx)
		if err != nil {
			p.mu.Lock()
			events := p.events
			closed := p.conn == nil
			p.mu.Unlock()

			// A locally initiated Close surfaces as a read error too;
			// that is not a remote disconnect.
			if closed || ctx.Err() != nil {
				return
			}
			p.logger.Warn("realtime event stream ended", zap.Error(err))
			if events.OnDisconnect != nil {
				events.OnDisconnect(err)
			}
			return
		}

		p.dispatch(event)
	}
}

// dispatch fans the wire tagged union out to the installed handlers.
// Exhaustive over the event kinds the engine consumes; everything else is
// visible at debug.
func (p *openAIRealtimeProvider) dispatch(event openairt.ServerEvent) {
	p.mu.Lock()
	events := p.events
	p.mu.Unlock()

	switch event.ServerEventType() {
	case openairt.ServerEventTypeResponseAudioDelta:
		delta := event.(openairt.ResponseAudioDeltaEvent)
		if events.OnAudio == nil || delta.Delta == "" {
			return
		}
		pcm, err := base64.StdEncoding.DecodeString(delta.Delta)
		if err != nil {
			p.logger.Error("failed to decode audio delta", zap.Error(err))
			return
		}
		events.OnAudio(pcm)

	case openairt.ServerEventTypeResponseAudioTranscriptDelta:
		delta := event.(openairt.ResponseAudioTranscriptDeltaEvent)
		p.turnTranscript += delta.Delta
		if events.OnAgentTranscript != nil && p.turnTranscript != "" {
			events.OnAgentTranscript(p.turnTranscript)
		}

	case openairt.ServerEventTypeResponseAudioTranscriptDone:
		done := event.(openairt.ResponseAudioTranscriptDoneEvent)
		if events.OnAgentTranscript != nil && done.Transcript != "" {
			events.OnAgentTranscript(done.Transcript)
		}

	case openairt.ServerEventTypeConversationItemInputAudioTranscriptionCompleted:
		completed := event.(openairt.ConversationItemInputAudioTranscriptionCompletedEvent)
		if events.OnUserTranscript != nil && completed.Transcript != "" {
			events.OnUserTranscript(completed.Transcript)
		}

	case openairt.ServerEventTypeConversationItemInputAudioTranscriptionFailed:
		failed := event.(openairt.ConversationItemInputAudioTranscriptionFailedEvent)
		p.logger.Warn("user audio transcription failed",
			zap.String("item_id", failed.ItemID),
			zap.String("error", failed.Error.Message))

	case openairt.ServerEventTypeInputAudioBufferSpeechStarted:
		// The user is talking over the agent; playback must stop now.
		if events.OnInterruption != nil {
			events.OnInterruption()
		}

	case openairt.ServerEventTypeResponseFunctionCallArgumentsDone:
		call := event.(openairt.ResponseFunctionCallArgumentsDoneEvent)
		if events.OnToolCall != nil {
			events.OnToolCall(call.CallID, call.Name, json.RawMessage(call.Arguments))
		}

	case openairt.ServerEventTypeResponseDone:
		done := event.(openairt.ResponseDoneEvent)
		p.turnTranscript = ""
		if events.OnTurnDone == nil {
			return
		}
		var usage *TurnUsage
		if done.Response.Usage != nil {
			usage = &TurnUsage{
				InputTokens:       done.Response.Usage.InputTokens,
				OutputTokens:      done.Response.Usage.OutputTokens,
				InputAudioTokens:  done.Response.Usage.InputTokenDetails.AudioTokens,
				OutputAudioTokens: done.Response.Usage.OutputTokenDetails.AudioTokens,
			}
		}
		events.OnTurnDone(usage)

	case openairt.ServerEventTypeError:
		errorEvent := event.(openairt.ErrorEvent)
		if events.OnProtocolError != nil {
			events.OnProtocolError(newError(KindProtocol,
				fmt.Sprintf("remote endpoint error: %s", errorEvent.Error.Message)))
		}

	default:
		p.logger.Debug("unhandled realtime event",
			zap.String("event_type", string(event.ServerEventType())))
	}
}

func remoteVoice(voice string) openairt.Voice {
	switch voice {
	case "alloy":
		return openairt.VoiceAlloy
	case "echo":
		return openairt.VoiceEcho
	case "shimmer":
		return openairt.VoiceShimmer
	default:
		return openairt.VoiceShimmer
	}
}
