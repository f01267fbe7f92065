// Package ports declares the narrow interfaces through which the voice
// engine reaches functionality owned by the surrounding product: credential
// resolution, usage metering, transcript persistence, privacy preferences,
// rate limiting and tool execution. The engine never imports concrete
// implementations of these; they are injected at assembly time.
package ports

import (
	"context"
	"encoding/json"
	"time"
)

// CredentialSource resolves the remote-endpoint credential for a user.
// Implementations typically consult a user profile store; a process-wide
// fallback is layered behind it (see internal/credentials).
type CredentialSource interface {
	// Credential returns the credential for the given user, or ok=false
	// when none is available.
	Credential(userID string) (credential string, ok bool)
}

// Usage describes the accounting a session reports once at teardown.
type Usage struct {
	UserID         string
	Turns          int
	OutboundFrames int64
	SessionSeconds float64
}

// UsageRecorder receives session usage exactly once per session that
// reached the connected state.
type UsageRecorder interface {
	RecordUsage(usage Usage)
}

// TranscriptEntry is a finalized conversational turn as handed to the
// persistence collaborator.
type TranscriptEntry struct {
	Speaker     string
	Text        string
	FinalizedAt time.Time
}

// TranscriptMeta accompanies a persisted transcript.
type TranscriptMeta struct {
	SessionID string
	UserID    string
	StartedAt time.Time
	EndedAt   time.Time
}

// TranscriptStore persists the finalized transcript of a session. Called
// once at teardown, and only when PrivacyPrefs permits.
type TranscriptStore interface {
	Persist(ctx context.Context, entries []TranscriptEntry, meta TranscriptMeta) error
}

// PrivacyPrefs gates transcript persistence on the user's recording
// preference.
type PrivacyPrefs interface {
	ShouldPersist(userID string) bool
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimiter is consulted before outbound speech frames are sent. A
// disallowed decision suppresses sends without tearing down the session.
type RateLimiter interface {
	Allow(userID, kind string) Decision
}

// ToolHandler executes a named action requested by the remote endpoint
// mid-session. The engine delivers (name, args) verbatim and relays the
// result back over the open connection; action semantics live entirely
// behind this interface.
type ToolHandler interface {
	HandleToolCall(ctx context.Context, name string, args json.RawMessage) (result string, err error)
}
