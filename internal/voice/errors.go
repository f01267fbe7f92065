package voice

import (
	"errors"
	"fmt"

	"github.com/vocalia/voice-engine/internal/ports"
)

// ErrorKind classifies engine errors into the categories the surrounding
// product surfaces to users.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConfiguration
	KindPermission
	KindDeviceUnavailable
	KindConnection
	KindProtocol
	KindFrameSend
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindPermission:
		return "permission"
	case KindDeviceUnavailable:
		return "device_unavailable"
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindFrameSend:
		return "frame_send"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Error is an engine error carrying its classification and optional cause.
type Error struct {
	Kind  ErrorKind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func wrapError(kind ErrorKind, msg string, cause error) *Error {
	return &Error{Kind: kind, msg: msg, cause: cause}
}

// KindOf extracts the classification from any error, KindUnknown when the
// error did not originate in the engine.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// classifyCaptureError maps device acquisition failures onto user-facing
// error kinds with remediation text.
func classifyCaptureError(err error) *Error {
	switch {
	case errors.Is(err, ports.ErrPermissionDenied):
		return wrapError(KindPermission,
			"microphone access denied; allow microphone use and try again", err)
	case errors.Is(err, ports.ErrNoCaptureDevice):
		return wrapError(KindDeviceUnavailable,
			"no microphone found; connect a capture device and try again", err)
	default:
		return wrapError(KindDeviceUnavailable, "failed to acquire microphone", err)
	}
}
