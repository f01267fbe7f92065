package infrastructure_test

import (
	"errors"
	"testing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/vocalia/voice-engine/pkg/infrastructure"
)

func TestNewLogger(t *testing.T) {
	tests := map[string]struct {
		level       string
		expectError bool
	}{
		"empty_defaults_to_info": {level: ""},
		"debug":                  {level: "debug"},
		"warn":                   {level: "warn"},
		"invalid_level":          {level: "verbose", expectError: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			logger, err := infrastructure.NewLogger(tt.level)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error for invalid level")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if logger == nil {
				t.Fatal("NewLogger returned nil logger")
			}
		})
	}
}

func TestNewFxLoggerAdapter(t *testing.T) {
	logger := zaptest.NewLogger(t)

	adapter := infrastructure.NewFxLoggerAdapter(logger)

	var _ fxevent.Logger = adapter
	if adapter == nil {
		t.Fatal("NewFxLoggerAdapter returned nil")
	}
}

func TestFxLoggerAdapter_LogEvent(t *testing.T) {
	logger := zaptest.NewLogger(t)
	adapter := infrastructure.NewFxLoggerAdapter(logger)

	testError := errors.New("test error")

	// Exercise a spread of event types, with and without errors; none may panic.
	events := []fxevent.Event{
		&fxevent.OnStartExecuting{FunctionName: "testFunc", CallerName: "testCaller"},
		&fxevent.OnStartExecuted{FunctionName: "testFunc", CallerName: "testCaller"},
		&fxevent.OnStartExecuted{FunctionName: "testFunc", CallerName: "testCaller", Err: testError},
		&fxevent.OnStopExecuted{FunctionName: "testFunc", CallerName: "testCaller", Err: testError},
		&fxevent.Provided{OutputTypeNames: []string{"*zap.Logger"}},
		&fxevent.Provided{Err: testError},
		&fxevent.Invoking{FunctionName: "testFunc"},
		&fxevent.Invoked{FunctionName: "testFunc", Err: testError},
		&fxevent.Started{},
		&fxevent.Started{Err: testError},
		&fxevent.Stopped{},
		&fxevent.LoggerInitialized{ConstructorName: "testConstructor", Err: testError},
	}

	for _, event := range events {
		adapter.LogEvent(event)
	}
}

func TestFxIntegration(t *testing.T) {
	logger := zaptest.NewLogger(t)

	app := fx.New(
		fx.WithLogger(infrastructure.NewFxLoggerAdapter),
		fx.Provide(func() *zap.Logger { return logger }),
		fx.Invoke(func(*zap.Logger) {}),
	)

	if app == nil {
		t.Fatal("failed to create Fx app with logger adapter")
	}
}
