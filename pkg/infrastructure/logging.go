// Package infrastructure provides reusable infrastructure components for Go applications.
package infrastructure

import (
	"fmt"

	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the application logger for the configured level.
// Unknown or empty levels default to info.
func NewLogger(level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	return cfg.Build()
}

// FxLoggerAdapter routes Fx's own lifecycle events through the application
// logger so DI wiring shows up in the same stream as everything else.
type FxLoggerAdapter struct {
	logger *zap.SugaredLogger
}

// NewFxLoggerAdapter creates an fxevent.Logger backed by the given zap logger.
func NewFxLoggerAdapter(logger *zap.Logger) fxevent.Logger {
	return &FxLoggerAdapter{logger: logger.Sugar()}
}

// LogEvent implements fxevent.Logger.
func (a *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	switch e := event.(type) {
	case *fxevent.OnStartExecuted:
		a.hookResult("OnStart", e.CallerName, e.FunctionName, e.Err)
	case *fxevent.OnStopExecuted:
		a.hookResult("OnStop", e.CallerName, e.FunctionName, e.Err)
	case *fxevent.Provided:
		if e.Err != nil {
			a.logger.Errorf("provide failed: %v", e.Err)
		}
	case *fxevent.Invoked:
		if e.Err != nil {
			a.logger.Errorf("invoke failed: %s: %v", e.FunctionName, e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			a.logger.Errorf("start failed: %v", e.Err)
		} else {
			a.logger.Info("application started")
		}
	case *fxevent.Stopping:
		a.logger.Infof("stopping: %s", e.Signal)
	case *fxevent.Stopped:
		if e.Err != nil {
			a.logger.Errorf("stop failed: %v", e.Err)
		} else {
			a.logger.Info("application stopped")
		}
	case *fxevent.RollingBack:
		a.logger.Errorf("rolling back: %v", e.StartErr)
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			a.logger.Errorf("logger initialization failed: %v", e.Err)
		}
	default:
		// Remaining events are wiring noise; keep them at debug.
		a.logger.Debugf("fx: %T", event)
	}
}

func (a *FxLoggerAdapter) hookResult(hook, caller, fn string, err error) {
	if err != nil {
		a.logger.Errorf("%s failed: %s (%s): %v", hook, fn, caller, err)
	} else {
		a.logger.Debugf("%s executed: %s (%s)", hook, fn, caller)
	}
}
