package logger

import (
	"go.uber.org/zap"

	"wallet_valuator/internal/app/port"
)

// slogAdapter implements port.Logger on top of the package-level slog helpers.
type slogAdapter struct{}

// NewSlogAdapter returns a port.Logger that writes through the global slog logger.
func NewSlogAdapter() port.Logger {
	return &slogAdapter{}
}

func (a *slogAdapter) Info(msg string, args ...any)  { Info(msg, args...) }
func (a *slogAdapter) Debug(msg string, args ...any) { Debug(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { Warn(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { Error(msg, args...) }

// zapAdapter implements port.Logger on a sugared zap logger.
// Useful where a dedicated, named logger is wanted, e.g. zaptest loggers in tests.
type zapAdapter struct {
	s *zap.SugaredLogger
}

// NewZapAdapter wraps l as a port.Logger. Args are key/value pairs, as with slog.
func NewZapAdapter(l *zap.Logger) port.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	return &zapAdapter{s: l.Sugar()}
}

func (a *zapAdapter) Info(msg string, args ...any)  { a.s.Infow(msg, args...) }
func (a *zapAdapter) Debug(msg string, args ...any) { a.s.Debugw(msg, args...) }
func (a *zapAdapter) Warn(msg string, args ...any)  { a.s.Warnw(msg, args...) }
func (a *zapAdapter) Error(msg string, args ...any) { a.s.Errorw(msg, args...) }
