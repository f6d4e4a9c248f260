package events

import (
	"log/slog"

	"vestchain/core/types"
)

type attributed interface {
	Event() *types.Event
}

// LogEmitter forwards every ledger event to a structured logger.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter returns an emitter writing to the supplied logger. A nil
// logger falls back to slog.Default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements the Emitter interface.
func (l *LogEmitter) Emit(evt Event) {
	if l == nil || l.logger == nil || evt == nil {
		return
	}
	args := make([]any, 0, 8)
	if a, ok := evt.(attributed); ok {
		if payload := a.Event(); payload != nil {
			for key, value := range payload.Attributes {
				args = append(args, slog.String(key, value))
			}
		}
	}
	l.logger.Info("ledger event", append([]any{slog.String("type", evt.EventType())}, args...)...)
}
