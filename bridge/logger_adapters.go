package bridge

import (
	"context"
	"log/slog"
)

// SlogAdapter adapts the standard library's slog.Logger to the Logger
// interface so callers already standardized on log/slog can reuse it here.
type SlogAdapter struct {
	logger *slog.Logger
}

func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

func (s *SlogAdapter) Debug(ctx context.Context, msg string, fields ...Field) {
	s.logger.DebugContext(ctx, msg, s.convertFields(fields)...)
}

func (s *SlogAdapter) Info(ctx context.Context, msg string, fields ...Field) {
	s.logger.InfoContext(ctx, msg, s.convertFields(fields)...)
}

func (s *SlogAdapter) Warn(ctx context.Context, msg string, fields ...Field) {
	s.logger.WarnContext(ctx, msg, s.convertFields(fields)...)
}

func (s *SlogAdapter) Error(ctx context.Context, msg string, fields ...Field) {
	s.logger.ErrorContext(ctx, msg, s.convertFields(fields)...)
}

func (s *SlogAdapter) convertFields(fields []Field) []any {
	attrs := make([]any, len(fields))
	for i, field := range fields {
		attrs[i] = slog.Any(field.Key, field.Value)
	}
	return attrs
}
