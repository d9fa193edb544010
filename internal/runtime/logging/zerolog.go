package logging

import (
	"log/slog"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

// NewZerologServiceLogger routes records into a zerolog logger through slog.
// Records below minLevel are dropped.
func NewZerologServiceLogger(logger zerolog.Logger, minLevel slog.Level) ServiceLogger {
	handler := zeroslog.NewHandler(logger, &zeroslog.HandlerOptions{Level: minLevel})
	return NewSlogServiceLogger(slog.New(handler))
}
