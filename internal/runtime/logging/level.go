package logging

import (
	"fmt"
	"strings"
)

// Level selects the severity used for successful communication records.
// Failures are always logged at error level.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = LevelInfo

// ParseLevel accepts the level names case-insensitively. An empty string
// yields DefaultLevel.
func ParseLevel(value string) (Level, error) {
	switch level := Level(strings.ToLower(strings.TrimSpace(value))); level {
	case "":
		return DefaultLevel, nil
	case LevelTrace, LevelDebug, LevelInfo, LevelError:
		return level, nil
	case "warn", "warning", "notice":
		// The logger contract has no warning level.
		return LevelInfo, nil
	default:
		return "", fmt.Errorf("unknown log level %q", value)
	}
}

// Log writes msg at level. err is attached to error records and added as a
// field on the others.
func Log(logger ServiceLogger, level Level, msg string, err error, fields LogFields) {
	if logger == nil {
		return
	}
	if err != nil && level != LevelError {
		fields = withField(fields, "error", err.Error())
	}

	switch level {
	case LevelTrace:
		logger.Trace(msg, fields)
	case LevelDebug:
		logger.Debug(msg, fields)
	case LevelError:
		logger.Error(msg, err, fields)
	default:
		logger.Info(msg, fields)
	}
}

func withField(fields LogFields, key string, value any) LogFields {
	out := make(LogFields, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[key] = value
	return out
}
