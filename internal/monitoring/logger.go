package monitoring

import (
	"log/slog"
	"os"
	"time"
)

// Logger provides structured JSON logging for the engine.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON logger at the given level and installs it as the
// process default.
func NewLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return &Logger{Logger: logger}
}

// RequestLogger logs HTTP request details
func (l *Logger) RequestLogger(method, path, ip string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// UpdateLogger logs a recorded reputation event.
func (l *Logger) UpdateLogger(user, eventType, transactionID string, impact float64, duration time.Duration) {
	l.Info("Reputation Updated",
		"user", user,
		"event_type", eventType,
		"transaction_id", transactionID,
		"impact_score", impact,
		"duration_ms", duration.Milliseconds(),
	)
}

// ScoreLogger logs a score read.
func (l *Logger) ScoreLogger(user string, overall float64, cacheHit bool, duration time.Duration) {
	l.Info("Score Calculated",
		"user", user,
		"overall_score", overall,
		"cache_hit", cacheHit,
		"duration_ms", duration.Milliseconds(),
	)
}
