package logging

import "log/slog"

// EnableTrace turns on per-candidate logs. Set by the TRACE log level.
var EnableTrace = false

// Trace logs a message at DEBUG level, but only if EnableTrace is true.
func Trace(logger *slog.Logger, msg string, args ...any) {
	if EnableTrace {
		logger.Debug(msg, args...)
	}
}
