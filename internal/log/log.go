// Package log is the process-wide structured logger. Key/value pairs only;
// reconfigured once at startup from the effective config.
package log

import (
	"os"

	"github.com/paularlott/logger"
	logslog "github.com/paularlott/logger/slog"
)

var defaultLogger logger.Logger

func init() {
	defaultLogger = newLogger("info", "console")
}

func newLogger(level, format string) logger.Logger {
	return logslog.New(logslog.Config{
		Level:  level,
		Format: format,
		Writer: os.Stdout,
	})
}

// Configure replaces the default logger. Level is one of debug, info, warn,
// error; format is console or json.
func Configure(level, format string) {
	defaultLogger = newLogger(level, format)
}

func Debug(msg string, keysAndValues ...any) {
	defaultLogger.Debug(msg, keysAndValues...)
}

func Info(msg string, keysAndValues ...any) {
	defaultLogger.Info(msg, keysAndValues...)
}

func Warn(msg string, keysAndValues ...any) {
	defaultLogger.Warn(msg, keysAndValues...)
}

func Error(msg string, keysAndValues ...any) {
	defaultLogger.Error(msg, keysAndValues...)
}

// Fatal logs at error level and exits. For CLI entry points only.
func Fatal(msg string, keysAndValues ...any) {
	defaultLogger.Error(msg, keysAndValues...)
	os.Exit(1)
}
