// Package logger provides the structured logging facade used by every seamctl package.
//
// Components never talk to a logging framework directly. They receive a Logger, derive a child
// logger with With("component", ...) and log key-value pairs:
//
//	log := logger.GetLogger().With("component", "lwm")
//	log.Warn("selection acknowledge timeout", "program", 7, "ticks", 50)
//
// Log Levels:
//
//   - DebugLevel:  Detailed telegram and state tracing, typically disabled on a running machine.
//   - InfoLevel:  Cycle and connection lifecycle messages.
//   - WarnLevel:  Sequencing violations and recoverable protocol problems.
//   - ErrorLevel:  Timeouts, configuration errors and connection failures.
//   - FatalLevel:  Unrecoverable start-up errors; the process exits.
package logger

// Level indicates the logging severity level.
type Level int8

const (
	// DebugLevel logs are typically voluminous, and are usually disabled in production.
	DebugLevel Level = iota - 1
	// InfoLevel is the default logging priority.
	InfoLevel
	// WarnLevel logs are more important than Info, but don't need individual
	// human review.
	WarnLevel
	// ErrorLevel logs are high-priority. If the machine is running smoothly,
	// it shouldn't generate any error-level logs.
	ErrorLevel
	// FatalLevel logs a message, then calls os.Exit(1).
	FatalLevel
)

// Logger defines a common interface for logging.
type Logger interface {
	// Debug logs a message at DebugLevel.
	// The message includes any fields passed at the log site, as well as any fields accumulated on the logger.
	Debug(msg string, keysAndValues ...any)
	// Info logs a message at InfoLevel.
	// The message includes any fields passed at the log site, as well as any fields accumulated on the logger.
	Info(msg string, keysAndValues ...any)
	// Warn logs a message at WarnLevel.
	// The message includes any fields passed at the log site, as well as any fields accumulated on the logger.
	Warn(msg string, keysAndValues ...any)
	// Error logs a message at ErrorLevel
	// The message includes any fields passed at the log site, as well as any fields accumulated on the logger.
	Error(msg string, keysAndValues ...any)
	// Fatal logs a message at FatalLevel
	// The message includes any fields passed at the log site, as well as any fields accumulated on the logger.
	//
	// The logger then calls os.Exit(1), even if logging at FatalLevel is disabled.
	Fatal(msg string, keysAndValues ...any)
	// With creates a child logger and adds structured context to it.
	// Key-values added to the child don't affect the parent, and vice versa.
	With(keyValues ...any) Logger
	// Level returns the minimum enabled level for this logger.
	Level() Level
	// SetLevel sets the minimum enabled level for this logger.
	SetLevel(level Level)
}
