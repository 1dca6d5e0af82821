// Package logger provides a thread-safe, levelled logger backed by the
// standard library's log package.  The -v/-q flags map directly onto its
// levels: -q drops INFO, -v enables DEBUG.
package logger

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Level represents a logging verbosity level.
type Level int

const (
	// LevelDebug emits all messages.
	LevelDebug Level = iota
	// LevelInfo emits INFO and ERROR messages.
	LevelInfo
	// LevelError emits only ERROR messages.
	LevelError
	// LevelQuiet suppresses everything.
	LevelQuiet
)

// Logger is a levelled logger writing to stderr so diagnostics never mix
// into piped response bodies on stdout.
//
// Thread-safety: log.Logger serialises writes with its own mutex; the
// wrapper adds one only for the level field so SetLevel may race with
// logging calls safely.
type Logger struct {
	infoLog  *log.Logger
	errorLog *log.Logger
	debugLog *log.Logger
	mu       sync.RWMutex
	level    Level
}

// New creates a Logger that writes to stderr at the given minimum level.
func New(level Level) *Logger {
	flags := log.Ltime | log.Lmicroseconds
	return &Logger{
		infoLog:  log.New(os.Stderr, "", 0),
		errorLog: log.New(os.Stderr, "error: ", 0),
		debugLog: log.New(os.Stderr, "debug ", flags),
		level:    level,
	}
}

// FromVerbosity maps the -q/-v counters onto a level.
func FromVerbosity(quiet, verbose int) Level {
	switch {
	case quiet >= 2:
		return LevelQuiet
	case quiet == 1:
		return LevelError
	case verbose > 0:
		return LevelDebug
	default:
		return LevelInfo
	}
}

// SetLevel changes the minimum log level at runtime.  Safe for concurrent use.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) enabled(level Level) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level <= level
}

// Info logs a message at INFO level.
func (l *Logger) Info(msg string) {
	if l.enabled(LevelInfo) {
		l.infoLog.Output(2, msg) //nolint:errcheck
	}
}

// Infof logs a formatted message at INFO level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.Info(fmt.Sprintf(format, args...))
}

// Error logs a message at ERROR level.
func (l *Logger) Error(msg string) {
	if l.enabled(LevelError) {
		l.errorLog.Output(2, msg) //nolint:errcheck
	}
}

// Errorf logs a formatted message at ERROR level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.Error(fmt.Sprintf(format, args...))
}

// Debug logs a message at DEBUG level.
func (l *Logger) Debug(msg string) {
	if l.enabled(LevelDebug) {
		l.debugLog.Output(2, msg) //nolint:errcheck
	}
}

// Debugf logs a formatted message at DEBUG level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.Debug(fmt.Sprintf(format, args...))
}
