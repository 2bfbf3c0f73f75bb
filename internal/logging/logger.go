package logging

import (
	"io"
	"log"
	"os"
	"strings"
)

// Level represents the logging level
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

// ParseLevel maps a config string to a Level, defaulting to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger is a small leveled wrapper over the standard library logger.
type Logger struct {
	level  Level
	logger *log.Logger
}

// New creates a logger writing to w at the given level
func New(level string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{
		level:  ParseLevel(level),
		logger: log.New(w, "", log.LstdFlags|log.Lmsgprefix),
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{level: LevelError, logger: log.New(io.Discard, "", 0)}
}

// With returns a logger that prefixes every line with prefix.
func (l *Logger) With(prefix string) *Logger {
	if l == nil {
		return Nop()
	}
	p := l.logger.Prefix() + prefix + " "
	return &Logger{level: l.level, logger: log.New(l.logger.Writer(), p, l.logger.Flags())}
}

// IsDebug reports whether debug output is enabled
func (l *Logger) IsDebug() bool {
	return l != nil && l.level >= LevelDebug
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.printf(LevelError, "[ERROR] ", format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.printf(LevelWarn, "[WARN] ", format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.printf(LevelInfo, "[INFO] ", format, args...)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.printf(LevelDebug, "[DEBUG] ", format, args...)
}

func (l *Logger) printf(level Level, tag, format string, args ...interface{}) {
	if l == nil || l.level < level {
		return
	}
	l.logger.Printf(tag+format, args...)
}
