// Package logger provides leveled structured logging.
package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// String returns the upper-case name of the level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseLevel maps a level name to a Level, defaulting to InfoLevel.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// Logger writes leveled log lines in either text or JSON format.
type Logger struct {
	level Level
	json  bool
	out   *log.Logger
}

var defaultLogger = &Logger{
	level: InfoLevel,
	out:   log.New(os.Stderr, "", 0),
}

// Init configures the default logger with the given level and format.
// Format is either "json" or "text".
func Init(level, format string) {
	defaultLogger = &Logger{
		level: ParseLevel(level),
		json:  strings.ToLower(format) == "json",
		out:   log.New(os.Stderr, "", 0),
	}
}

func (l *Logger) write(level Level, format string, args ...interface{}) {
	if l == nil || level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	if l.json {
		line, err := json.Marshal(map[string]string{
			"ts":    ts,
			"level": level.String(),
			"msg":   msg,
		})
		if err == nil {
			l.out.Print(string(line))
			return
		}
	}
	l.out.Printf("%s [%s] %s", ts, level.String(), msg)
}

func Debug(format string, args ...interface{}) {
	defaultLogger.write(DebugLevel, format, args...)
}

func Info(format string, args ...interface{}) {
	defaultLogger.write(InfoLevel, format, args...)
}

func Warn(format string, args ...interface{}) {
	defaultLogger.write(WarnLevel, format, args...)
}

func Error(format string, args ...interface{}) {
	defaultLogger.write(ErrorLevel, format, args...)
}

func Fatal(format string, args ...interface{}) {
	defaultLogger.write(ErrorLevel, format, args...)
	os.Exit(1)
}
