// Package logger provides leveled printf-style logging for the service.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

// Level represents a logging severity level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[Level]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

var std = &leveledLogger{
	level:  InfoLevel,
	logger: log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds),
}

type leveledLogger struct {
	level  Level
	logger *log.Logger
}

// ParseLevel maps a level name to a Level. Unknown names fall back to info.
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

// Init configures the package logger. Format "text" adds caller file:line;
// any other format keeps the plain timestamped layout.
func Init(level string, format string) {
	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}
	std = &leveledLogger{
		level:  ParseLevel(level),
		logger: log.New(os.Stderr, "", flags),
	}
}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) {
	std.logger.SetOutput(w)
}

func output(l Level, format string, args ...any) {
	if std.level > l {
		return
	}
	msg := fmt.Sprintf("["+levelNames[l]+"] "+format, args...)
	_ = std.logger.Output(3, msg)
}

func Debug(format string, args ...any) { output(DebugLevel, format, args...) }

func Info(format string, args ...any) { output(InfoLevel, format, args...) }

func Warn(format string, args ...any) { output(WarnLevel, format, args...) }

func Error(format string, args ...any) { output(ErrorLevel, format, args...) }

// Fatal logs at error level and exits the process.
func Fatal(format string, args ...any) {
	msg := fmt.Sprintf("[FATAL] "+format, args...)
	_ = std.logger.Output(3, msg)
	os.Exit(1)
}
