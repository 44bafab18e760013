// Package logger provides prefixed charmbracelet/log loggers for the packages
// of fieldserve. They write to stderr: in server mode stdout carries msgpack.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	mu     sync.RWMutex
	output io.Writer = os.Stderr
)

// SetOutput redirects loggers created afterwards, and the global logger.
func SetOutput(w io.Writer) {
	mu.Lock()
	output = w
	mu.Unlock()
	log.SetOutput(w)
}

func writer() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return output
}

// New creates a new charm log that respects the global log level.
func New(prefix string) *log.Logger {
	return log.NewWithOptions(writer(), log.Options{
		Prefix:          prefix,
		ReportCaller:    false,
		ReportTimestamp: log.GetLevel() == log.DebugLevel,
		Formatter:       log.TextFormatter,
		Level:           log.GetLevel(),
	})
}

// NewWithConfig creates a new charm log with custom config
func NewWithConfig(prefix string, level log.Level, caller bool, showTimestamp bool, fmt log.Formatter) *log.Logger {
	return log.NewWithOptions(writer(), log.Options{
		Prefix:          prefix,
		Level:           level,
		ReportCaller:    caller,
		ReportTimestamp: showTimestamp,
		Formatter:       fmt,
	})
}

// Setup configures the global logger the way the entry point wants it:
// warn level by default, debug with timestamps when debug is set.
func Setup(debug bool) {
	log.SetOutput(writer())
	if debug {
		log.SetLevel(log.DebugLevel)
		log.SetReportTimestamp(true)
		return
	}
	log.SetLevel(log.WarnLevel)
	log.SetReportTimestamp(false)
}
