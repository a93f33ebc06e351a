// Package plog provides the leveled loggers used across policyd.
//
// It mirrors the teacher's logging shape (global per-level *log.Logger
// values written to a single log file, with an optional "[DAEMON]"
// prefix) rather than reaching for a structured logging library: the
// engine's log volume is a handful of lines per check/mutation, and
// nothing downstream parses the log as structured data.
package plog

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

var (
	InfoLog    *log.Logger
	WarnLog    *log.Logger
	ErrorLog   *log.Logger
	DebugLog   *log.Logger
)

var debugEnabled = os.Getenv("POLICYD_DEBUG") == "true" || os.Getenv("POLICYD_DEBUG") == "1"

var logFileName = filepath.Join(os.TempDir(), "policyd.log")

var globalLogFile *os.File

// Initialize sets up the package-level loggers. daemon controls whether
// emitted lines carry a "[DAEMON]" prefix, distinguishing log output from
// the daemon process versus the policyctl CLI sharing this package.
func Initialize(daemon bool) {
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		setLoggers(os.Stderr, daemon)
		fmt.Fprintf(os.Stderr, "warning: using stderr for logging: %v\n", err)
		return
	}
	setLoggers(f, daemon)
	globalLogFile = f
}

func setLoggers(w io.Writer, daemon bool) {
	prefix := func(level string) string {
		if daemon {
			return fmt.Sprintf("[DAEMON] %s: ", level)
		}
		return level + ": "
	}
	flags := log.Ldate | log.Ltime | log.Lshortfile
	InfoLog = log.New(w, prefix("INFO"), flags)
	WarnLog = log.New(w, prefix("WARN"), flags)
	ErrorLog = log.New(w, prefix("ERROR"), flags)
	if debugEnabled {
		DebugLog = log.New(w, prefix("DEBUG"), flags)
	} else {
		DebugLog = log.New(io.Discard, "", 0)
	}
}

// Close flushes and closes the log file, if one was opened.
func Close() {
	if globalLogFile != nil {
		_ = globalLogFile.Close()
	}
}

// IsDebugEnabled reports whether POLICYD_DEBUG is set.
func IsDebugEnabled() bool {
	return debugEnabled
}

// Every is a rate limiter for log lines: ShouldLog reports true at most
// once per timeout duration.
type Every struct {
	timeout time.Duration
	timer   *time.Timer
}

func NewEvery(timeout time.Duration) *Every {
	return &Every{timeout: timeout}
}

func (e *Every) ShouldLog() bool {
	if e.timer == nil {
		e.timer = time.NewTimer(e.timeout)
		return true
	}
	select {
	case <-e.timer.C:
		e.timer.Reset(e.timeout)
		return true
	default:
		return false
	}
}

func init() {
	// Ensure loggers are non-nil even if Initialize is never called, e.g.
	// in unit tests that import packages transitively depending on plog.
	setLoggers(io.Discard, false)
}
