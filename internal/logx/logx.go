// Package logx is a small leveled file logger for the engine. Everything goes
// to omniget.log in the data directory; nothing is written to the terminal so
// the TUI stays clean.
package logx

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu      sync.Mutex
	file    *os.File
	minimum = LevelInfo
)

// Configure opens (or creates) the log file at path and sets the minimum level.
func Configure(path string, level Level) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if file != nil {
		file.Close()
	}
	file = f
	minimum = level
	return nil
}

// Close closes the log file if one is open.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if file != nil {
		file.Close()
		file = nil
	}
}

func write(lvl Level, prefix, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if file == nil || lvl < minimum {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(file, "[%s] [%s] %s\n", ts, prefix, fmt.Sprintf(format, args...))
}

func Debug(format string, args ...any) { write(LevelDebug, "DEBUG", format, args...) }
func Info(format string, args ...any)  { write(LevelInfo, "INFO", format, args...) }
func Warn(format string, args ...any)  { write(LevelWarn, "WARN", format, args...) }
func Error(format string, args ...any) { write(LevelError, "ERROR", format, args...) }

// ScrubURL strips the query string from a URL so signed tokens never reach the
// log file. Non-URL input is returned unchanged.
func ScrubURL(raw string) string {
	if !strings.Contains(raw, "?") {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		// Not parseable; cut at the first '?' to be safe.
		return raw[:strings.Index(raw, "?")]
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}
