// Package logger is the process-wide leveled logger used by bazaar binaries.
//
// It wraps the standard library logger with a level threshold and, when the
// output is a terminal, colorized level tags.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/gookit/color"
	"github.com/mattn/go-isatty"
)

// Level is the verbosity threshold used by the logger.
//
// Lower values are more verbose.
type Level int

const (
	// LevelTrace enables extremely verbose logs (wire payloads, loop inputs).
	LevelTrace Level = iota
	// LevelDebug enables verbose logs intended for debugging.
	LevelDebug
	// LevelInfo enables informational logs (default).
	LevelInfo
	// LevelWarn enables only warnings and errors.
	LevelWarn
	// LevelError enables only error logs.
	LevelError
)

// String returns the lower-case name of the level.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

var (
	mu       sync.RWMutex
	level    = LevelInfo
	colorize = isTerminal(os.Stderr)
	std      = log.New(os.Stderr, "", log.LstdFlags)
)

var tags = map[Level]struct {
	plain string
	style color.Color
}{
	LevelTrace: {plain: "TRACE", style: color.Gray},
	LevelDebug: {plain: "DEBUG", style: color.Cyan},
	LevelInfo:  {plain: "INFO", style: color.Green},
	LevelWarn:  {plain: "WARN", style: color.Yellow},
	LevelError: {plain: "ERROR", style: color.Red},
}

// ParseLevel parses a log level string into a Level.
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// SetOutput replaces the writer used by the global logger.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std.SetOutput(w)
	colorize = isTerminal(w)
}

// SetFlags sets the underlying log flags used for all output.
func SetFlags(flags int) {
	mu.Lock()
	defer mu.Unlock()
	std.SetFlags(flags)
}

// SetLevel sets the global log level threshold.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// Enabled reports whether a level would be emitted by the current configuration.
func Enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

// Tracef logs at TRACE level.
func Tracef(format string, args ...any) { logf(LevelTrace, format, args...) }

// Debugf logs at DEBUG level.
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }

// Infof logs at INFO level.
func Infof(format string, args ...any) { logf(LevelInfo, format, args...) }

// Warnf logs at WARN level.
func Warnf(format string, args ...any) { logf(LevelWarn, format, args...) }

// Errorf logs at ERROR level.
func Errorf(format string, args ...any) { logf(LevelError, format, args...) }

func logf(l Level, format string, args ...any) {
	mu.RLock()
	defer mu.RUnlock()
	if l < level {
		return
	}
	tag := tags[l]
	prefix := "[" + tag.plain + "] "
	if colorize {
		prefix = tag.style.Sprint("["+tag.plain+"]") + " "
	}
	std.Output(3, prefix+fmt.Sprintf(format, args...))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
