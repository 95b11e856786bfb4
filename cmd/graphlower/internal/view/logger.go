package view

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	"github.com/lmittmann/tint"
)

// LogLevel selects how much the CLI logs.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelSilent
)

// ParseLogLevel maps a level name to a LogLevel. The empty string is silent.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(s) {
	case "", "silent":
		return LogLevelSilent, nil
	case "info":
		return LogLevelInfo, nil
	case "debug":
		return LogLevelDebug, nil
	default:
		return LogLevelSilent, fmt.Errorf("unknown log level %q", s)
	}
}

// toSlogLevel converts a LogLevel to the slog threshold. Debug lets the
// verbose logr levels (V(1), V(2)) through.
func (l LogLevel) toSlogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	default:
		return slog.Level(100)
	}
}

func rewriteLogLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		level, ok := a.Value.Any().(slog.Level)
		if !ok {
			return a
		}

		var levelText string
		switch {
		case level < slog.LevelInfo:
			levelText = "DEBUG"
		case level == slog.LevelInfo:
			levelText = color.GreenString("INFO")
		case level == slog.LevelWarn:
			levelText = color.YellowString("WARN")
		case level >= slog.LevelError:
			levelText = color.RedString("ERROR")
		default:
			levelText = level.String()
		}
		a.Value = slog.StringValue(levelText)
	}
	return a
}

// NewHumanLogger creates a colored logger for terminals.
func NewHumanLogger(w io.Writer, level LogLevel) logr.Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:       level.toSlogLevel(),
		TimeFormat:  time.DateTime,
		ReplaceAttr: rewriteLogLevel,
		NoColor:     color.NoColor,
	})
	return logr.FromSlogHandler(handler)
}

// NewJSONLogger creates a logger writing one JSON object per line.
func NewJSONLogger(w io.Writer, level LogLevel) logr.Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level.toSlogLevel(),
	})
	return logr.FromSlogHandler(handler)
}

// NewLogger picks the human or JSON logger. Silent loggers discard everything.
func NewLogger(w io.Writer, jsonFormat bool, level LogLevel) logr.Logger {
	if level == LogLevelSilent {
		return logr.Discard()
	}
	if jsonFormat {
		return NewJSONLogger(w, level)
	}
	return NewHumanLogger(w, level)
}
