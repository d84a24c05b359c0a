// Package logging builds the slog handlers used by the index and the CLI.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

// NamespaceKey is the attribute naming the component that logged a record.
const NamespaceKey = "namespace"

// LoggerType selects the handler output format.
type LoggerType int

const (
	LoggerText LoggerType = iota
	LoggerJSON
)

func (t LoggerType) String() string {
	switch t {
	case LoggerText:
		return "text"
	case LoggerJSON:
		return "json"
	default:
		return fmt.Sprintf("LoggerType(%d)", int(t))
	}
}

// ParseType converts a format name to a LoggerType.
func ParseType(s string) (LoggerType, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return LoggerText, nil
	case "json":
		return LoggerJSON, nil
	default:
		return LoggerText, fmt.Errorf("invalid logger type: %q (expected: text|json)", s)
	}
}

// ParseLevel accepts slog level names such as "debug" or "warn+1".
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level: %w", err)
	}
	return level, nil
}

// Parameters configure a handler.
type Parameters struct {
	Level slog.Level
	Type  LoggerType
}

// ParseParameters builds Parameters from their textual form.
func ParseParameters(level, typ string) (Parameters, error) {
	var p Parameters
	var err error
	if p.Level, err = ParseLevel(level); err != nil {
		return Parameters{}, fmt.Errorf("failed to parse logger parameters: %w", err)
	}
	if p.Type, err = ParseType(typ); err != nil {
		return Parameters{}, fmt.Errorf("failed to parse logger parameters: %w", err)
	}
	return p, nil
}

func (p Parameters) String() string {
	return fmt.Sprintf("{Level: %s, Type: %s}", p.Level, p.Type)
}

// NewHandler creates a handler writing to w.
func NewHandler(w io.Writer, p Parameters) slog.Handler {
	opts := &slog.HandlerOptions{Level: p.Level}
	if p.Type == LoggerJSON {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// New creates a logger writing to w.
func New(w io.Writer, p Parameters) *slog.Logger {
	return slog.New(NewHandler(w, p))
}

// Namespace tags every record of l with name.
func Namespace(l *slog.Logger, name string) *slog.Logger {
	return l.With(NamespaceKey, name)
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

// Error formats err as the "error" attribute; nil yields an empty attribute
// that handlers drop.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}

// ErrorTrace returns the stack recorded by the innermost pkg/errors value
// wrapped in err, or an empty attribute when there is none.
func ErrorTrace(err error) slog.Attr {
	var st stackTracer
	if err == nil || !errors.As(err, &st) {
		return slog.Attr{}
	}
	return slog.String("trace", fmt.Sprintf("%+v", st.StackTrace()))
}
