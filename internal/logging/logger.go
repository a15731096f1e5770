// Package logging is a thin structured logging layer over log/slog. Every
// markupc package logs through the Logger interface; library types default
// to NopLogger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is the minimum severity a logger emits.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levels = [...]struct {
	name string
	slog slog.Level
}{
	LevelDebug: {"DEBUG", slog.LevelDebug},
	LevelInfo:  {"INFO", slog.LevelInfo},
	LevelWarn:  {"WARN", slog.LevelWarn},
	LevelError: {"ERROR", slog.LevelError},
}

func (l LogLevel) valid() bool { return l >= LevelDebug && l <= LevelError }

func (l LogLevel) String() string {
	if !l.valid() {
		return "UNKNOWN"
	}
	return levels[l].name
}

func (l LogLevel) slog() slog.Level {
	if !l.valid() {
		return slog.LevelInfo
	}
	return levels[l].slog
}

// ParseLevel converts a --log-level value into a LogLevel. An empty value
// means info.
func ParseLevel(s string) (LogLevel, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "":
		return LevelInfo, nil
	case "warning":
		return LevelWarn, nil
	default:
		for l := range levels {
			if strings.EqualFold(levels[l].name, v) {
				return LogLevel(l), nil
			}
		}
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger is the structured logger every component receives. Fields are
// alternating key/value pairs; non-string keys are dropped.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level     LogLevel
	// Format is "json" or "text".
	Format    string
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultConfig logs info and above as text to stderr.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{Level: LevelInfo, Format: "text", Output: os.Stderr}
}

// SlogLogger implements Logger on top of log/slog.
type SlogLogger struct {
	handler   slog.Handler
	component string
}

// NewLogger creates a logger from config. A nil config uses DefaultConfig.
func NewLogger(config *LoggerConfig) *SlogLogger {
	if config == nil {
		config = DefaultConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: config.Level.slog(), AddSource: config.AddSource}
	var h slog.Handler = slog.NewTextHandler(out, opts)
	if config.Format == "json" {
		h = slog.NewJSONHandler(out, opts)
	}
	return &SlogLogger{handler: h, component: config.Component}
}

func (l *SlogLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelDebug, nil, msg, fields)
}

func (l *SlogLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelInfo, nil, msg, fields)
}

func (l *SlogLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelWarn, err, msg, fields)
}

func (l *SlogLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelError, err, msg, fields)
}

// With returns a logger that adds fields to every record.
func (l *SlogLogger) With(fields ...interface{}) Logger {
	attrs := pairs(fields)
	if len(attrs) == 0 {
		return l
	}
	return &SlogLogger{handler: l.handler.WithAttrs(attrs), component: l.component}
}

// WithComponent returns a logger tagging records with component. It
// replaces any component set earlier.
func (l *SlogLogger) WithComponent(component string) Logger {
	return &SlogLogger{handler: l.handler, component: component}
}

func pairs(fields []interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			attrs = append(attrs, slog.Any(key, fields[i+1]))
		}
	}
	return attrs
}

func (l *SlogLogger) log(ctx context.Context, level slog.Level, err error, msg string, fields []interface{}) {
	if !l.handler.Enabled(ctx, level) {
		return
	}

	r := slog.NewRecord(time.Now(), level, msg, 0)
	if l.component != "" {
		r.AddAttrs(slog.String("component", l.component))
	}
	if err != nil {
		r.AddAttrs(slog.String("error", err.Error()))
	}
	r.AddAttrs(pairs(fields)...)
	_ = l.handler.Handle(ctx, r)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(context.Context, string, ...interface{})        {}
func (NopLogger) Info(context.Context, string, ...interface{})         {}
func (NopLogger) Warn(context.Context, error, string, ...interface{})  {}
func (NopLogger) Error(context.Context, error, string, ...interface{}) {}
func (n NopLogger) With(...interface{}) Logger                         { return n }
func (n NopLogger) WithComponent(string) Logger                        { return n }

// PerfLogger times one operation and logs its outcome.
type PerfLogger struct {
	Logger
	start time.Time
}

// StartOperation starts timing operation. Records carry an "operation"
// field.
func StartOperation(logger Logger, operation string) *PerfLogger {
	return &PerfLogger{Logger: logger.With("operation", operation), start: time.Now()}
}

func (p *PerfLogger) elapsed() (time.Duration, []interface{}) {
	d := time.Since(p.start)
	return d, []interface{}{"duration_ms", d.Milliseconds(), "duration", d.String()}
}

// End logs success with fields and the elapsed time.
func (p *PerfLogger) End(ctx context.Context, fields ...interface{}) time.Duration {
	d, timing := p.elapsed()
	p.Info(ctx, "operation completed", append(fields, timing...)...)
	return d
}

// EndWithError logs a failure with the elapsed time.
func (p *PerfLogger) EndWithError(ctx context.Context, err error) time.Duration {
	d, timing := p.elapsed()
	p.Error(ctx, err, "operation failed", timing...)
	return d
}
