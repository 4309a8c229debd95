package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Logger struct {
	zl        zerolog.Logger
	collector *LogCollector
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		out = f
	}

	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: cfg.TimeFormat}
	}

	zl := zerolog.New(out).With().Timestamp().CallerWithSkipFrameCount(3).Logger()
	return &Logger{zl: zl}, nil
}

// Nop returns a logger that discards everything; handy in tests.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger that adds fields to every entry.
func (l *Logger) With(fields ...Field) *Logger {
	ctx := l.zl.With()
	for _, f := range fields {
		ctx = f.addToContext(ctx)
	}
	return &Logger{zl: ctx.Logger(), collector: l.collector}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(l.zl.Warn(), msg, fields) }

func (l *Logger) Error(msg string, fields ...Field) {
	l.write(l.zl.Error(), msg, fields)
	l.collect("error", msg, fields)
}

func (l *Logger) write(ev *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.addTo(ev)
	}
	ev.Msg(msg)
}

func (l *Logger) collect(level, msg string, fields []Field) {
	if l.collector == nil {
		return
	}
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(2); ok {
		if i := strings.Index(file, "RateCast"); i >= 0 {
			file = file[i+len("RateCast"):]
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}
	m := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		m[f.Key] = f.value()
	}
	l.collector.AddLog(level, msg, m, caller)
}

// AddCollector aggregates error entries and ships them through cfg.Publisher.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = NewLogCollector(cfg)
}

func (l *Logger) RemoveCollector() {
	if l.collector != nil {
		l.collector.Close()
		l.collector = nil
	}
}

type fieldKind uint8

const (
	kindString fieldKind = iota
	kindInt
	kindFloat
	kindBool
	kindError
	kindAny
)

// Field is a typed key/value pair attached to a log entry.
type Field struct {
	Key  string
	kind fieldKind
	s    string
	i    int64
	f    float64
	b    bool
	err  error
	v    interface{}
}

func (f Field) addTo(ev *zerolog.Event) {
	switch f.kind {
	case kindString:
		ev.Str(f.Key, f.s)
	case kindInt:
		ev.Int64(f.Key, f.i)
	case kindFloat:
		ev.Float64(f.Key, f.f)
	case kindBool:
		ev.Bool(f.Key, f.b)
	case kindError:
		ev.Err(f.err)
	default:
		ev.Interface(f.Key, f.v)
	}
}

func (f Field) addToContext(c zerolog.Context) zerolog.Context {
	switch f.kind {
	case kindString:
		return c.Str(f.Key, f.s)
	case kindInt:
		return c.Int64(f.Key, f.i)
	case kindFloat:
		return c.Float64(f.Key, f.f)
	case kindBool:
		return c.Bool(f.Key, f.b)
	case kindError:
		return c.AnErr(f.Key, f.err)
	default:
		return c.Interface(f.Key, f.v)
	}
}

func (f Field) value() interface{} {
	switch f.kind {
	case kindString:
		return f.s
	case kindInt:
		return f.i
	case kindFloat:
		return f.f
	case kindBool:
		return f.b
	case kindError:
		if f.err == nil {
			return nil
		}
		return f.err.Error()
	default:
		return f.v
	}
}

func String(key, v string) Field { return Field{Key: key, kind: kindString, s: v} }
func Strings(key string, v []string) Field { return String(key, strings.Join(v, ", ")) }
func Int(key string, v int) Field { return Field{Key: key, kind: kindInt, i: int64(v)} }
func Int64(key string, v int64) Field { return Field{Key: key, kind: kindInt, i: v} }
func Float64(key string, v float64) Field { return Field{Key: key, kind: kindFloat, f: v} }
func Bool(key string, v bool) Field { return Field{Key: key, kind: kindBool, b: v} }
func Error(err error) Field { return Field{Key: "error", kind: kindError, err: err} }
func Any(key string, v interface{}) Field { return Field{Key: key, kind: kindAny, v: v} }
func Duration(key string, d time.Duration) Field {
	return Int64(key, d.Milliseconds())
}
