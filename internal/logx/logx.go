package logx

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Field mutates a zerolog event. Fields are applied in order; if the same key
// is set twice, the later field wins.
type Field func(e *zerolog.Event)

func Str(k, v string) Field         { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field     { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Float64(k string, v float64) Field {
	return func(e *zerolog.Event) { e.Float64(k, v) }
}
func Dur(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Logger is a leveled reporter with rank filtering for cooperating
// multi-process deployments. By default a logger emits only on rank zero;
// AllRanks returns a derived logger that emits on every rank. Single-process
// runs use rank 0 and see everything. The zero value is a usable no-op.
type Logger struct {
	z        zerolog.Logger
	rank     int
	allRanks bool
	fields   []Field
}

// New builds a console logger at the given level for the given process rank.
// Unknown level strings fall back to info.
func New(w io.Writer, level string, rank int) Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	z := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	return Logger{z: z, rank: rank}
}

// Default logs to stderr at info level on rank 0.
func Default() Logger {
	return New(os.Stderr, "info", 0)
}

// Nop returns a logger that never writes anything.
func Nop() Logger {
	return Logger{z: zerolog.Nop()}
}

// AllRanks returns a copy that emits regardless of process rank.
func (l Logger) AllRanks() Logger {
	l.allRanks = true
	return l
}

// With returns a derived logger carrying fixed fields.
func (l Logger) With(fields ...Field) Logger {
	next := make([]Field, 0, len(l.fields)+len(fields))
	next = append(next, l.fields...)
	next = append(next, fields...)
	l.fields = next
	return l
}

func (l Logger) emit(e *zerolog.Event, msg string, fields []Field) {
	if !l.allRanks && l.rank != 0 {
		return
	}
	for _, f := range l.fields {
		f(e)
	}
	for _, f := range fields {
		f(e)
	}
	e.Msg(msg)
}

func (l Logger) Debug(msg string, fields ...Field) { l.emit(l.z.Debug(), msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(l.z.Info(), msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(l.z.Warn(), msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(l.z.Error(), msg, fields) }
