// Package log implements the leveled, key-value logger used across the
// scraper and validator agents. It mirrors the vendored logging idiom
// carried by the rest of the tos-network node family: plain functions
// (Trace/Debug/Info/Warn/Error/Crit) taking alternating key-value pairs,
// a colorized handler when stderr is a terminal, and a logfmt-style
// handler otherwise.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is the logging severity.
type Level int

const (
	LevelCrit Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

func (l Level) String() string {
	switch l {
	case LevelCrit:
		return "CRIT"
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	default:
		return "?????"
	}
}

var levelColor = map[Level]*color.Color{
	LevelCrit:  color.New(color.FgWhite, color.BgRed, color.Bold),
	LevelError: color.New(color.FgRed),
	LevelWarn:  color.New(color.FgYellow),
	LevelInfo:  color.New(color.FgGreen),
	LevelDebug: color.New(color.FgCyan),
	LevelTrace: color.New(color.FgMagenta),
}

var (
	mu        sync.Mutex
	out       io.Writer = colorable.NewColorableStderr()
	useColor            = isatty.IsTerminal(os.Stderr.Fd())
	threshold atomic.Int32
)

func init() {
	threshold.Store(int32(LevelInfo))
}

// SetOutput redirects log output; used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetLevel sets the minimum level that is emitted.
func SetLevel(l Level) {
	threshold.Store(int32(l))
}

// SetColor forces (or disables) colorized output, overriding TTY detection.
func SetColor(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	useColor = enabled
}

func enabled(l Level) bool {
	return int32(l) <= threshold.Load()
}

func logf(l Level, skipCallerForCrit bool, msg string, ctx ...interface{}) {
	if !enabled(l) {
		return
	}
	mu.Lock()
	defer mu.Unlock()

	ts := time.Now().Format("2006-01-02T15:04:05.000Z0700")
	var line string
	if useColor {
		c := levelColor[l]
		line = fmt.Sprintf("%s %s %s", ts, c.Sprint(l.String()), msg)
	} else {
		line = fmt.Sprintf("%s lvl=%s msg=%q", ts, l.String(), msg)
	}

	for i := 0; i+1 < len(ctx); i += 2 {
		line += fmt.Sprintf(" %v=%v", ctx[i], ctx[i+1])
	}
	if len(ctx)%2 == 1 {
		line += fmt.Sprintf(" %v=MISSING", ctx[len(ctx)-1])
	}

	if l == LevelCrit && !skipCallerForCrit {
		if call := stack.Caller(2); true {
			line += fmt.Sprintf(" caller=%+v", call)
		}
	}

	fmt.Fprintln(out, line)
}

func Trace(msg string, ctx ...interface{}) { logf(LevelTrace, false, msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { logf(LevelDebug, false, msg, ctx...) }
func Info(msg string, ctx ...interface{})  { logf(LevelInfo, false, msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { logf(LevelWarn, false, msg, ctx...) }
func Error(msg string, ctx ...interface{}) { logf(LevelError, false, msg, ctx...) }

// Crit logs at the highest severity, annotating the call site, and does
// not exit the process; callers decide whether a crit is fatal.
func Crit(msg string, ctx ...interface{}) { logf(LevelCrit, false, msg, ctx...) }

// New returns a child logger that prefixes every message with static
// context, e.g. log.New("chain", "ethereum").
func New(ctx ...interface{}) *Logger {
	return &Logger{ctx: ctx}
}

// Logger carries static key-value context applied to every call.
type Logger struct {
	ctx []interface{}
}

func (lg *Logger) with(ctx []interface{}) []interface{} {
	if len(lg.ctx) == 0 {
		return ctx
	}
	all := make([]interface{}, 0, len(lg.ctx)+len(ctx))
	all = append(all, lg.ctx...)
	all = append(all, ctx...)
	return all
}

func (lg *Logger) Trace(msg string, ctx ...interface{}) { logf(LevelTrace, false, msg, lg.with(ctx)...) }
func (lg *Logger) Debug(msg string, ctx ...interface{}) { logf(LevelDebug, false, msg, lg.with(ctx)...) }
func (lg *Logger) Info(msg string, ctx ...interface{})  { logf(LevelInfo, false, msg, lg.with(ctx)...) }
func (lg *Logger) Warn(msg string, ctx ...interface{})  { logf(LevelWarn, false, msg, lg.with(ctx)...) }
func (lg *Logger) Error(msg string, ctx ...interface{}) { logf(LevelError, false, msg, lg.with(ctx)...) }
func (lg *Logger) Crit(msg string, ctx ...interface{})  { logf(LevelCrit, false, msg, lg.with(ctx)...) }
