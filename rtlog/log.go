// Package rtlog provides the structured logging facade used across
// greenproc's scheduler, process, and supervisor packages. It wraps
// github.com/rs/zerolog directly, following the same library the retrieved
// corpus uses for structured logging (see
// _examples/joeycumines-go-utilpkg/logiface-zerolog), without the
// multi-backend logiface abstraction layer, since greenproc has a single
// logging backend.
package rtlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with the few fields greenproc's core
// repeatedly attaches: scheduler id, pid, task handle.
type Logger struct {
	zerolog.Logger
}

// New builds a Logger writing JSON lines to w at the given level.
func New(w io.Writer, level zerolog.Level) Logger {
	if w == nil {
		w = os.Stderr
	}
	return Logger{zerolog.New(w).Level(level).With().Timestamp().Logger()}
}

// Default returns a Logger writing to os.Stderr at info level.
func Default() Logger {
	return New(os.Stderr, zerolog.InfoLevel)
}

// Nop returns a Logger that discards everything; used as the zero-value
// default inside components that accept an optional logger, and in tests
// that want silence.
func Nop() Logger {
	return Logger{zerolog.Nop()}
}

// WithScheduler returns a child logger tagged with a scheduler id.
func (l Logger) WithScheduler(id uint64) Logger {
	return Logger{l.With().Uint64("scheduler_id", id).Logger()}
}

// WithPid returns a child logger tagged with a process id.
func (l Logger) WithPid(pid uint64) Logger {
	return Logger{l.With().Uint64("pid", pid).Logger()}
}

// WithTask returns a child logger tagged with a task handle id.
func (l Logger) WithTask(id uint64) Logger {
	return Logger{l.With().Uint64("task_id", id).Logger()}
}
