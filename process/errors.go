package process

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced at the process boundary: invalid argument,
// state violation, resource exhaustion.
var (
	ErrSelfLink    = errors.New("process: cannot link a process to itself")
	ErrSelfMonitor = errors.New("process: cannot monitor self")
	ErrNotFound    = errors.New("process: pid not registered")
	ErrNotAlive    = errors.New("process: target is not alive")
	ErrDestroyed   = errors.New("process: already destroyed")
)

// MetaError exposes the pid and exit reason a failure is correlated
// with, so a caller several frames away from where an error originated
// can still recover which process and which exit caused it.
type MetaError interface {
	error
	Unwrap() error
	Pid() (Pid, bool)
	Reason() (Reason, bool)
}

type taggedError struct {
	err    error
	pid    Pid
	reason Reason
	hasPid bool
}

func newTaggedError(err error, pid Pid, reason Reason) error {
	if err == nil {
		return nil
	}
	return &taggedError{err: err, pid: pid, reason: reason, hasPid: pid != 0}
}

func (e *taggedError) Error() string { return e.err.Error() }
func (e *taggedError) Unwrap() error { return e.err }

func (e *taggedError) Pid() (Pid, bool) {
	if !e.hasPid {
		return 0, false
	}
	return e.pid, true
}

func (e *taggedError) Reason() (Reason, bool) {
	if e.reason == "" {
		return "", false
	}
	return e.reason, true
}

func (e *taggedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "process(pid=%d,reason=%s): %+v", e.pid, e.reason, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractPid returns the pid err is correlated with, if any.
func ExtractPid(err error) (Pid, bool) {
	var me MetaError
	if errors.As(err, &me) {
		return me.Pid()
	}
	return 0, false
}

// ExtractReason returns the exit reason err is correlated with, if any.
func ExtractReason(err error) (Reason, bool) {
	var me MetaError
	if errors.As(err, &me) {
		return me.Reason()
	}
	return "", false
}
