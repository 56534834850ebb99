// Package fnqerr defines the error kinds the queue and observer operations
// distinguish, so callers at the command surface can map failures to the
// right diagnostic and exit code without string-matching error text.
package fnqerr

import "errors"

// Kind classifies a failure into one of the categories the CLI layer needs
// to tell apart.
type Kind int

const (
	// KindUnknown is the zero value; never returned by this package.
	KindUnknown Kind = iota
	// KindIO covers directory/file open, read, write, and remove failures.
	KindIO
	// KindLock covers failures from the lock/pipe/setsid/exec syscalls used
	// by the enqueue protocol. EWOULDBLOCK is not represented here — it is
	// a predicate outcome (lock.TryLockShared returning false, nil), not an
	// error.
	KindLock
	// KindSystemTime covers a clock reading before the Unix epoch.
	KindSystemTime
	// KindStringConv covers a command or argument containing an embedded NUL.
	KindStringConv
	// KindQueueEmpty covers Last() called against an empty queue directory.
	KindQueueEmpty
	// KindFileNotFound covers Tap/Block given a queue filename that does not exist.
	KindFileNotFound
	// KindWatcherMutation covers Watch observing its target renamed or removed.
	KindWatcherMutation
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindLock:
		return "lock"
	case KindSystemTime:
		return "system_time"
	case KindStringConv:
		return "string_conv"
	case KindQueueEmpty:
		return "queue_empty"
	case KindFileNotFound:
		return "file_not_found"
	case KindWatcherMutation:
		return "watcher_mutation"
	default:
		return "unknown"
	}
}

// Error is a kind-tagged error. Use errors.As to recover the Kind from a
// wrapped error chain.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a new kind-tagged error with no wrapped cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap tags err with kind, preserving it as the Unwrap cause.
func Wrap(kind Kind, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ErrQueueEmpty is returned by Last when the queue directory holds no
// queue files.
var ErrQueueEmpty = New(KindQueueEmpty, "queue is empty")
