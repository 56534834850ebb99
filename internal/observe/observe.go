// Package observe implements the read-only queue operations: tap (is
// anything still running?), block (wait until everything currently queued
// finishes), and last (dump the most recent queue file). Watch, the
// live-follow operation, lives in watch.go alongside the fsnotify and
// suture wiring it needs.
//
// None of these operations ever take an exclusive lock, create a file, or
// modify a queue file's contents — they only probe or wait on the same
// advisory locks the enqueue protocol uses.
package observe

import (
	"io"
	"os"

	"github.com/mdaverde/fnq-go/internal/fnqerr"
	"github.com/mdaverde/fnq-go/internal/lock"
	"github.com/mdaverde/fnq-go/internal/queuefile"
)

// Tap reports whether any task in dir is still running. If file is
// non-empty, only that queue file is checked. Tap never blocks.
func Tap(dir, file string) (running bool, err error) {
	entries, err := targets(dir, file)
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		f, err := os.OpenFile(entry.Path, os.O_RDWR, 0)
		if err != nil {
			if os.IsNotExist(err) {
				continue // finished and already cleaned up
			}
			return false, fnqerr.Wrap(fnqerr.KindIO, "open queue file", err)
		}
		ok, lockErr := lock.TryLockShared(f)
		if lockErr != nil {
			f.Close()
			return false, lockErr
		}
		if !ok {
			f.Close()
			return true, nil
		}
		_ = lock.Unlock(f)
		f.Close()
	}
	return false, nil
}

// Block waits until every task visible in dir at call time (or just file,
// if given) has finished. Tasks enqueued after Block starts are not
// awaited — this is the documented snapshot-at-start semantics.
func Block(dir, file string) error {
	entries, err := targets(dir, file)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := lock.WaitUntilUnlocked(entry.Path); err != nil {
			return err
		}
	}
	return nil
}

// Last copies the contents of the most recently enqueued queue file in dir
// to w. It returns fnqerr.ErrQueueEmpty if dir has no queue files.
func Last(dir string, w io.Writer) error {
	entry, err := queuefile.Last(dir)
	if err != nil {
		return err
	}
	f, err := os.Open(entry.Path)
	if err != nil {
		return fnqerr.Wrap(fnqerr.KindIO, "open last queue file", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fnqerr.Wrap(fnqerr.KindIO, "copy last queue file", err)
	}
	return nil
}

// targets resolves either a single named queue file or every queue file in
// dir, in enqueue order.
func targets(dir, file string) ([]queuefile.Entry, error) {
	if file == "" {
		return queuefile.Files(dir)
	}
	entry, err := queuefile.Find(dir, file)
	if err != nil {
		return nil, err
	}
	return []queuefile.Entry{entry}, nil
}
