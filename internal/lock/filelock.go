// SPDX-License-Identifier: MIT

//go:build linux || darwin || freebsd || netbsd || openbsd

// Package lock wraps POSIX advisory whole-file locking (flock(2) semantics)
// for the queue protocol. Unlike a typical application lock file, these
// locks carry no PID and no staleness heuristic: the lock itself, tied to
// the open file description, is the liveness signal. It stays held across
// execve, and the kernel releases it automatically when the holding process
// exits or is killed; the enqueue protocol depends on both properties (see
// internal/queue).
package lock

import (
	"os"
	"syscall"

	"github.com/mdaverde/fnq-go/internal/fnqerr"
)

// LockExclusive takes a blocking exclusive lock on f.
func LockExclusive(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fnqerr.Wrap(fnqerr.KindLock, "flock exclusive", err)
	}
	return nil
}

// LockShared takes a blocking shared lock on f.
func LockShared(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH); err != nil {
		return fnqerr.Wrap(fnqerr.KindLock, "flock shared", err)
	}
	return nil
}

// TryLockShared attempts a non-blocking shared lock on f. It returns
// (true, nil) if the lock was taken, (false, nil) if it would have blocked
// (i.e. someone else holds an exclusive lock), and (false, err) for any
// other failure.
func TryLockShared(f *os.File) (bool, error) {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_SH|syscall.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if err == syscall.EWOULDBLOCK {
		return false, nil
	}
	return false, fnqerr.Wrap(fnqerr.KindLock, "flock shared nonblock", err)
}

// TryLockExclusive is the non-blocking counterpart of LockExclusive. It
// returns (true, nil) if the lock was taken, (false, nil) if it would have
// blocked, and (false, err) for any other failure.
func TryLockExclusive(f *os.File) (bool, error) {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if err == syscall.EWOULDBLOCK {
		return false, nil
	}
	return false, fnqerr.Wrap(fnqerr.KindLock, "flock exclusive nonblock", err)
}

// Unlock releases any lock held on f.
func Unlock(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_UN); err != nil {
		return fnqerr.Wrap(fnqerr.KindLock, "flock unlock", err)
	}
	return nil
}

// WaitUntilUnlocked blocks until no process holds an exclusive lock on the
// file at path, without itself retaining any lock once it returns. It opens
// path read-write, first tries a non-blocking shared lock; if that would
// block, it falls back to a blocking shared lock, then releases and closes.
//
// A path that no longer exists is treated as "already unlocked" (the holder
// finished and, in clean mode, removed its queue file), not an error.
func WaitUntilUnlocked(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fnqerr.Wrap(fnqerr.KindIO, "open for wait", err)
	}
	defer f.Close()

	ok, err := TryLockShared(f)
	if err != nil {
		return err
	}
	if !ok {
		if err := LockShared(f); err != nil {
			return err
		}
	}
	return Unlock(f)
}
