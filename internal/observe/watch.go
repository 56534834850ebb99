package observe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/thejerf/suture/v4"

	"github.com/mdaverde/fnq-go/internal/fnqerr"
	"github.com/mdaverde/fnq-go/internal/lock"
	"github.com/mdaverde/fnq-go/internal/queuefile"
	"github.com/mdaverde/fnq-go/internal/util"
)

// DefaultPollInterval is the debounce window Watch uses to decide a task
// has actually finished, rather than merely paused writing momentarily.
// Overridable via internal/config's Watch.PollInterval.
const DefaultPollInterval = 100 * time.Millisecond

// Watch follows every still-running queue file in dir in enqueue order,
// copying new output to w as it is written, until each one finishes.
//
// Go's fsnotify does not expose a distinct close-write event the way Linux
// inotify's raw IN_CLOSE_WRITE does across all platforms fsnotify
// supports, so completion is detected with an equivalent signal instead:
// the exclusive lock has been released, and the file's size has stopped
// growing across two consecutive probes spaced pollInterval apart.
func Watch(ctx context.Context, dir string, w io.Writer, pollInterval time.Duration, logger *slog.Logger) error {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	entries, err := queuefile.Files(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		done, err := isFinished(entry.Path)
		if err != nil {
			return err
		}
		if done {
			continue
		}
		fmt.Fprintf(w, "===> %s\n", entry.Path)
		if err := followFile(ctx, entry.Path, w, pollInterval, logger); err != nil {
			return err
		}
	}
	return nil
}

func isFinished(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fnqerr.Wrap(fnqerr.KindIO, "open queue file", err)
	}
	defer f.Close()
	ok, err := lock.TryLockShared(f)
	if err != nil {
		return false, err
	}
	if ok {
		_ = lock.Unlock(f)
		return true, nil
	}
	return false, nil
}

// followFile streams appended bytes of path to w until the task finishes.
// The fsnotify event pump runs as a suture-supervised service so a panic
// inside event handling is recovered and the pump restarted rather than
// taking the whole watch command down with it.
func followFile(ctx context.Context, path string, w io.Writer, pollInterval time.Duration, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fnqerr.Wrap(fnqerr.KindIO, "open queue file for follow", err)
	}
	defer f.Close()

	offset, err := io.Copy(w, f)
	if err != nil {
		return fnqerr.Wrap(fnqerr.KindIO, "copy existing contents", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fnqerr.Wrap(fnqerr.KindLock, "create fsnotify watcher", err)
	}
	defer watcher.Close()
	if err := watcher.Add(path); err != nil {
		return fnqerr.Wrap(fnqerr.KindLock, "watch queue file", err)
	}

	events := make(chan fsnotify.Event, 16)
	pump := &eventPump{watcher: watcher, out: events, logger: logger}

	sup := suture.NewSimple("fnq-watch-" + path)
	sup.Add(pump)
	pumpCtx, cancelPump := context.WithCancel(ctx)
	defer cancelPump()
	pumpErr := util.Go("watch-pump", func() error {
		return sup.Serve(pumpCtx)
	})

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastSize := offset
	stableTicks := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-pumpErr:
			if ok && err != nil && logger != nil {
				logger.Warn("watch event pump stopped", "error", err)
			}
			pumpErr = nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch {
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				return fnqerr.New(fnqerr.KindWatcherMutation, fmt.Sprintf("queue file %s was renamed or removed while being watched", path))
			case ev.Op&fsnotify.Write != 0:
				n, copyErr := io.Copy(w, f)
				if copyErr != nil {
					return fnqerr.Wrap(fnqerr.KindIO, "copy appended contents", copyErr)
				}
				offset += n
				stableTicks = 0
			}
		case <-ticker.C:
			finished, err := isFinished(path)
			if err != nil {
				return err
			}
			info, statErr := os.Stat(path)
			if statErr != nil {
				if os.IsNotExist(statErr) {
					return nil
				}
				return fnqerr.Wrap(fnqerr.KindIO, "stat queue file", statErr)
			}
			if info.Size() == lastSize {
				stableTicks++
			} else {
				stableTicks = 0
				lastSize = info.Size()
			}
			if finished && stableTicks >= 2 {
				// Catch up any bytes written between the last event and
				// the lock release.
				if _, err := io.Copy(w, f); err != nil {
					return fnqerr.Wrap(fnqerr.KindIO, "copy final contents", err)
				}
				return nil
			}
		}
	}
}

// eventPump is a suture.Service that forwards fsnotify events for one
// watcher onto a channel the caller's select loop reads from.
type eventPump struct {
	watcher *fsnotify.Watcher
	out     chan<- fsnotify.Event
	logger  *slog.Logger
}

func (p *eventPump) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-p.watcher.Events:
			if !ok {
				return nil
			}
			select {
			case p.out <- ev:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return nil
			}
			if p.logger != nil {
				p.logger.Warn("fsnotify error", "error", err)
			}
		}
	}
}
