// Package queuefile names and enumerates the per-task files that make up a
// queue directory. A queue file's name encodes the order in which it was
// enqueued; the package never relies on filesystem creation-time metadata,
// since that is not portable across platforms and filesystems.
package queuefile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mdaverde/fnq-go/internal/fnqerr"
)

// Prefix is the filename prefix that marks a file in a queue directory as a
// queue file rather than incidental clutter.
const Prefix = "fnq"

// Entry describes one queue file: its path, the millisecond-since-epoch
// timestamp embedded in its name, and the pid of the worker that created it.
type Entry struct {
	Path   string
	TimeID int64
	PID    int
}

// Name returns the bare filename (not the full path) for this entry.
func (e Entry) Name() string {
	return filepath.Base(e.Path)
}

// NewName builds the canonical queue filename for a task enqueued at timeID
// (milliseconds since the Unix epoch) whose worker has the given pid.
func NewName(timeID int64, pid int) string {
	return fmt.Sprintf("%s%d.%d", Prefix, timeID, pid)
}

// TimeID returns the current time as milliseconds since the Unix epoch,
// erroring out if the system clock reports a time before the epoch —
// the filename grammar has no representation for a negative time_id.
func TimeID(now time.Time) (int64, error) {
	ms := now.UnixMilli()
	if ms < 0 {
		return 0, fnqerr.New(fnqerr.KindSystemTime, "system clock is before the Unix epoch")
	}
	return ms, nil
}

// Parse extracts the TimeID and PID from a bare queue filename. It returns
// false if name does not match the fnq<time_id>.<pid> grammar.
func Parse(name string) (Entry, bool) {
	if !strings.HasPrefix(name, Prefix) {
		return Entry{}, false
	}
	rest := name[len(Prefix):]
	dot := strings.LastIndexByte(rest, '.')
	if dot < 0 {
		return Entry{}, false
	}
	timePart, pidPart := rest[:dot], rest[dot+1:]
	timeID, err := strconv.ParseInt(timePart, 10, 64)
	if err != nil {
		return Entry{}, false
	}
	pid, err := strconv.Atoi(pidPart)
	if err != nil {
		return Entry{}, false
	}
	return Entry{TimeID: timeID, PID: pid}, true
}

// Files scans dir and returns every regular queue file it contains, sorted ascending
// by (TimeID, PID) — i.e. enqueue order. An empty directory is not an error;
// an unreadable directory is.
func Files(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fnqerr.Wrap(fnqerr.KindIO, "read queue directory", err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}
		parsed, ok := Parse(de.Name())
		if !ok {
			continue
		}
		parsed.Path = filepath.Join(dir, de.Name())
		entries = append(entries, parsed)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TimeID != entries[j].TimeID {
			return entries[i].TimeID < entries[j].TimeID
		}
		return entries[i].PID < entries[j].PID
	})
	return entries, nil
}

// Last returns the most recently enqueued entry in dir, or
// fnqerr.ErrQueueEmpty if dir contains no queue files.
func Last(dir string) (Entry, error) {
	entries, err := Files(dir)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fnqerr.ErrQueueEmpty
	}
	return entries[len(entries)-1], nil
}

// Find resolves a user-supplied filename (bare name or path) to an Entry
// within dir. It returns fnqerr.KindFileNotFound if no matching queue file
// exists.
func Find(dir, name string) (Entry, error) {
	base := filepath.Base(name)
	parsed, ok := Parse(base)
	if !ok {
		return Entry{}, fnqerr.New(fnqerr.KindFileNotFound, fmt.Sprintf("%q is not a queue filename", name))
	}
	path := filepath.Join(dir, base)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Entry{}, fnqerr.New(fnqerr.KindFileNotFound, fmt.Sprintf("no such queue file %q", base))
		}
		return Entry{}, fnqerr.Wrap(fnqerr.KindIO, "stat queue file", err)
	}
	parsed.Path = path
	return parsed, nil
}

// EnsureDir creates dir (and any missing parents) if it does not exist, and
// errors if dir exists but is not a directory.
func EnsureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fnqerr.New(fnqerr.KindIO, fmt.Sprintf("%q is not a directory", dir))
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fnqerr.Wrap(fnqerr.KindIO, "stat queue directory", err)
	}
	if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
		return fnqerr.Wrap(fnqerr.KindIO, "create queue directory", mkErr)
	}
	return nil
}
