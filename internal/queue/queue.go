// Package queue implements the enqueue protocol: a three-process chain
// (initiator, supervisor, worker) that detaches a user command into the
// background, records its output into a queue file, and serializes its
// start against every earlier-enqueued task via advisory locks.
//
// A single Go process cannot safely call raw fork(2) once the runtime has
// started its scheduler, GC workers, and sysmon thread — only the calling
// goroutine's stack survives into the child, while any runtime-internal
// lock held by another thread at fork time stays held forever. Each stage
// of the chain is therefore a fresh re-exec of the same binary
// (os.Executable()) carrying a hidden internal role, exactly the pattern
// the wider Go ecosystem uses for daemonization. Synchronization crosses
// process boundaries through a pipe passed via exec.Cmd.ExtraFiles, the
// same way an inherited descriptor would cross a fork.
package queue

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mdaverde/fnq-go/internal/fnqerr"
	"github.com/mdaverde/fnq-go/internal/queuefile"
)

// Environment variables used to pass the enqueue request across the
// re-exec chain. stageEnvKey is the gate: the CLI layer only treats an
// invocation as an internal stage when it is set to one of the two known
// values, and it is set exclusively by exec.Cmd.Env below, never inherited
// from a user's shell.
const (
	stageEnvKey = "FNQ_INTERNAL_STAGE"
	dirEnvKey   = "FNQ_INTERNAL_DIR"
	timeEnvKey  = "FNQ_INTERNAL_TIMEID"
	quietEnvKey = "FNQ_INTERNAL_QUIET"
	cleanEnvKey = "FNQ_INTERNAL_CLEAN"

	stageSupervisor = "supervisor"
	stageWorker     = "worker"
)

// Request describes one enqueue invocation.
type Request struct {
	Dir    string
	Cmd    string
	Args   []string
	Quiet  bool
	Clean  bool
	Logger *slog.Logger
}

// Stage reports which internal re-exec role, if any, the current process
// was launched as. It returns "" for an ordinary top-level invocation.
func Stage() string {
	switch os.Getenv(stageEnvKey) {
	case stageSupervisor:
		return stageSupervisor
	case stageWorker:
		return stageWorker
	default:
		return ""
	}
}

// Enqueue runs the initiator (P0) side of the protocol: it starts the
// supervisor re-exec, waits for the worker to signal that its queue file
// exists and is locked, and returns. It does not wait for the task itself
// to finish.
func Enqueue(req Request) error {
	if strings.ContainsRune(req.Cmd, 0) {
		return fnqerr.New(fnqerr.KindStringConv, "command contains an embedded NUL")
	}
	for _, a := range req.Args {
		if strings.ContainsRune(a, 0) {
			return fnqerr.New(fnqerr.KindStringConv, "argument contains an embedded NUL")
		}
	}

	timeID, err := queuefile.TimeID(time.Now())
	if err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return fnqerr.Wrap(fnqerr.KindIO, "resolve own executable path", err)
	}

	r, w, err := os.Pipe()
	if err != nil {
		return fnqerr.Wrap(fnqerr.KindLock, "create synchronization pipe", err)
	}

	args := append([]string{"--"}, req.Cmd)
	args = append(args, req.Args...)

	cmd := exec.Command(self, args...)
	cmd.Env = append(os.Environ(),
		stageEnvKey+"="+stageSupervisor,
		dirEnvKey+"="+req.Dir,
		fmt.Sprintf("%s=%d", timeEnvKey, timeID),
		fmt.Sprintf("%s=%v", quietEnvKey, req.Quiet),
		fmt.Sprintf("%s=%v", cleanEnvKey, req.Clean),
	)
	cmd.ExtraFiles = []*os.File{w}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if req.Logger != nil {
		req.Logger.Debug("starting supervisor", "time_id", timeID, "dir", req.Dir)
	}

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return fnqerr.Wrap(fnqerr.KindLock, "start supervisor process", err)
	}

	// Our own copy of the write end must close before we read, or the read
	// will never see EOF (it would be waiting on itself).
	if err := w.Close(); err != nil {
		return fnqerr.Wrap(fnqerr.KindIO, "close initiator pipe write end", err)
	}

	// Blocks until every copy of the write end is closed: ours (just
	// closed), the supervisor's (closed once the worker has been started),
	// and finally the worker's, which it holds until its queue file has
	// been created and exclusively locked. EOF here therefore means the
	// task is observable: a directory scan will find its file, and a tap
	// will see it locked.
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if n == 0 || err != nil {
			break
		}
	}
	_ = r.Close()

	if req.Logger != nil {
		req.Logger.Debug("worker signaled ready", "time_id", timeID)
	}
	return nil
}

func readIntEnv(key string) (int64, error) {
	v := os.Getenv(key)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fnqerr.Wrap(fnqerr.KindIO, "parse "+key, err)
	}
	return n, nil
}

func readBoolEnv(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

// splitDashDash pulls the user command and its arguments out of the
// remaining argv, which the initiator always shapes as "-- <cmd> [args...]".
func splitDashDash(args []string) (string, []string, error) {
	for i, a := range args {
		if a == "--" {
			rest := args[i+1:]
			if len(rest) == 0 {
				return "", nil, fnqerr.New(fnqerr.KindIO, "missing command after --")
			}
			return rest[0], rest[1:], nil
		}
	}
	return "", nil, fnqerr.New(fnqerr.KindIO, "missing -- separator in internal invocation")
}

func appendTrailer(path string, line string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o700)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = io.WriteString(f, line)
}

func statusTrailer(waitErr error) string {
	if waitErr == nil {
		return "[exited with status 0.]\n"
	}
	exitErr, ok := waitErr.(*exec.ExitError)
	if !ok {
		return fmt.Sprintf("[child process has errored out: %v.]\n", waitErr)
	}
	if exitErr.ProcessState == nil {
		return fmt.Sprintf("[child process has exited with unknown state: %v.]\n", waitErr)
	}
	return processStateTrailer(exitErr)
}

func queuePath(dir string, timeID int64, pid int) string {
	return filepath.Join(dir, queuefile.NewName(timeID, pid))
}
