package queue

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/mdaverde/fnq-go/internal/lock"
	"github.com/mdaverde/fnq-go/internal/queuefile"
)

// RunWorker is the entry point for the P2 (worker) re-exec stage. It
// creates and exclusively locks the queue file, redirects its own
// stdout/stderr to it, performs the FIFO predecessor wait, and finally
// replaces its own process image with the user's command via syscall.Exec
// — a true execve that preserves the advisory lock and the redirected
// descriptors.
//
// RunWorker only returns if something goes wrong before execve; on success
// the process image is replaced and this function's caller never resumes.
func RunWorker(args []string) int {
	// fd 3, inherited via ExtraFiles, is our copy of the synchronization
	// pipe's write end. We hold it open until the queue file exists and is
	// exclusively locked: ours is the last copy to close, so the initiator's
	// read cannot see EOF before the file is observable to a scan.
	w := os.NewFile(3, "fnq-sync-pipe")

	dir := os.Getenv(dirEnvKey)
	timeID, err := readIntEnv(timeEnvKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fnq: worker:", err)
		return 1
	}
	cmdName, cmdArgs, err := splitDashDash(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fnq: worker:", err)
		return 1
	}

	pid := os.Getpid()
	path := queuePath(dir, timeID, pid)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fnq: worker: create queue file:", err)
		return 1
	}

	if err := lock.LockExclusive(f); err != nil {
		fmt.Fprintln(os.Stderr, "fnq: worker: lock queue file:", err)
		return 1
	}

	header := "exec " + cmdName
	if len(cmdArgs) > 0 {
		header += " " + strings.Join(cmdArgs, " ")
	}
	header += "\n"
	if _, err := f.WriteString(header); err != nil {
		fmt.Fprintln(os.Stderr, "fnq: worker: write header:", err)
		return 1
	}

	if err := unix.Dup2(int(f.Fd()), 1); err != nil {
		fmt.Fprintln(os.Stderr, "fnq: worker: redirect stdout:", err)
		return 1
	}
	if err := unix.Dup2(int(f.Fd()), 2); err != nil {
		fmt.Fprintln(os.Stderr, "fnq: worker: redirect stderr:", err)
		return 1
	}

	// Ready: the queue file exists, is locked, and captures our output.
	// Releasing the pipe lets the initiator return to its shell; a tap
	// issued right after must already see us as running.
	_ = w.Close()

	if err := waitForPredecessors(dir, timeID, pid); err != nil {
		fmt.Fprintf(os.Stderr, "fnq: worker: predecessor wait: %v\n", err)
		return 1
	}

	if _, err := f.WriteString("\n"); err != nil {
		fmt.Fprintln(os.Stderr, "fnq: worker: write terminator:", err)
		return 1
	}
	if err := os.Chmod(path, 0o700); err != nil {
		fmt.Fprintln(os.Stderr, "fnq: worker: chmod:", err)
		return 1
	}
	if _, err := unix.Setsid(); err != nil && err != unix.EPERM {
		fmt.Fprintln(os.Stderr, "fnq: worker: setsid:", err)
		return 1
	}

	binPath, lookErr := exec.LookPath(cmdName)
	if lookErr != nil {
		fmt.Fprintf(os.Stderr, "fnq: worker: %s: command not found\n", cmdName)
		return 127
	}

	execArgs := append([]string{cmdName}, cmdArgs...)
	if execErr := syscall.Exec(binPath, execArgs, scrubbedEnviron()); execErr != nil {
		fmt.Fprintln(os.Stderr, "fnq: worker: exec:", execErr)
		return 1
	}
	// unreachable: syscall.Exec only returns on error
	return 1
}

// scrubbedEnviron returns the process environment minus the internal
// variables that carried the enqueue request across the re-exec chain; the
// user's command must not see the chain's plumbing.
func scrubbedEnviron() []string {
	env := os.Environ()
	out := env[:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "FNQ_INTERNAL_") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

// waitForPredecessors implements the FIFO core: every queue file enqueued
// strictly before (myTimeID, myPID) is waited on (via a shared lock)
// before this worker is allowed to proceed to execve. The precedence
// relation (TimeID, PID) is a strict total order, so this can never
// deadlock: a worker only ever waits on tasks that were already
// irrevocably ordered before it.
func waitForPredecessors(dir string, myTimeID int64, myPID int) error {
	entries, err := queuefile.Files(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.TimeID > myTimeID || (entry.TimeID == myTimeID && entry.PID >= myPID) {
			continue
		}
		if err := lock.WaitUntilUnlocked(entry.Path); err != nil {
			return err
		}
	}
	return nil
}
