package queue

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/mdaverde/fnq-go/internal/queuefile"
)

// RunSupervisor is the entry point for the P1 (supervisor) re-exec stage.
// It starts the worker re-exec, releases the initiator once the worker has
// begun, waits for the worker to terminate, and writes the status trailer
// (and, in clean mode, removes the queue file on success).
func RunSupervisor(args []string) int {
	dir := os.Getenv(dirEnvKey)
	timeID, err := readIntEnv(timeEnvKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fnq: supervisor:", err)
		return 1
	}
	quiet := readBoolEnv(quietEnvKey)
	clean := readBoolEnv(cleanEnvKey)

	cmdName, cmdArgs, err := splitDashDash(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fnq: supervisor:", err)
		return 1
	}

	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "fnq: supervisor:", err)
		return 1
	}

	// fd 3, inherited from the initiator via ExtraFiles, is our copy of the
	// synchronization pipe's write end.
	w := os.NewFile(3, "fnq-sync-pipe")

	workerArgs := append([]string{"--", cmdName}, cmdArgs...)
	workerCmd := exec.Command(self, workerArgs...)
	workerCmd.Env = append(os.Environ(),
		stageEnvKey+"="+stageWorker,
		dirEnvKey+"="+dir,
		fmt.Sprintf("%s=%d", timeEnvKey, timeID),
	)
	workerCmd.ExtraFiles = []*os.File{w}

	if err := workerCmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "fnq: supervisor: start worker:", err)
		_ = w.Close()
		return 1
	}

	pid := workerCmd.Process.Pid
	path := queuePath(dir, timeID, pid)

	// The bare filename is the token users hand back to tap/block/watch.
	if !quiet {
		fmt.Fprintln(os.Stdout, queuefile.NewName(timeID, pid))
	}

	_ = os.Stdin.Close()
	_ = os.Stdout.Close()
	_ = os.Stderr.Close()

	// Release our copy of the write end. The worker still holds its own
	// copy until it has created and locked its queue file, so the
	// initiator stays blocked until then regardless of when this close
	// lands.
	_ = w.Close()

	waitErr := workerCmd.Wait()

	trailer := statusTrailer(waitErr)
	appendTrailer(path, trailer)

	exitCode := 0
	if waitErr != nil {
		if ee, ok := waitErr.(*exec.ExitError); ok && ee.ProcessState != nil {
			exitCode = ee.ProcessState.ExitCode()
		} else {
			exitCode = 1
		}
	}

	if clean && exitCode == 0 {
		if rmErr := os.Remove(path); rmErr != nil {
			appendTrailer(path, fmt.Sprintf("[failed to remove file: %v.]\n", rmErr))
		}
	}

	return 0
}
