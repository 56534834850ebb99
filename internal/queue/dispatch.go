package queue

import "fmt"

// Dispatch runs the internal re-exec stage indicated by Stage() against
// args (the process's own os.Args[1:]) and returns the process exit code.
// It panics if called when Stage() is empty — callers must check Stage()
// first.
func Dispatch(stage string, args []string) int {
	switch stage {
	case stageSupervisor:
		return RunSupervisor(args)
	case stageWorker:
		return RunWorker(args)
	default:
		panic(fmt.Sprintf("queue: Dispatch called with unknown stage %q", stage))
	}
}
