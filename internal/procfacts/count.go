// Package procfacts wraps the primitive spec.md §1 assumes is available:
// processor_count(). It also exposes the teacher's CPU-affinity pinning
// (internal/cpu), wired into the task-pool executor as an opt-in so the
// golang.org/x/sys dependency the affinity code needs keeps a real caller
// instead of sitting unused.
package procfacts

import "github.com/kestrelrun/dispatch/internal/cpu"

// ProcessorCount is the spec's processor_count(): the number of logical
// CPUs available to this process, used to size the default worker count
// for process and task pools (spec §4.12).
func ProcessorCount() int {
	return cpu.GetNumCPU()
}

// PinWorker locks the calling goroutine to its own OS thread and, where the
// platform supports it, pins that thread to CPU workerID%NumCPU. It returns
// a cleanup function the caller must defer. Used by the task-pool executor
// when the PinWorkers option is set.
func PinWorker(workerID int) func() {
	return cpu.SetupWorkerAffinity(workerID)
}
