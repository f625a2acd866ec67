// Package cpu provides CPU-count discovery and best-effort core affinity
// pinning for task-pool workers.
package cpu

import "runtime"

// GetNumCPU returns the number of logical CPUs available to this process.
func GetNumCPU() int {
	return runtime.NumCPU()
}
