package executor

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// cpuCount honours the scheduler affinity mask so a pinned process does not
// oversubscribe its CPUs.
func cpuCount() int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err == nil && set.Count() > 0 {
		return set.Count()
	}
	return runtime.NumCPU()
}
