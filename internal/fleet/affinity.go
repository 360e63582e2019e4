package fleet

import (
	"golang.org/x/sys/unix"
)

// ChurnAffinity reassigns a running worker's CPU affinity to a single,
// rotating CPU (§4.4 "CPU affinity churn: periodically rebind each
// worker to a different online CPU to perturb cache locality"). Errors
// are swallowed: affinity churn is a best-effort perturbation, not a
// correctness requirement, and many sandboxes forbid CGO_ENABLED=0
// processes from changing another process's affinity even when owned by
// the same user.
func ChurnAffinity(pid int, cpu int) {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	_ = unix.SchedSetaffinity(pid, &set)
}

// OnlineCPUs returns the CPUs this process is currently allowed to run
// on; `loadbreaker run` uses their number as its CPU count.
func OnlineCPUs() []int {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil
	}
	var cpus []int
	for i := 0; i < unix.CPU_SETSIZE; i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus
}
