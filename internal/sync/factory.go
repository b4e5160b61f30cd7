package sync

// ThreadCount decides how many sync threads to create and on which CPUs,
// per the factory rules in spec.md §4.5. numCPU is the number of CPUs
// available for per-CPU synchronization (relevant only when spe is true).
func ThreadCount(spe bool, supportsClockID bool, numCPU int) []int {
	switch {
	case spe:
		cpus := make([]int, numCPU)
		for i := range cpus {
			cpus[i] = i
		}
		return cpus
	case !supportsClockID:
		return []int{0}
	default:
		return nil
	}
}
