//go:build linux

package simhost

import "golang.org/x/sys/unix"

// localCoreCount returns the number of logical cores in this process's
// scheduling affinity mask, for best-effort seeding of a MachineSpec's
// NumCPUs when a fleet manifest leaves it unset. It never fails outright:
// an error or empty mask just falls through to the caller's config default.
func localCoreCount() (int, bool) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return 0, false
	}
	n := set.Count()
	if n <= 0 {
		return 0, false
	}
	return n, true
}

// localPageSizeBytes returns the host's memory page size. It backs
// LocalPageSizeBytes, which nothing in this module calls.
func localPageSizeBytes() (int, bool) {
	n := unix.Getpagesize()
	if n <= 0 {
		return 0, false
	}
	return n, true
}
