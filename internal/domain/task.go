package domain

import "time"

// Task is a snapshot of a task's attributes as reported by the host's
// GetTaskInfo operation.
type Task struct {
	ID                   TaskID
	RequiredCPU          CPUArch
	RequiredGuest        GuestType
	RequiredMemoryMB     int64
	Arrival              time.Time
	TargetCompletion     time.Time
	RemainingInstructions int64 // millions of instructions (MI)
	SLA                  SLAClass
	Priority             int
	GPUCapable           bool
}

// ActiveTask is the core-owned bookkeeping record created at placement and
// destroyed at completion. It is the core's only durable-within-a-run
// state; it is never written to the host and never persisted across runs.
type ActiveTask struct {
	TaskID   TaskID
	SLA      SLAClass
	Deadline time.Time
	VMID     VMID

	Boosted   bool
	Migrating bool
}

// ETA computes a time-to-completion estimate: remaining work divided
// by achievable throughput at the given P-state, expressed as a duration.
// mips is millions of instructions per second; remainingInstructions is in
// millions of instructions, matching the host's GetTaskInfo unit.
func ETA(remainingInstructions int64, mips float64) time.Duration {
	if mips <= 0 {
		return time.Duration(1<<63 - 1) // effectively "never" — caller must not act as if on schedule
	}
	seconds := float64(remainingInstructions) / mips
	return time.Duration(seconds * float64(time.Second))
}
