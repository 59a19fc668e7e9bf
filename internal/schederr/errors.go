// Package schederr defines the sentinel error kinds the scheduling core
// reports. The core never panics or throws across the host boundary —
// every handler returns normally, and these sentinels are only ever logged
// via the host's SimOutput, never propagated to the caller.
package schederr

import "errors"

var (
	// ErrUnknownCPU marks a CPU architecture with no default guest-type
	// mapping. Raised by the Provisioner at init; the affected group is
	// skipped rather than aborting startup.
	ErrUnknownCPU = errors.New("unknown cpu architecture")

	// ErrUnplaceable marks a task for which all three placement tiers were
	// exhausted. No ActiveTask record is created.
	ErrUnplaceable = errors.New("task unplaceable")

	// ErrLateTask marks a deadline-check pass finding now > deadline. The
	// task is not recovered; it remains active until it completes.
	ErrLateTask = errors.New("task deadline already elapsed")

	// ErrMemoryOvercommit marks a MemoryWarning from the host. The core
	// does not remediate; it only logs.
	ErrMemoryOvercommit = errors.New("machine memory overcommitted")
)
