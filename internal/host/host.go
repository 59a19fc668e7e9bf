// Package host defines the boundary between the scheduling core and the
// simulator platform that owns the clock, the hardware model, the workload
// loader, the SLA-violation reporter and the logging sink. The core only
// ever talks to a Host; internal/host/simhost is the single in-memory
// implementation in this repository, used by the driver and by every
// core-package test.
package host

import (
	"time"

	"github.com/helios-sim/helios/internal/domain"
)

// SState changes and VM migrations are asynchronous: the request call
// returns immediately and completion is delivered later through the core's
// StateChangeComplete/MigrationDone handlers. P-state changes through
// SetCorePerformance take effect synchronously.

// Host is every operation the scheduling core consumes from the host
// platform. Implementations must be safe for the core's single-threaded,
// non-reentrant calling convention — the core never calls back into Host
// concurrently with itself.
type Host interface {
	// Inventory queries.
	MachineTotal() int
	MachineIDs() []domain.MachineID
	MachineInfo(id domain.MachineID) (domain.Machine, error)
	VMInfo(id domain.VMID) (domain.VM, error)
	TaskInfo(id domain.TaskID) (domain.Task, error)
	IsTaskCompleted(id domain.TaskID) (bool, error)

	// State control.
	SetMachineState(id domain.MachineID, s domain.SState) error
	SetCorePerformance(id domain.MachineID, core int, p domain.PState) error

	// VM operations.
	CreateVM(guest domain.GuestType, cpu domain.CPUArch) (domain.VMID, error)
	AttachVM(vm domain.VMID, machine domain.MachineID) error
	AddTaskToVM(vm domain.VMID, task domain.TaskID, priority int) error
	MigrateVM(vm domain.VMID, dst domain.MachineID) error
	ShutdownVM(vm domain.VMID) error

	// Reporting.
	SLAReport(class domain.SLAClass) (percentViolated float64, err error)
	ClusterEnergyKWh() float64
	SimOutput(msg string, level int)

	// Now returns the host's current simulated clock. Handlers are always
	// invoked with a timestamp already; Now exists for components that need
	// it outside a handler call, such as a periodic controller computing
	// elapsed time between ticks.
	Now() time.Time
}

