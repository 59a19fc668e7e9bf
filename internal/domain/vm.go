package domain

// VMStatus tracks a VM's eligibility for new placements. A VM that is
// Migrating must never be selected by the Placement Engine until the
// host's MigrationDone callback arrives. Machine warming is tracked by the
// Fleet Inventory, not by a VMStatus.
type VMStatus string

const (
	VMSettled   VMStatus = "settled"
	VMMigrating VMStatus = "migrating"
)

// VM is a snapshot of a VM's attributes as reported by the host's
// VM_GetInfo operation, augmented with the core's own migration-tracking
// status.
type VM struct {
	ID          VMID
	GuestType   GuestType
	MachineID   MachineID // attached machine; meaningless while Migrating
	ActiveTasks int
	Status      VMStatus
	MigrateDest MachineID // pending destination while Migrating
}

// Selectable reports whether the Placement Engine may consider this VM.
func (vm VM) Selectable() bool { return vm.Status == VMSettled }
