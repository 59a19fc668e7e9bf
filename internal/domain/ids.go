// Package domain holds the entity types the scheduling core reasons about:
// machines, VMs, tasks, and the SLA bookkeeping record created at placement.
// Every type here is a value type or a newtyped identifier — the core never
// holds an owning pointer into the host's hardware model.
package domain

import "fmt"

// MachineID is an opaque identifier issued by the host for a physical
// machine. It is never constructed by the core.
type MachineID int64

func (id MachineID) String() string { return fmt.Sprintf("machine-%d", int64(id)) }

// VMID is an opaque identifier issued by the host for a VM. The core
// requests VM creation but the identifier itself always comes back from
// the host's VM_Create call.
type VMID int64

func (id VMID) String() string { return fmt.Sprintf("vm-%d", int64(id)) }

// TaskID is an opaque identifier issued by the host for a task.
type TaskID int64

func (id TaskID) String() string { return fmt.Sprintf("task-%d", int64(id)) }

// InvalidMachineID is the zero value used to signal "no machine".
const InvalidMachineID MachineID = 0
