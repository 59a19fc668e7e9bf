// Package provisioner implements the Provisioner: startup fleet power-on
// and on-demand VM/machine provisioning. It never talks to the host
// directly from outside the core's single-threaded handler calls, so it
// keeps no lock of its own, matching the cooperative concurrency model the
// rest of the core follows.
package provisioner

import (
	"fmt"

	"github.com/helios-sim/helios/internal/domain"
	"github.com/helios-sim/helios/internal/fleet"
	"github.com/helios-sim/helios/internal/host"
	"github.com/helios-sim/helios/internal/schederr"
)

// wakeIntent records what to do once a machine's S0 transition is
// confirmed by StateChangeComplete: create a VM of the given guest type
// and, if a task was waiting on the wake (the on-demand tier-3 path),
// attach that task too.
type wakeIntent struct {
	guest    domain.GuestType
	task     domain.TaskID
	priority int
	hasTask  bool
}

// Provisioner owns the machine-power and VM-creation side of the core.
type Provisioner struct {
	host   host.Host
	inv    *fleet.Inventory
	budget int // ActiveMachinesBudget (T)

	pendingWakes map[domain.MachineID]wakeIntent
}

// New builds a Provisioner bound to inv and budget (the configured
// active-machine budget T).
func New(h host.Host, inv *fleet.Inventory, budget int) *Provisioner {
	return &Provisioner{
		host:         h,
		inv:          inv,
		budget:       budget,
		pendingWakes: make(map[domain.MachineID]wakeIntent),
	}
}

// InitScheduler partitions the fleet by CPU architecture and powers on
// min(|G|, floor(T/number_of_groups)) machines per group, leaving the rest
// in S5. Each powered machine later gets one default-guest-type VM once its
// StateChangeComplete callback arrives (handled by CompleteWake).
func (p *Provisioner) InitScheduler() error {
	archs := p.inv.Architectures()
	if len(archs) == 0 {
		return nil
	}

	perGroup := p.budget / len(archs)

	for _, arch := range archs {
		guest, ok := domain.DefaultGuestType(arch)
		if !ok {
			p.host.SimOutput(fmt.Sprintf("provisioner init: %v: architecture %s", schederr.ErrUnknownCPU, arch), 1)
			continue
		}

		ids := p.inv.MachinesByCPU(arch)
		n := perGroup
		if n > len(ids) {
			n = len(ids)
		}
		for i := 0; i < n; i++ {
			if err := p.powerOnForInit(ids[i], guest); err != nil {
				p.host.SimOutput(fmt.Sprintf("provisioner init: power on %s: %v", ids[i], err), 1)
			}
		}
	}
	return nil
}

func (p *Provisioner) powerOnForInit(id domain.MachineID, guest domain.GuestType) error {
	if err := p.host.SetMachineState(id, domain.S0); err != nil {
		return err
	}
	p.inv.MarkMachineWarming(id)
	p.pendingWakes[id] = wakeIntent{guest: guest}
	return nil
}

// CreateVMOnActive implements the tier-2 on-demand path: the Placement
// Engine has already chosen an active machine with room; this creates a VM
// of the task's required guest type and attaches it synchronously.
func (p *Provisioner) CreateVMOnActive(machine domain.MachineID, guest domain.GuestType, cpu domain.CPUArch) (domain.VMID, error) {
	vm, err := p.host.CreateVM(guest, cpu)
	if err != nil {
		return 0, err
	}
	if err := p.host.AttachVM(vm, machine); err != nil {
		return 0, err
	}
	p.inv.RegisterVM(vm)
	return vm, nil
}

// WakeDormant implements the tier-3 on-demand path: requests an S0
// transition for a sleeping machine and remembers the task waiting on it.
// The VM is created and the task attached once StateChangeComplete fires
// (via CompleteWake) — placement is optimistic, matching the host's
// buffering contract for a machine that isn't ready yet.
func (p *Provisioner) WakeDormant(machine domain.MachineID, guest domain.GuestType, task domain.TaskID, priority int) error {
	if err := p.host.SetMachineState(machine, domain.S0); err != nil {
		return err
	}
	p.inv.MarkMachineWarming(machine)
	p.pendingWakes[machine] = wakeIntent{guest: guest, task: task, priority: priority, hasTask: true}
	return nil
}

// CompleteWake is called by the scheduler's StateChangeComplete handler. It
// clears the machine's warming status and, if this machine's transition was
// requested by the Provisioner (init power-on or on-demand wake), creates
// and attaches the pending VM — and the pending task, if any. If machine
// has no pending wake (e.g. a DVFS consolidation transition), it only
// clears the warming status and returns hasTask=false.
func (p *Provisioner) CompleteWake(machine domain.MachineID) (vm domain.VMID, task domain.TaskID, hasTask bool, err error) {
	p.inv.MarkMachineReady(machine)

	intent, ok := p.pendingWakes[machine]
	if !ok {
		return 0, 0, false, nil
	}
	delete(p.pendingWakes, machine)

	m, err := p.host.MachineInfo(machine)
	if err != nil {
		return 0, 0, false, err
	}

	vm, err = p.host.CreateVM(intent.guest, m.CPU)
	if err != nil {
		return 0, 0, false, err
	}
	if err := p.host.AttachVM(vm, machine); err != nil {
		return 0, 0, false, err
	}
	p.inv.RegisterVM(vm)

	if !intent.hasTask {
		return vm, 0, false, nil
	}
	if err := p.host.AddTaskToVM(vm, intent.task, intent.priority); err != nil {
		return vm, 0, false, err
	}
	return vm, intent.task, true, nil
}

// IsPendingWake reports whether machine is mid a Provisioner-initiated
// power-on (as opposed to some other S-state transition).
func (p *Provisioner) IsPendingWake(machine domain.MachineID) bool {
	_, ok := p.pendingWakes[machine]
	return ok
}
