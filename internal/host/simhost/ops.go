package simhost

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/helios-sim/helios/internal/domain"
	"github.com/helios-sim/helios/internal/logging"
)

// The methods in this file implement host.Host. SimHost is asserted against
// that interface in the package that wires them together (cmd/helios) to
// avoid an import cycle (host -> domain only; simhost -> host would be
// fine, but host never needs to import simhost).

func (h *SimHost) MachineTotal() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.machines)
}

func (h *SimHost) MachineIDs() []domain.MachineID {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]domain.MachineID, 0, len(h.machines))
	for id := range h.machines {
		ids = append(ids, id)
	}
	return ids
}

func (h *SimHost) MachineInfo(id domain.MachineID) (domain.Machine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	mr, ok := h.machines[id]
	if !ok {
		return domain.Machine{}, fmt.Errorf("machine %s: %w", id, errNotFound)
	}
	return mr.m, nil
}

func (h *SimHost) VMInfo(id domain.VMID) (domain.VM, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	vr, ok := h.vms[id]
	if !ok {
		return domain.VM{}, fmt.Errorf("vm %s: %w", id, errNotFound)
	}
	return vr.v, nil
}

func (h *SimHost) TaskInfo(id domain.TaskID) (domain.Task, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tr, ok := h.tasks[id]
	if !ok {
		return domain.Task{}, fmt.Errorf("task %s: %w", id, errNotFound)
	}
	return tr.t, nil
}

func (h *SimHost) IsTaskCompleted(id domain.TaskID) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	tr, ok := h.tasks[id]
	if !ok {
		return false, fmt.Errorf("task %s: %w", id, errNotFound)
	}
	return tr.completed, nil
}

// SetMachineState requests an asynchronous S-state transition. The
// machine's visible SState flips only once the scheduled
// StateChangeComplete callback is delivered by the driver.
func (h *SimHost) SetMachineState(id domain.MachineID, s domain.SState) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.machines[id]; !ok {
		return fmt.Errorf("machine %s: %w", id, errNotFound)
	}

	h.pending = append(h.pending, pendingCallback{
		readyAt: h.now.Add(h.cfg.StateChangeDelay),
		cb:      Callback{Kind: CallbackStateChange, Machine: id},
	})
	h.pendingState[id] = s
	return nil
}

// ApplyMachineState is called by the driver once it has delivered the
// StateChangeComplete callback to the core, flipping the machine's visible
// SState to the value requested by the matching SetMachineState call.
func (h *SimHost) ApplyMachineState(id domain.MachineID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.pendingState[id]
	if !ok {
		return
	}
	delete(h.pendingState, id)
	if mr, ok := h.machines[id]; ok {
		mr.m.SState = s
		if s != domain.S0 {
			mr.m.ActiveTasks = 0
			mr.m.ActiveVMs = 0
		}
	}
}

// SetCorePerformance is synchronous: core=0 broadcasts to all cores.
func (h *SimHost) SetCorePerformance(id domain.MachineID, core int, p domain.PState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	mr, ok := h.machines[id]
	if !ok {
		return fmt.Errorf("machine %s: %w", id, errNotFound)
	}
	if core != 0 {
		return fmt.Errorf("simhost: only core=0 (broadcast) is supported")
	}
	mr.m.PState = p
	return nil
}

func (h *SimHost) CreateVM(guest domain.GuestType, cpu domain.CPUArch) (domain.VMID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextVMID++
	id := domain.VMID(h.nextVMID)
	h.vms[id] = &vmRec{
		v: domain.VM{
			ID:        id,
			GuestType: guest,
			Status:    domain.VMSettled,
		},
		uuid: uuid.NewString(),
	}
	_ = cpu // the VM's CPU compatibility is enforced by the attached machine
	return id, nil
}

// VMCorrelationID returns the host-issued UUID tag for a VM, for use in
// trace spans and structured logs.
func (h *SimHost) VMCorrelationID(id domain.VMID) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if vr, ok := h.vms[id]; ok {
		return vr.uuid
	}
	return ""
}

func (h *SimHost) AttachVM(vm domain.VMID, machine domain.MachineID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	vr, ok := h.vms[vm]
	if !ok {
		return fmt.Errorf("vm %s: %w", vm, errNotFound)
	}
	mr, ok := h.machines[machine]
	if !ok {
		return fmt.Errorf("machine %s: %w", machine, errNotFound)
	}
	vr.v.MachineID = machine
	mr.m.ActiveVMs++
	mr.m.MemoryUsedMB += h.cfg.VMMemoryOverheadMB
	return nil
}

func (h *SimHost) AddTaskToVM(vm domain.VMID, task domain.TaskID, priority int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	vr, ok := h.vms[vm]
	if !ok {
		return fmt.Errorf("vm %s: %w", vm, errNotFound)
	}
	tr, ok := h.tasks[task]
	if !ok {
		return fmt.Errorf("task %s: %w", task, errNotFound)
	}
	mr, ok := h.machines[vr.v.MachineID]
	if !ok {
		return fmt.Errorf("machine for vm %s: %w", vm, errNotFound)
	}

	vr.v.ActiveTasks++
	mr.m.ActiveTasks++
	mr.m.MemoryUsedMB += tr.t.RequiredMemoryMB
	h.taskVM[task] = vm
	_ = priority // priority affects host-side CPU share scheduling only, not placement
	return nil
}

// MigrateVM requests an asynchronous migration. The VM becomes
// unselectable immediately and stays that way until MigrationDone fires.
func (h *SimHost) MigrateVM(vm domain.VMID, dst domain.MachineID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	vr, ok := h.vms[vm]
	if !ok {
		return fmt.Errorf("vm %s: %w", vm, errNotFound)
	}
	if _, ok := h.machines[dst]; !ok {
		return fmt.Errorf("machine %s: %w", dst, errNotFound)
	}
	vr.v.Status = domain.VMMigrating
	vr.v.MigrateDest = dst

	h.pending = append(h.pending, pendingCallback{
		readyAt: h.now.Add(h.cfg.MigrationDelay),
		cb:      Callback{Kind: CallbackMigrationDone, VM: vm},
	})
	return nil
}

// ApplyMigration is called by the driver once MigrationDone has been
// delivered to the core, moving the VM to its destination and clearing its
// transient status.
func (h *SimHost) ApplyMigration(vm domain.VMID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	vr, ok := h.vms[vm]
	if !ok || vr.v.Status != domain.VMMigrating {
		return
	}
	if src, ok := h.machines[vr.v.MachineID]; ok {
		src.m.ActiveVMs--
	}
	if dst, ok := h.machines[vr.v.MigrateDest]; ok {
		dst.m.ActiveVMs++
	}
	vr.v.MachineID = vr.v.MigrateDest
	vr.v.MigrateDest = 0
	vr.v.Status = domain.VMSettled
}

func (h *SimHost) ShutdownVM(vm domain.VMID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	vr, ok := h.vms[vm]
	if !ok {
		return fmt.Errorf("vm %s: %w", vm, errNotFound)
	}
	if mr, ok := h.machines[vr.v.MachineID]; ok {
		mr.m.ActiveVMs--
	}
	delete(h.vms, vm)
	return nil
}

func (h *SimHost) SLAReport(class domain.SLAClass) (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := h.slaTotal[class]
	if total == 0 {
		return 0, nil
	}
	return 100 * float64(h.slaViolated[class]) / float64(total), nil
}

func (h *SimHost) ClusterEnergyKWh() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.energyKWh
}

func (h *SimHost) SimOutput(msg string, level int) {
	switch {
	case level <= 0:
		logging.Op().Error(msg)
	case level == 1:
		logging.Op().Warn(msg)
	default:
		logging.Op().Debug(msg)
	}
}
