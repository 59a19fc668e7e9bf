// Package fleet implements the fleet inventory: a pure cache of
// identifiers and group membership. It never caches numeric machine/VM
// fields — those are read fresh from the host every time freshness
// matters, because the host mutates capacities as tasks run and a stale
// cache would drift. This mirrors cluster.Registry, which likewise holds
// only identifiers and lets callers re-query the host/store for live
// metrics.
package fleet

import (
	"sort"
	"sync"

	"github.com/helios-sim/helios/internal/domain"
	"github.com/helios-sim/helios/internal/host"
)

// Inventory is the core's cache of machine and VM identifiers, grouped by
// CPU architecture for the Provisioner and Placement Engine.
type Inventory struct {
	h host.Host

	mu           sync.Mutex
	byArch       map[domain.CPUArch][]domain.MachineID
	vms          map[domain.VMID]struct{}
	migratingVMs map[domain.VMID]domain.MachineID // vm -> pending destination
	warming      map[domain.MachineID]struct{}    // machines mid S-state-transition
}

// New builds an Inventory by enumerating every machine the host knows
// about and grouping by CPU architecture.
func New(h host.Host) *Inventory {
	inv := &Inventory{
		h:            h,
		byArch:       make(map[domain.CPUArch][]domain.MachineID),
		vms:          make(map[domain.VMID]struct{}),
		migratingVMs: make(map[domain.VMID]domain.MachineID),
		warming:      make(map[domain.MachineID]struct{}),
	}

	for _, id := range h.MachineIDs() {
		m, err := h.MachineInfo(id)
		if err != nil {
			continue
		}
		inv.byArch[m.CPU] = append(inv.byArch[m.CPU], id)
	}
	for arch := range inv.byArch {
		sort.Slice(inv.byArch[arch], func(i, j int) bool { return inv.byArch[arch][i] < inv.byArch[arch][j] })
	}

	return inv
}

// MachinesByCPU returns every machine of the given architecture, in
// ascending ID order (ties in scoring break on lowest ID).
func (inv *Inventory) MachinesByCPU(arch domain.CPUArch) []domain.MachineID {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]domain.MachineID, len(inv.byArch[arch]))
	copy(out, inv.byArch[arch])
	return out
}

// Architectures returns every CPU architecture present in the fleet.
func (inv *Inventory) Architectures() []domain.CPUArch {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]domain.CPUArch, 0, len(inv.byArch))
	for arch := range inv.byArch {
		out = append(out, arch)
	}
	return out
}

// VMs returns every VM identifier the core has created, in ascending order.
func (inv *Inventory) VMs() []domain.VMID {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]domain.VMID, 0, len(inv.vms))
	for id := range inv.vms {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RegisterVM records a VM the core just created via the host.
func (inv *Inventory) RegisterVM(id domain.VMID) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.vms[id] = struct{}{}
}

// RegisterMachine adds a newly-woken or newly-discovered machine to its
// architecture group. Machines normally enter the inventory once at
// construction; this exists for the rare case the host's fleet grows
// after InitScheduler (not used by the Provisioner's own wake path, which
// only ever transitions an already-known machine's S-state).
func (inv *Inventory) RegisterMachine(id domain.MachineID, arch domain.CPUArch) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, existing := range inv.byArch[arch] {
		if existing == id {
			return
		}
	}
	inv.byArch[arch] = append(inv.byArch[arch], id)
	sort.Slice(inv.byArch[arch], func(i, j int) bool { return inv.byArch[arch][i] < inv.byArch[arch][j] })
}

// MarkVMMigrating excludes vm from placement selection until
// MarkVMSettled is called.
func (inv *Inventory) MarkVMMigrating(vm domain.VMID, dst domain.MachineID) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.migratingVMs[vm] = dst
}

// MarkVMSettled clears a VM's migrating status once MigrationDone arrives.
func (inv *Inventory) MarkVMSettled(vm domain.VMID) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.migratingVMs, vm)
}

// IsMigrating reports whether vm is currently excluded from selection.
func (inv *Inventory) IsMigrating(vm domain.VMID) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	_, ok := inv.migratingVMs[vm]
	return ok
}

// MarkMachineWarming excludes a machine from selection until
// MarkMachineReady is called.
func (inv *Inventory) MarkMachineWarming(id domain.MachineID) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.warming[id] = struct{}{}
}

// MarkMachineReady clears a machine's warming status once
// StateChangeComplete arrives.
func (inv *Inventory) MarkMachineReady(id domain.MachineID) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.warming, id)
}

// IsWarming reports whether id is mid S-state-transition.
func (inv *Inventory) IsWarming(id domain.MachineID) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	_, ok := inv.warming[id]
	return ok
}

// ActiveMachineCount re-queries the host for every known machine and
// counts the ones currently in S0, for the driver's fleet gauges.
func (inv *Inventory) ActiveMachineCount() int {
	inv.mu.Lock()
	ids := make([]domain.MachineID, 0)
	for _, group := range inv.byArch {
		ids = append(ids, group...)
	}
	inv.mu.Unlock()

	count := 0
	for _, id := range ids {
		m, err := inv.h.MachineInfo(id)
		if err != nil {
			continue
		}
		if m.Active() {
			count++
		}
	}
	return count
}

// ActiveVMCount re-queries the host for every VM the core has created and
// counts the ones currently settled (not mid-migration), for the driver's
// fleet gauges.
func (inv *Inventory) ActiveVMCount() int {
	vms := inv.VMs()

	count := 0
	for _, id := range vms {
		vm, err := inv.h.VMInfo(id)
		if err != nil {
			continue
		}
		if vm.Selectable() {
			count++
		}
	}
	return count
}
