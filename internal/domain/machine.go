package domain

// Machine is a snapshot of a physical machine's attributes as reported by
// the host's Machine_GetInfo operation. The core never caches the numeric
// fields below across handler invocations — Fleet Inventory
// (internal/fleet) caches only identifiers and group membership, re-reading
// these from the host each time freshness matters.
type Machine struct {
	ID       MachineID
	CPU      CPUArch
	NumCPUs  int
	MIPS     [4]float64 // indexed by PState.Index(): MIPS[P0..P3]
	MemoryCapacityMB int64
	MemoryUsedMB     int64
	HasGPU           bool
	SState           SState
	PState           PState
	ActiveTasks      int
	ActiveVMs        int
}

// MIPSAt returns the achievable MIPS at the given P-state.
func (m Machine) MIPSAt(p PState) float64 {
	idx := p.Index()
	if idx < 0 || idx >= len(m.MIPS) {
		return 0
	}
	return m.MIPS[idx]
}

// Utilization is active_tasks / core_count.
func (m Machine) Utilization() float64 {
	if m.NumCPUs <= 0 {
		return 0
	}
	return float64(m.ActiveTasks) / float64(m.NumCPUs)
}

// Active reports whether the machine is powered on (S0) and therefore
// eligible to host VMs and tasks.
func (m Machine) Active() bool { return m.SState == S0 }

// AvailableMemoryMB returns how much memory headroom remains before the
// capacity invariant would be violated.
func (m Machine) AvailableMemoryMB() int64 {
	room := m.MemoryCapacityMB - m.MemoryUsedMB
	if room < 0 {
		return 0
	}
	return room
}

// FitsMemory reports whether requiredMB (plus overheadMB when a new VM
// would be created) still leaves the machine within capacity.
func (m Machine) FitsMemory(requiredMB, overheadMB int64) bool {
	return m.MemoryUsedMB+requiredMB+overheadMB <= m.MemoryCapacityMB
}
