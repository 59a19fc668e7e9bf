// Package placement implements the Placement Engine: the three-tier
// algorithm that chooses where a new task runs, or reports it unplaceable.
package placement

import (
	"fmt"
	"math"
	"sync"

	"github.com/helios-sim/helios/internal/domain"
	"github.com/helios-sim/helios/internal/fleet"
	"github.com/helios-sim/helios/internal/host"
	"github.com/helios-sim/helios/internal/provisioner"
	"github.com/helios-sim/helios/internal/schederr"
)

// Strategy selects which placement algorithm Place uses.
type Strategy string

const (
	// StrategyScored is the default three-tier scored algorithm.
	StrategyScored Strategy = "scored"
	// StrategyRoundRobin cycles through eligible VMs/machines in turn
	// instead of scoring them; it is typically paired with a smaller
	// active-machine budget than the scored strategy.
	StrategyRoundRobin Strategy = "round_robin"
)

// Outcome is the result kind of a placement attempt.
type Outcome string

const (
	// OutcomePlaced means the task is already running on the returned VM.
	OutcomePlaced Outcome = "placed"
	// OutcomeDeferred means the task was optimistically assigned to a VM
	// on a machine that is still warming (tier 3); the assignment becomes
	// real once the machine's StateChangeComplete callback arrives.
	OutcomeDeferred Outcome = "deferred"
	// OutcomeUnplaceable means all three tiers were exhausted.
	OutcomeUnplaceable Outcome = "unplaceable"
)

// Result is what Place returns for a single task.
type Result struct {
	Outcome Outcome
	VM      domain.VMID
}

// Engine is the Placement Engine. It never mutates Fleet Inventory state
// itself beyond what the Provisioner already does on its behalf.
type Engine struct {
	host host.Host
	inv  *fleet.Inventory
	prov *provisioner.Provisioner

	gpuFactor          float64
	vmMemoryOverheadMB int64
	strategy           Strategy

	mu      sync.Mutex
	rrIndex int
}

// Config tunes the scoring model and strategy selection.
type Config struct {
	GPUFactor          float64
	VMMemoryOverheadMB int64
	Strategy           Strategy
}

// New builds an Engine.
func New(h host.Host, inv *fleet.Inventory, prov *provisioner.Provisioner, cfg Config) *Engine {
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = StrategyScored
	}
	return &Engine{
		host:               h,
		inv:                inv,
		prov:               prov,
		gpuFactor:          cfg.GPUFactor,
		vmMemoryOverheadMB: cfg.VMMemoryOverheadMB,
		strategy:           strategy,
	}
}

// Place attempts to place task, trying tier 1 (reuse), tier 2 (create on an
// active machine), then tier 3 (wake a dormant machine) in order.
func (e *Engine) Place(task domain.Task) (Result, error) {
	if vm, ok, err := e.tryReuse(task); err != nil {
		return Result{}, err
	} else if ok {
		return Result{Outcome: OutcomePlaced, VM: vm}, nil
	}

	if vm, ok, err := e.tryCreateOnActive(task); err != nil {
		return Result{}, err
	} else if ok {
		return Result{Outcome: OutcomePlaced, VM: vm}, nil
	}

	if vm, ok, err := e.tryWakeDormant(task); err != nil {
		return Result{}, err
	} else if ok {
		return Result{Outcome: OutcomeDeferred, VM: vm}, nil
	}

	e.host.SimOutput(fmt.Sprintf("%v: task %s", schederr.ErrUnplaceable, task.ID), 1)
	return Result{Outcome: OutcomeUnplaceable}, nil
}

// tryReuse implements tier 1: select the best already-attached VM.
func (e *Engine) tryReuse(task domain.Task) (domain.VMID, bool, error) {
	if e.strategy == StrategyRoundRobin {
		return e.tryReuseRoundRobin(task)
	}
	return e.tryReuseScored(task)
}

func (e *Engine) tryReuseScored(task domain.Task) (domain.VMID, bool, error) {
	var (
		best      domain.VMID
		bestScore = math.Inf(1)
		found     bool
	)

	for _, vmID := range e.inv.VMs() {
		_, machine, ok, err := e.eligibleVM(vmID, task)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			continue
		}

		score := e.score(machine, task)
		if score < bestScore || (score == bestScore && vmID < best) {
			bestScore = score
			best = vmID
			found = true
		}
	}

	if !found {
		return 0, false, nil
	}
	if err := e.attachTask(best, task); err != nil {
		return 0, false, err
	}
	return best, true, nil
}

func (e *Engine) tryReuseRoundRobin(task domain.Task) (domain.VMID, bool, error) {
	var candidates []domain.VMID
	for _, vmID := range e.inv.VMs() {
		if _, _, ok, err := e.eligibleVM(vmID, task); err != nil {
			return 0, false, err
		} else if ok {
			candidates = append(candidates, vmID)
		}
	}
	if len(candidates) == 0 {
		return 0, false, nil
	}

	e.mu.Lock()
	idx := e.rrIndex % len(candidates)
	e.rrIndex++
	e.mu.Unlock()

	chosen := candidates[idx]
	if err := e.attachTask(chosen, task); err != nil {
		return 0, false, err
	}
	return chosen, true, nil
}

// eligibleVM applies tier 1's hard filters and returns the VM and its
// attached machine when it passes.
func (e *Engine) eligibleVM(vmID domain.VMID, task domain.Task) (domain.VM, domain.Machine, bool, error) {
	vm, err := e.host.VMInfo(vmID)
	if err != nil {
		return domain.VM{}, domain.Machine{}, false, nil
	}
	if !vm.Selectable() || e.inv.IsMigrating(vmID) {
		return domain.VM{}, domain.Machine{}, false, nil
	}
	if vm.GuestType != task.RequiredGuest {
		return domain.VM{}, domain.Machine{}, false, nil
	}

	machine, err := e.host.MachineInfo(vm.MachineID)
	if err != nil {
		return domain.VM{}, domain.Machine{}, false, nil
	}
	if !machine.Active() || e.inv.IsWarming(machine.ID) {
		return domain.VM{}, domain.Machine{}, false, nil
	}
	if machine.CPU != task.RequiredCPU {
		return domain.VM{}, domain.Machine{}, false, nil
	}
	// Overhead is already paid for an existing VM.
	if !machine.FitsMemory(task.RequiredMemoryMB, 0) {
		return domain.VM{}, domain.Machine{}, false, nil
	}

	return vm, machine, true, nil
}

// score computes load · speed_ratio · gpu_factor. NaN inputs are treated as
// the worst possible score so a malformed MIPS table can never win a tie.
func (e *Engine) score(machine domain.Machine, task domain.Task) float64 {
	load := machine.Utilization()

	current := machine.MIPSAt(machine.PState)
	top := machine.MIPSAt(domain.P0)
	var speedRatio float64
	if current <= 0 {
		speedRatio = math.Inf(1)
	} else {
		speedRatio = top / current
	}

	gpuFactor := 1.0
	if task.GPUCapable && machine.HasGPU {
		gpuFactor = e.gpuFactor
	}

	score := load * speedRatio * gpuFactor
	if math.IsNaN(score) {
		return math.Inf(1)
	}
	return score
}

func (e *Engine) attachTask(vm domain.VMID, task domain.Task) error {
	return e.host.AddTaskToVM(vm, task.ID, task.Priority)
}

// tryCreateOnActive implements tier 2: create a VM on an active machine
// with CPU and memory headroom for task, applying the SLA0 pre-boost.
func (e *Engine) tryCreateOnActive(task domain.Task) (domain.VMID, bool, error) {
	for _, id := range e.orderedMachines(task.RequiredCPU) {
		machine, err := e.host.MachineInfo(id)
		if err != nil {
			continue
		}
		if !machine.Active() || e.inv.IsWarming(id) {
			continue
		}
		if !machine.FitsMemory(task.RequiredMemoryMB, e.vmMemoryOverheadMB) {
			continue
		}

		if task.SLA == domain.SLA0 && machine.PState.SlowerThan(domain.P1) {
			if err := e.host.SetCorePerformance(id, 0, domain.P1); err != nil {
				return 0, false, err
			}
		}

		vm, err := e.prov.CreateVMOnActive(id, task.RequiredGuest, task.RequiredCPU)
		if err != nil {
			return 0, false, err
		}
		if err := e.attachTask(vm, task); err != nil {
			return 0, false, err
		}
		return vm, true, nil
	}
	return 0, false, nil
}

// tryWakeDormant implements tier 3: wake the first matching S5 machine.
func (e *Engine) tryWakeDormant(task domain.Task) (domain.VMID, bool, error) {
	for _, id := range e.orderedMachines(task.RequiredCPU) {
		machine, err := e.host.MachineInfo(id)
		if err != nil {
			continue
		}
		if machine.SState != domain.S5 || e.prov.IsPendingWake(id) {
			continue
		}

		if err := e.prov.WakeDormant(id, task.RequiredGuest, task.ID, task.Priority); err != nil {
			return 0, false, err
		}
		// The VM does not exist yet; the caller gets no usable VMID until
		// CompleteWake runs, so Deferred carries the zero value.
		return 0, true, nil
	}
	return 0, false, nil
}

func (e *Engine) orderedMachines(cpu domain.CPUArch) []domain.MachineID {
	if e.strategy != StrategyRoundRobin {
		return e.inv.MachinesByCPU(cpu)
	}
	// Round-robin still needs a stable iteration order per call; the
	// rotation itself is expressed by cycling the starting offset.
	ids := e.inv.MachinesByCPU(cpu)
	if len(ids) == 0 {
		return ids
	}
	e.mu.Lock()
	offset := e.rrIndex % len(ids)
	e.mu.Unlock()
	rotated := make([]domain.MachineID, len(ids))
	for i := range ids {
		rotated[i] = ids[(offset+i)%len(ids)]
	}
	return rotated
}
