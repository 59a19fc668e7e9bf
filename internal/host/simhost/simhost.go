// Package simhost is the reference in-memory implementation of host.Host.
// It stands in for the event loop and clock, the hardware model, the
// workload loader, the SLA reporter, and the logging sink. It exists so
// the core can be driven and tested without a real data-center simulator
// attached.
package simhost

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helios-sim/helios/internal/domain"
)

var errNotFound = errors.New("not found")

// Config tunes the timing and power model of the simulated hardware.
type Config struct {
	// StateChangeDelay is how long a Machine_SetState transition takes to
	// confirm via StateChangeComplete.
	StateChangeDelay time.Duration
	// MigrationDelay is how long a VM_Migrate takes to confirm via
	// MigrationDone.
	MigrationDelay time.Duration

	// IdlePowerKW is the power draw of an active (S0) machine at zero
	// utilization; BusyPowerKW is the additional draw at 100% utilization.
	// Power scales linearly with utilization between the two, and is
	// further scaled by a per-P-state multiplier (faster P-states draw
	// more power for the same utilization).
	IdlePowerKW float64
	BusyPowerKW float64
	// PStateMultiplier is indexed like Machine.MIPS: P0..P3.
	PStateMultiplier [4]float64

	// VMMemoryOverheadMB is the fixed memory tax charged against a
	// machine's capacity when a VM is attached to it (GLOSSARY "Per-VM
	// overhead").
	VMMemoryOverheadMB int64
}

// DefaultConfig returns a reasonable timing/power model for demos and tests.
func DefaultConfig() Config {
	return Config{
		StateChangeDelay: 2 * time.Second,
		MigrationDelay:   3 * time.Second,
		IdlePowerKW:        0.05,
		BusyPowerKW:        0.25,
		PStateMultiplier:   [4]float64{1.0, 0.85, 0.7, 0.55},
		VMMemoryOverheadMB: 64,
	}
}

type machineRec struct {
	m    domain.Machine
	uuid string
}

type vmRec struct {
	v    domain.VM
	uuid string
}

type taskRec struct {
	t           domain.Task
	uuid        string
	completed   bool
	completedAt time.Time
}

// CallbackKind distinguishes the two asynchronous completion callbacks the
// core expects.
type CallbackKind int

const (
	CallbackStateChange CallbackKind = iota
	CallbackMigrationDone
)

// Callback is a due asynchronous completion the driver must deliver to the
// core (via StateChangeComplete or MigrationDone).
type Callback struct {
	Kind    CallbackKind
	Machine domain.MachineID
	VM      domain.VMID
}

type pendingCallback struct {
	readyAt time.Time
	cb      Callback
}

// SimHost is the in-memory host. All access is serialized by mu; the
// scheduling core itself is single-threaded, but SimHost is also used
// directly from tests that may run table cases in parallel.
type SimHost struct {
	mu  sync.Mutex
	cfg Config
	now time.Time

	machines map[domain.MachineID]*machineRec
	vms      map[domain.VMID]*vmRec
	tasks    map[domain.TaskID]*taskRec

	nextMachineID int64
	nextVMID      int64
	nextTaskID    int64

	// taskVM is SimHost's own reverse index of task -> attached VM; it is
	// not part of domain.VM (which only carries an ActiveTasks count) and
	// exists purely to support the fair-share instruction burn in Advance.
	taskVM map[domain.TaskID]domain.VMID

	// pendingState holds the target SState for a machine between
	// SetMachineState and the driver applying the matching callback.
	pendingState map[domain.MachineID]domain.SState

	pending []pendingCallback

	energyKWh   float64
	slaTotal    map[domain.SLAClass]int
	slaViolated map[domain.SLAClass]int
}

// New creates an empty SimHost with the given start time.
func New(cfg Config, start time.Time) *SimHost {
	return &SimHost{
		cfg:         cfg,
		now:         start,
		machines:    make(map[domain.MachineID]*machineRec),
		vms:         make(map[domain.VMID]*vmRec),
		tasks:       make(map[domain.TaskID]*taskRec),
		taskVM:       make(map[domain.TaskID]domain.VMID),
		pendingState: make(map[domain.MachineID]domain.SState),
		slaTotal:    make(map[domain.SLAClass]int),
		slaViolated: make(map[domain.SLAClass]int),
	}
}

// MachineSpec describes a machine to seed before the core's InitScheduler
// runs. Seeded machines always start in S5 (off) — it is the Provisioner's
// job to power the right subset on.
type MachineSpec struct {
	CPU      domain.CPUArch
	NumCPUs  int
	MIPS     [4]float64
	MemoryCapacityMB int64
	HasGPU           bool
}

// ResolveLocalNumCPUs fills in spec.NumCPUs from the local machine's
// scheduling affinity mask when the caller leaves it unset (<= 0),
// falling back to fallback if the host doesn't expose one. This lets a
// fleet manifest that omits num_cpus for a group seed machines matching
// whatever hardware the simulator happens to be running on, the same
// best-effort spirit as the host page-size check LocalPageSizeBytes gives
// a driver that wants to sanity-check a manifest's memory capacity.
func ResolveLocalNumCPUs(spec MachineSpec, fallback int) MachineSpec {
	if spec.NumCPUs > 0 {
		return spec
	}
	if n, ok := localCoreCount(); ok {
		spec.NumCPUs = n
		return spec
	}
	spec.NumCPUs = fallback
	return spec
}

// LocalPageSizeBytes reports the host's memory page size, or false if the
// platform doesn't expose one through golang.org/x/sys/unix.
func LocalPageSizeBytes() (int, bool) {
	return localPageSizeBytes()
}

// Seed registers a new machine and returns its host-issued identifier.
func (h *SimHost) Seed(spec MachineSpec) domain.MachineID {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextMachineID++
	id := domain.MachineID(h.nextMachineID)
	h.machines[id] = &machineRec{
		m: domain.Machine{
			ID:               id,
			CPU:              spec.CPU,
			NumCPUs:          spec.NumCPUs,
			MIPS:             spec.MIPS,
			MemoryCapacityMB: spec.MemoryCapacityMB,
			HasGPU:           spec.HasGPU,
			SState:           domain.S5,
			PState:           domain.P0,
		},
		uuid: uuid.NewString(),
	}
	return id
}

// MachineCorrelationID returns the host-issued UUID tag for a machine,
// distinct from its core-visible integer MachineID, for use in trace spans
// and structured logs (the core itself never sees or compares on this).
func (h *SimHost) MachineCorrelationID(id domain.MachineID) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if mr, ok := h.machines[id]; ok {
		return mr.uuid
	}
	return ""
}

// TaskSpec describes a task arrival for internal/workload to submit.
type TaskSpec struct {
	RequiredCPU           domain.CPUArch
	RequiredGuest         domain.GuestType
	RequiredMemoryMB      int64
	TargetCompletion      time.Time
	RemainingInstructions int64
	SLA                   domain.SLAClass
	Priority              int
	GPUCapable            bool
}

// SubmitTask registers a new task arrival and returns its host-issued
// identifier. This is the workload loader's entry point, outside the core
// itself: internal/workload calls it, then the driver passes the returned
// TaskID to the core's HandleNewTask.
func (h *SimHost) SubmitTask(spec TaskSpec) domain.TaskID {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextTaskID++
	id := domain.TaskID(h.nextTaskID)
	h.tasks[id] = &taskRec{
		t: domain.Task{
			ID:                    id,
			RequiredCPU:           spec.RequiredCPU,
			RequiredGuest:         spec.RequiredGuest,
			RequiredMemoryMB:      spec.RequiredMemoryMB,
			Arrival:               h.now,
			TargetCompletion:      spec.TargetCompletion,
			RemainingInstructions: spec.RemainingInstructions,
			SLA:                   spec.SLA,
			Priority:              spec.Priority,
			GPUCapable:            spec.GPUCapable,
		},
		uuid: uuid.NewString(),
	}
	return id
}

// TaskCorrelationID returns the host-issued UUID tag for a task, for use in
// trace spans and structured logs.
func (h *SimHost) TaskCorrelationID(id domain.TaskID) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if tr, ok := h.tasks[id]; ok {
		return tr.uuid
	}
	return ""
}

func (h *SimHost) Now() time.Time { return h.now }

// Advance moves the simulated clock forward, burns instructions on every
// task currently attached to an active VM, accrues cluster energy for the
// elapsed interval, and returns any async callbacks that became due. It is
// the single place SimHost progresses state; the driver calls it once per
// event-loop tick before delivering the tick's own event to the core.
func (h *SimHost) Advance(now time.Time) []Callback {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !now.After(h.now) {
		return nil
	}
	elapsed := now.Sub(h.now)
	h.accrueEnergy(elapsed)
	h.now = now
	h.burnInstructions(elapsed)

	return h.popDueCallbacksLocked(now)
}

func (h *SimHost) burnInstructions(elapsed time.Duration) {
	tasksPerMachine := make(map[domain.MachineID][]*taskRec)
	for _, tr := range h.tasks {
		if tr.completed {
			continue
		}
		vm, ok := h.vms[h.taskVMLocked(tr.t.ID)]
		if !ok || vm.v.Status != domain.VMSettled {
			continue
		}
		mr, ok := h.machines[vm.v.MachineID]
		if !ok || !mr.m.Active() {
			continue
		}
		tasksPerMachine[vm.v.MachineID] = append(tasksPerMachine[vm.v.MachineID], tr)
	}

	for mid, trs := range tasksPerMachine {
		mr := h.machines[mid]
		mips := mr.m.MIPSAt(mr.m.PState)
		if mips <= 0 || len(trs) == 0 {
			continue
		}
		// Instructions are shared evenly across co-resident tasks, the
		// simplest fair-share CPU model.
		perTask := mips / float64(len(trs)) * elapsed.Seconds()
		for _, tr := range trs {
			tr.t.RemainingInstructions -= int64(perTask)
			if tr.t.RemainingInstructions <= 0 {
				tr.t.RemainingInstructions = 0
				tr.completed = true
				tr.completedAt = h.now
				h.recordSLAOutcomeLocked(tr)
			}
		}
	}
}

func (h *SimHost) recordSLAOutcomeLocked(tr *taskRec) {
	h.slaTotal[tr.t.SLA]++
	if tr.completedAt.After(tr.t.TargetCompletion) {
		h.slaViolated[tr.t.SLA]++
	}
}

func (h *SimHost) accrueEnergy(elapsed time.Duration) {
	hours := elapsed.Hours()
	for _, mr := range h.machines {
		if !mr.m.Active() {
			continue
		}
		util := mr.m.Utilization()
		if util > 1 {
			util = 1
		}
		mult := h.cfg.PStateMultiplier[mr.m.PState.Index()]
		powerKW := (h.cfg.IdlePowerKW + h.cfg.BusyPowerKW*util) * mult
		h.energyKWh += powerKW * hours
	}
}

func (h *SimHost) taskVMLocked(id domain.TaskID) domain.VMID {
	return h.taskVM[id]
}

// NextCallbackAt reports the earliest pending callback's ready time, so the
// driver's event loop can schedule its next Advance exactly when something
// becomes due instead of only on its own arrival/tick cadence.
func (h *SimHost) NextCallbackAt() (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.pending) == 0 {
		return time.Time{}, false
	}
	earliest := h.pending[0].readyAt
	for _, p := range h.pending[1:] {
		if p.readyAt.Before(earliest) {
			earliest = p.readyAt
		}
	}
	return earliest, true
}

func (h *SimHost) popDueCallbacksLocked(now time.Time) []Callback {
	// Stable so two callbacks scheduled for the same instant fire in the
	// order they were requested, preserving event-order determinism
	// instead of leaving ties to sort.Slice's unspecified ordering.
	sort.SliceStable(h.pending, func(i, j int) bool { return h.pending[i].readyAt.Before(h.pending[j].readyAt) })

	var due []Callback
	var remaining []pendingCallback
	for _, p := range h.pending {
		if !p.readyAt.After(now) {
			due = append(due, p.cb)
		} else {
			remaining = append(remaining, p)
		}
	}
	h.pending = remaining
	return due
}
