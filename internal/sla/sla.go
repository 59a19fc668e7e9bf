// Package sla implements the SLA Deadline Tracker: per-task deadline
// bookkeeping, periodic ETA re-estimation with performance boosting, and
// the reactive handling of SLA warnings and migration completion.
package sla

import (
	"fmt"
	"time"

	"github.com/helios-sim/helios/internal/domain"
	"github.com/helios-sim/helios/internal/fleet"
	"github.com/helios-sim/helios/internal/host"
	"github.com/helios-sim/helios/internal/schederr"
)

// Config tunes the deadline slack ratio and the optional GPU migration
// response to an SLA warning.
type Config struct {
	DeadlineSlackRatio  float64
	GPUMigrationEnabled bool
}

// Tracker is C5. It owns the only durable-within-a-run state the core
// keeps: the set of ActiveTask records, created at placement and removed
// at completion.
type Tracker struct {
	host host.Host
	inv  *fleet.Inventory
	cfg  Config

	active map[domain.TaskID]*domain.ActiveTask
}

// New builds a Tracker.
func New(h host.Host, inv *fleet.Inventory, cfg Config) *Tracker {
	return &Tracker{
		host:   h,
		inv:    inv,
		cfg:    cfg,
		active: make(map[domain.TaskID]*domain.ActiveTask),
	}
}

// Track registers a newly placed task. The caller (the scheduler, right
// after a successful Place) supplies the task's SLA class, deadline and
// assigned VM.
func (s *Tracker) Track(taskID domain.TaskID, sla domain.SLAClass, deadline time.Time, vm domain.VMID) {
	s.active[taskID] = &domain.ActiveTask{TaskID: taskID, SLA: sla, Deadline: deadline, VMID: vm}
}

// Untrack removes a task's ActiveTask record on completion; C4's next tick
// may consolidate the machine it freed up.
func (s *Tracker) Untrack(taskID domain.TaskID) {
	delete(s.active, taskID)
}

// IsTracked reports whether taskID has a live ActiveTask record.
func (s *Tracker) IsTracked(taskID domain.TaskID) bool {
	_, ok := s.active[taskID]
	return ok
}

// Check runs the periodic deadline pass: for every not-yet-late active
// task, re-estimate time-to-completion and boost the host machine to P0
// if the task is at risk. It returns how many boosts it issued, for the
// driver's metrics.
func (s *Tracker) Check(now time.Time) (int, error) {
	boosts := 0
	for _, at := range s.active {
		if !now.Before(at.Deadline) {
			// Already late; no recovery available from the core.
			s.host.SimOutput(fmt.Sprintf("sla check: %v: task %s past deadline", schederr.ErrLateTask, at.TaskID), 2)
			continue
		}

		task, err := s.host.TaskInfo(at.TaskID)
		if err != nil {
			continue
		}
		vm, err := s.host.VMInfo(at.VMID)
		if err != nil || vm.Status != domain.VMSettled {
			continue
		}
		machine, err := s.host.MachineInfo(vm.MachineID)
		if err != nil {
			continue
		}

		eta := domain.ETA(task.RemainingInstructions, machine.MIPSAt(machine.PState))
		remaining := at.Deadline.Sub(now)
		if eta > time.Duration(float64(remaining)*s.cfg.DeadlineSlackRatio) {
			if err := s.boost(machine.ID, at); err != nil {
				return boosts, err
			}
			boosts++
		}
	}
	return boosts, nil
}

// Warn handles a reactive SLA-warning callback: boost immediately, and
// when the task is GPU-capable but stuck on a non-GPU machine, optionally
// request migration to a compatible GPU-bearing machine.
func (s *Tracker) Warn(taskID domain.TaskID) error {
	at, ok := s.active[taskID]
	if !ok {
		return nil
	}

	vm, err := s.host.VMInfo(at.VMID)
	if err != nil {
		return err
	}
	machine, err := s.host.MachineInfo(vm.MachineID)
	if err != nil {
		return err
	}
	if err := s.boost(machine.ID, at); err != nil {
		return err
	}

	if !s.cfg.GPUMigrationEnabled {
		return nil
	}
	task, err := s.host.TaskInfo(taskID)
	if err != nil {
		return err
	}
	if !task.GPUCapable || machine.HasGPU {
		return nil
	}

	dst, ok := s.findGPUDestination(task, machine.ID)
	if !ok {
		return nil
	}
	if err := s.host.MigrateVM(at.VMID, dst); err != nil {
		return err
	}
	s.inv.MarkVMMigrating(at.VMID, dst)
	at.Migrating = true
	return nil
}

// findGPUDestination scans active machines for one that has a GPU, matches
// the task's CPU and guest requirements, and has memory headroom.
func (s *Tracker) findGPUDestination(task domain.Task, exclude domain.MachineID) (domain.MachineID, bool) {
	for _, id := range s.inv.MachinesByCPU(task.RequiredCPU) {
		if id == exclude || s.inv.IsWarming(id) {
			continue
		}
		m, err := s.host.MachineInfo(id)
		if err != nil {
			continue
		}
		if !m.Active() || !m.HasGPU {
			continue
		}
		if !m.FitsMemory(task.RequiredMemoryMB, 0) {
			continue
		}
		return id, true
	}
	return 0, false
}

func (s *Tracker) boost(machine domain.MachineID, at *domain.ActiveTask) error {
	if err := s.host.SetCorePerformance(machine, 0, domain.P0); err != nil {
		return err
	}
	at.Boosted = true
	return nil
}

// MigrationSettled handles MigrationDone(vm): every ActiveTask record
// riding that VM is no longer mid-migration, and the VM becomes
// re-selectable by the Placement Engine.
func (s *Tracker) MigrationSettled(vm domain.VMID) {
	s.inv.MarkVMSettled(vm)
	for _, at := range s.active {
		if at.VMID == vm {
			at.Migrating = false
		}
	}
}
