// Package scheduler wires Fleet Inventory, Provisioner, Placement Engine,
// DVFS & Consolidation Controller and SLA Deadline Tracker into the single
// Core instance the host drives through its handler calls.
package scheduler

import (
	"fmt"
	"time"

	"github.com/helios-sim/helios/internal/domain"
	"github.com/helios-sim/helios/internal/dvfs"
	"github.com/helios-sim/helios/internal/fleet"
	"github.com/helios-sim/helios/internal/host"
	"github.com/helios-sim/helios/internal/placement"
	"github.com/helios-sim/helios/internal/provisioner"
	"github.com/helios-sim/helios/internal/schederr"
	"github.com/helios-sim/helios/internal/sla"
)

// Config aggregates every tunable the five components need. The driver
// builds one of these from internal/config.Config before calling New.
type Config struct {
	ActiveMachinesBudget int
	VMMemoryOverheadMB   int64
	Placement            placement.Config
	DVFS                 dvfs.Config
	SLA                  sla.Config
}

// Core is the single process-wide scheduler instance: constructed once by
// New, initialized by InitScheduler, borrowed mutably by every handler
// call, and never reconstructed mid-run.
type Core struct {
	host host.Host
	inv  *fleet.Inventory
	prov *provisioner.Provisioner
	place *placement.Engine
	dvfsCtl *dvfs.Controller
	sla   *sla.Tracker

	startedAt time.Time
}

// New builds a Core bound to h. It only reads the host's machine list, to
// build the Fleet Inventory, and issues no host operations; call
// InitScheduler to run the startup provisioning pass.
func New(h host.Host, cfg Config) *Core {
	inv := fleet.New(h)
	prov := provisioner.New(h, inv, cfg.ActiveMachinesBudget)
	place := placement.New(h, inv, prov, cfg.Placement)
	dvfsCtl := dvfs.New(h, inv, cfg.DVFS)
	slaTracker := sla.New(h, inv, cfg.SLA)

	return &Core{
		host:    h,
		inv:     inv,
		prov:    prov,
		place:   place,
		dvfsCtl: dvfsCtl,
		sla:     slaTracker,
	}
}

// InitScheduler runs the Provisioner's startup power-on pass. Call once
// before the first event.
func (c *Core) InitScheduler() error {
	c.startedAt = c.host.Now()
	return c.prov.InitScheduler()
}

// HandleNewTask places a newly arrived task. On a successful placement
// (immediate or deferred to a machine still warming) an ActiveTask record
// is registered with the SLA Deadline Tracker; on Unplaceable, nothing
// further happens — the placement engine has already logged the
// diagnostic and the host may retry at a later event. It returns the
// placement outcome so the driver can record it (e.g. for metrics)
// without recomputing or duplicating the placement decision.
func (c *Core) HandleNewTask(taskID domain.TaskID) (placement.Outcome, error) {
	task, err := c.host.TaskInfo(taskID)
	if err != nil {
		return "", err
	}

	res, err := c.place.Place(task)
	if err != nil {
		return "", err
	}

	switch res.Outcome {
	case placement.OutcomePlaced:
		c.sla.Track(taskID, task.SLA, task.TargetCompletion, res.VM)
	case placement.OutcomeDeferred:
		// The VM doesn't exist yet; StateChangeComplete registers the
		// ActiveTask record once the woken machine reports ready.
	case placement.OutcomeUnplaceable:
	}
	return res.Outcome, nil
}

// HandleTaskCompletion removes the task's ActiveTask record. C4's next
// tick may consolidate the machine this freed up.
func (c *Core) HandleTaskCompletion(taskID domain.TaskID) error {
	c.sla.Untrack(taskID)
	return nil
}

// MemoryWarning logs the overcommit; the core does not remediate (see
// DESIGN.md's Open Question ledger).
func (c *Core) MemoryWarning(machine domain.MachineID) error {
	c.host.SimOutput(fmt.Sprintf("%v: machine %s", schederr.ErrMemoryOvercommit, machine), 0)
	return nil
}

// MigrationDone marks the VM settled and clears the migrating flag on
// every ActiveTask record riding it.
func (c *Core) MigrationDone(vm domain.VMID) error {
	c.sla.MigrationSettled(vm)
	return nil
}

// SchedulerCheck runs the DVFS tick followed by the SLA deadline pass, in
// that order: a machine that just got boosted this tick should be
// reflected in the P-state the SLA tracker's ETA math reads. It returns
// how many P0 boosts the SLA pass issued, for the driver's metrics.
func (c *Core) SchedulerCheck(now time.Time) (int, error) {
	if err := c.dvfsCtl.Tick(); err != nil {
		return 0, err
	}
	return c.sla.Check(now)
}

// FleetSnapshot reports how many machines are currently powered on and how
// many VMs are currently settled, for the driver's fleet gauges.
func (c *Core) FleetSnapshot() (activeMachines, activeVMs int) {
	return c.inv.ActiveMachineCount(), c.inv.ActiveVMCount()
}

// SLAWarning forwards to the SLA tracker's reactive pass.
func (c *Core) SLAWarning(taskID domain.TaskID) error {
	return c.sla.Warn(taskID)
}

// StateChangeComplete is the counterpart to every Machine_SetState the
// core issues, whether requested by the Provisioner (power-on) or the
// DVFS controller (consolidation). Only a Provisioner-initiated wake
// yields a VM; a consolidation completion is a no-op beyond what
// CompleteWake already did (clearing warming status).
func (c *Core) StateChangeComplete(machine domain.MachineID) error {
	vm, taskID, hasTask, err := c.prov.CompleteWake(machine)
	if err != nil {
		return err
	}
	if vm == 0 {
		return nil
	}
	if !hasTask {
		return nil
	}

	task, err := c.host.TaskInfo(taskID)
	if err != nil {
		return err
	}
	c.sla.Track(taskID, task.SLA, task.TargetCompletion, vm)
	return nil
}

// SimulationComplete prints per-SLA violation percentages, total cluster
// energy and wall time, then shuts down every VM the core ever created,
// exactly once each.
func (c *Core) SimulationComplete(now time.Time) error {
	for _, class := range []domain.SLAClass{domain.SLA0, domain.SLA1, domain.SLA2, domain.SLA3} {
		pct, err := c.host.SLAReport(class)
		if err != nil {
			continue
		}
		c.host.SimOutput(fmt.Sprintf("%s violations: %.2f%%", class, pct), 1)
	}

	c.host.SimOutput(fmt.Sprintf("cluster energy: %.4f kWh", c.host.ClusterEnergyKWh()), 1)
	c.host.SimOutput(fmt.Sprintf("wall time: %.2f s", now.Sub(c.startedAt).Seconds()), 1)

	for _, vm := range c.inv.VMs() {
		if err := c.host.ShutdownVM(vm); err != nil {
			c.host.SimOutput(fmt.Sprintf("simulation complete: shutdown vm %s: %v", vm, err), 1)
		}
	}
	return nil
}
