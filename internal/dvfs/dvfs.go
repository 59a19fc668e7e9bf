// Package dvfs implements the DVFS & Consolidation Controller: the
// periodic tick that sets each active machine's P-state from observed
// utilization and, optionally, sleeps machines that have gone fully idle.
package dvfs

import (
	"github.com/helios-sim/helios/internal/domain"
	"github.com/helios-sim/helios/internal/fleet"
	"github.com/helios-sim/helios/internal/host"
)

// Config tunes the utilization thresholds and the consolidation toggle.
type Config struct {
	HighThreshold        float64
	MidThreshold         float64
	LowThreshold         float64
	ConsolidationEnabled bool
}

// Controller is C4. It owns no state of its own beyond its configuration;
// machine warming status lives in the Fleet Inventory, shared with the
// Provisioner so both agree on which machines are mid-transition.
type Controller struct {
	host host.Host
	inv  *fleet.Inventory
	cfg  Config
}

// New builds a Controller.
func New(h host.Host, inv *fleet.Inventory, cfg Config) *Controller {
	return &Controller{host: h, inv: inv, cfg: cfg}
}

// Tick runs one pass over every active, non-warming machine: it either
// consolidates an idle machine to S5 or sets its P-state from the
// utilization table. It is called from the scheduler's SchedulerCheck
// handler at the configured tick interval.
func (c *Controller) Tick() error {
	for _, arch := range c.inv.Architectures() {
		for _, id := range c.inv.MachinesByCPU(arch) {
			if c.inv.IsWarming(id) {
				continue
			}
			m, err := c.host.MachineInfo(id)
			if err != nil {
				continue
			}
			if !m.Active() {
				continue
			}

			if c.cfg.ConsolidationEnabled && m.ActiveTasks == 0 && m.ActiveVMs == 0 {
				if err := c.host.SetMachineState(id, domain.S5); err != nil {
					return err
				}
				c.inv.MarkMachineWarming(id)
				continue
			}

			target := domain.DVFSTarget(m.Utilization(), c.cfg.HighThreshold, c.cfg.MidThreshold, c.cfg.LowThreshold)
			// Set unconditionally every tick, even when the target matches
			// the current P-state; whether a redundant set has a cost is
			// the host's concern, not the controller's.
			if err := c.host.SetCorePerformance(id, 0, target); err != nil {
				return err
			}
		}
	}
	return nil
}
