// Package report defines the final simulation summary and its optional
// Postgres-backed persistence. Neither the core nor any of its five
// components import this package: a Report is assembled by the driver
// after SimulationComplete returns, from exactly the numbers the core
// already printed through SimOutput. Persistence is new, ambient,
// post-hoc storage for later analysis — the core itself remains
// stateless across runs.
package report

import (
	"time"

	"github.com/helios-sim/helios/internal/domain"
)

// SLAOutcome captures the violation rate observed for a single SLA class.
type SLAOutcome struct {
	Class           domain.SLAClass `json:"class"`
	PercentViolated float64         `json:"percent_violated"`
}

// Report is the complete summary the driver assembles once
// SimulationComplete returns: per-SLA violation rates, total cluster
// energy draw, and the simulated wall time the run covered.
type Report struct {
	RunID            string        `json:"run_id"`
	StartedAt        time.Time     `json:"started_at"`
	CompletedAt      time.Time     `json:"completed_at"`
	WallTime         time.Duration `json:"wall_time"`
	ClusterEnergyKWh float64       `json:"cluster_energy_kwh"`
	SLAOutcomes      []SLAOutcome  `json:"sla_outcomes"`
}

// ViolationFor returns the recorded violation percentage for class, or
// zero if the report carries no outcome for it. SLA3 carries no penalty,
// but the driver still records its measured violation rate like the
// other classes.
func (r Report) ViolationFor(class domain.SLAClass) float64 {
	for _, o := range r.SLAOutcomes {
		if o.Class == class {
			return o.PercentViolated
		}
	}
	return 0
}

// BuildReport assembles a Report from the host values (SLA reports,
// cluster energy, start and end time) that the core's SimulationComplete
// handler also prints.
func BuildReport(runID string, startedAt, completedAt time.Time, clusterEnergyKWh float64, outcomes []SLAOutcome) Report {
	return Report{
		RunID:            runID,
		StartedAt:        startedAt,
		CompletedAt:      completedAt,
		WallTime:         completedAt.Sub(startedAt),
		ClusterEnergyKWh: clusterEnergyKWh,
		SLAOutcomes:      outcomes,
	}
}
