package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helios-sim/helios/internal/domain"
)

// Metrics wraps the Prometheus collectors the driver exports while a
// simulation runs: placement outcomes, cluster power draw, and the
// per-SLA violation rate the core prints at SimulationComplete.
type Metrics struct {
	registry *prometheus.Registry

	placementsTotal *prometheus.CounterVec
	boostsTotal     prometheus.Counter
	migrationsTotal prometheus.Counter

	activeMachines prometheus.Gauge
	activeVMs      prometheus.Gauge
	clusterEnergy  prometheus.Gauge
	slaViolation   *prometheus.GaugeVec
}

// NewMetrics builds and registers the collector set under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		placementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "placements_total",
			Help:      "Placement attempts by outcome (placed, deferred, unplaceable)",
		}, []string{"outcome"}),

		boostsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sla_boosts_total",
			Help:      "Total P0 boosts issued by the SLA deadline tracker",
		}),

		migrationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sla_migrations_total",
			Help:      "Total GPU-rescue migrations completed (MigrationDone received)",
		}),

		activeMachines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_machines",
			Help:      "Machines currently in S0",
		}),

		activeVMs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_vms",
			Help:      "VMs currently settled on an active machine",
		}),

		clusterEnergy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_energy_kwh",
			Help:      "Cumulative cluster energy consumption in kWh",
		}),

		slaViolation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sla_violation_ratio",
			Help:      "Fraction of completed tasks per SLA class that missed their deadline",
		}, []string{"sla_class"}),
	}

	registry.MustRegister(
		m.placementsTotal,
		m.boostsTotal,
		m.migrationsTotal,
		m.activeMachines,
		m.activeVMs,
		m.clusterEnergy,
		m.slaViolation,
	)

	return m
}

// RecordPlacement increments the placementsTotal counter for outcome.
func (m *Metrics) RecordPlacement(outcome string) {
	m.placementsTotal.WithLabelValues(outcome).Inc()
}

// RecordBoost increments the SLA boost counter.
func (m *Metrics) RecordBoost() { m.boostsTotal.Inc() }

// RecordMigration increments the SLA migration counter.
func (m *Metrics) RecordMigration() { m.migrationsTotal.Inc() }

// SetFleetGauges sets the active machine/VM gauges from a fleet snapshot.
func (m *Metrics) SetFleetGauges(activeMachines, activeVMs int) {
	m.activeMachines.Set(float64(activeMachines))
	m.activeVMs.Set(float64(activeVMs))
}

// SetClusterEnergy sets the cumulative-energy gauge.
func (m *Metrics) SetClusterEnergy(kwh float64) { m.clusterEnergy.Set(kwh) }

// SetSLAViolation sets the violation-ratio gauge for a single SLA class.
func (m *Metrics) SetSLAViolation(class domain.SLAClass, pctViolated float64) {
	m.slaViolation.WithLabelValues(string(class)).Set(pctViolated / 100)
}

// Handler returns the HTTP handler serving the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests or custom collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
