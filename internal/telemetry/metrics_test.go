package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/helios-sim/helios/internal/domain"
)

func TestRecordPlacement_IncrementsByOutcome(t *testing.T) {
	m := NewMetrics("helios_test_placement")
	m.RecordPlacement("placed")
	m.RecordPlacement("placed")
	m.RecordPlacement("unplaceable")

	if got := testutil.ToFloat64(m.placementsTotal.WithLabelValues("placed")); got != 2 {
		t.Fatalf("placed count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.placementsTotal.WithLabelValues("unplaceable")); got != 1 {
		t.Fatalf("unplaceable count = %v, want 1", got)
	}
}

func TestSetSLAViolation_StoresRatioNotPercent(t *testing.T) {
	m := NewMetrics("helios_test_sla")
	m.SetSLAViolation(domain.SLA1, 25.0)

	if got := testutil.ToFloat64(m.slaViolation.WithLabelValues("SLA1")); got != 0.25 {
		t.Fatalf("sla1 ratio = %v, want 0.25", got)
	}
}

func TestSetFleetGauges_ReflectsLatestCall(t *testing.T) {
	m := NewMetrics("helios_test_fleet")
	m.SetFleetGauges(3, 7)

	if got := testutil.ToFloat64(m.activeMachines); got != 3 {
		t.Fatalf("activeMachines = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.activeVMs); got != 7 {
		t.Fatalf("activeVMs = %v, want 7", got)
	}
}
