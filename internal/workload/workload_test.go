package workload

import (
	"strings"
	"testing"
	"time"

	"github.com/helios-sim/helios/internal/domain"
)

const sampleTrace = `[
	{"offset_seconds": 5, "required_cpu": "X86", "required_guest": "LINUX", "required_memory_mb": 2048, "deadline_offset_seconds": 65, "remaining_instructions": 400000, "sla": "SLA1", "priority": 1, "gpu_capable": false},
	{"offset_seconds": 0, "required_cpu": "X86", "required_guest": "LINUX", "required_memory_mb": 1024, "deadline_offset_seconds": 30, "remaining_instructions": 100000, "sla": "SLA0", "priority": 2, "gpu_capable": true}
]`

func TestParseTrace_SortsByOffset(t *testing.T) {
	runStart := time.Unix(1000, 0)
	tr, err := ParseTrace(strings.NewReader(sampleTrace), runStart)
	if err != nil {
		t.Fatalf("ParseTrace: %v", err)
	}
	if len(tr.Arrivals) != 2 {
		t.Fatalf("len(Arrivals) = %d, want 2", len(tr.Arrivals))
	}
	if tr.Arrivals[0].OffsetSeconds != 0 || tr.Arrivals[1].OffsetSeconds != 5 {
		t.Fatalf("arrivals not sorted: %+v", tr.Arrivals)
	}
	if tr.Arrivals[0].Spec.SLA != domain.SLA0 {
		t.Fatalf("first arrival SLA = %v, want SLA0", tr.Arrivals[0].Spec.SLA)
	}
	if !tr.Arrivals[0].Spec.GPUCapable {
		t.Fatalf("first arrival GPUCapable = false, want true")
	}
}

func TestParseTrace_ResolvesDeadlineAgainstRunStart(t *testing.T) {
	runStart := time.Unix(1000, 0)
	tr, err := ParseTrace(strings.NewReader(sampleTrace), runStart)
	if err != nil {
		t.Fatalf("ParseTrace: %v", err)
	}
	want := runStart.Add(30 * time.Second)
	if got := tr.Arrivals[0].Spec.TargetCompletion; !got.Equal(want) {
		t.Fatalf("TargetCompletion = %v, want %v", got, want)
	}
}

func TestParseTrace_RejectsDeadlineBeforeArrival(t *testing.T) {
	bad := `[{"offset_seconds": 10, "deadline_offset_seconds": 5, "required_cpu": "X86", "required_guest": "LINUX", "sla": "SLA0"}]`
	if _, err := ParseTrace(strings.NewReader(bad), time.Unix(0, 0)); err == nil {
		t.Fatal("expected error for deadline preceding arrival, got nil")
	}
}

func TestParseTrace_RejectsUnknownCPUArch(t *testing.T) {
	bad := `[{"offset_seconds": 0, "deadline_offset_seconds": 5, "required_cpu": "bogus", "required_guest": "LINUX", "sla": "SLA0"}]`
	if _, err := ParseTrace(strings.NewReader(bad), time.Unix(0, 0)); err == nil {
		t.Fatal("expected error for unknown required_cpu, got nil")
	}
}

func TestParseTrace_RejectsUnknownGuestType(t *testing.T) {
	bad := `[{"offset_seconds": 0, "deadline_offset_seconds": 5, "required_cpu": "X86", "required_guest": "bogus", "sla": "SLA0"}]`
	if _, err := ParseTrace(strings.NewReader(bad), time.Unix(0, 0)); err == nil {
		t.Fatal("expected error for unknown required_guest, got nil")
	}
}

func TestParseTrace_RejectsUnknownSLAClass(t *testing.T) {
	bad := `[{"offset_seconds": 0, "deadline_offset_seconds": 5, "required_cpu": "X86", "required_guest": "LINUX", "sla": "bogus"}]`
	if _, err := ParseTrace(strings.NewReader(bad), time.Unix(0, 0)); err == nil {
		t.Fatal("expected error for unknown sla class, got nil")
	}
}
