package domain

import "testing"

func TestPStateIndexOrdering(t *testing.T) {
	if P0.Index() != 0 || P1.Index() != 1 || P2.Index() != 2 || P3.Index() != 3 {
		t.Fatalf("P-state ladder out of order: P0=%d P1=%d P2=%d P3=%d", P0.Index(), P1.Index(), P2.Index(), P3.Index())
	}
	if PState("bogus").Index() != 3 {
		t.Fatalf("unknown P-state must sort as slowest, got index %d", PState("bogus").Index())
	}
}

func TestPStateSlowerThan(t *testing.T) {
	if !P3.SlowerThan(P0) {
		t.Fatal("P3 must be slower than P0")
	}
	if P0.SlowerThan(P3) {
		t.Fatal("P0 must not be slower than P3")
	}
	if P1.SlowerThan(P1) {
		t.Fatal("a P-state is never slower than itself")
	}
}

func TestDefaultGuestType(t *testing.T) {
	cases := []struct {
		arch CPUArch
		want GuestType
		ok   bool
	}{
		{CPUX86, GuestLinux, true},
		{CPUPower, GuestAIX, true},
		{CPUArm, GuestWin, true},
		{CPUArch("RISCV"), "", false},
	}
	for _, c := range cases {
		got, ok := DefaultGuestType(c.arch)
		if got != c.want || ok != c.ok {
			t.Errorf("DefaultGuestType(%s) = (%s, %v), want (%s, %v)", c.arch, got, ok, c.want, c.ok)
		}
	}
}

func TestDVFSTarget(t *testing.T) {
	const high, mid, low = 0.8, 0.5, 0.2
	cases := []struct {
		util float64
		want PState
	}{
		{0.95, P0},
		{1.2, P0}, // transient over-unity utilization still maps to the fastest state
		{0.7, P1},
		{0.3, P2},
		{0.1, P3},
		{0, P3},
	}
	for _, c := range cases {
		if got := DVFSTarget(c.util, high, mid, low); got != c.want {
			t.Errorf("DVFSTarget(%.2f) = %s, want %s", c.util, got, c.want)
		}
	}
}

func TestValidators(t *testing.T) {
	if !CPUX86.Valid() || CPUArch("RISCV").Valid() {
		t.Fatal("CPUArch.Valid() misclassified a value")
	}
	if !GuestLinux.Valid() || GuestType("BSD").Valid() {
		t.Fatal("GuestType.Valid() misclassified a value")
	}
	if !SLA0.Valid() || SLAClass("SLA9").Valid() {
		t.Fatal("SLAClass.Valid() misclassified a value")
	}
}
