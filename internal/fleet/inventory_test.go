package fleet

import (
	"testing"
	"time"

	"github.com/helios-sim/helios/internal/domain"
	"github.com/helios-sim/helios/internal/host/simhost"
)

func newTestHost() *simhost.SimHost {
	return simhost.New(simhost.DefaultConfig(), time.Unix(0, 0).UTC())
}

func TestNewGroupsMachinesByArch(t *testing.T) {
	h := newTestHost()
	x1 := h.Seed(simhost.MachineSpec{CPU: domain.CPUX86, NumCPUs: 4, MemoryCapacityMB: 8192})
	x2 := h.Seed(simhost.MachineSpec{CPU: domain.CPUX86, NumCPUs: 4, MemoryCapacityMB: 8192})
	p1 := h.Seed(simhost.MachineSpec{CPU: domain.CPUPower, NumCPUs: 8, MemoryCapacityMB: 16384})

	inv := New(h)

	x86 := inv.MachinesByCPU(domain.CPUX86)
	if len(x86) != 2 || x86[0] != x1 || x86[1] != x2 {
		t.Fatalf("MachinesByCPU(X86) = %v, want [%d %d] in ascending order", x86, x1, x2)
	}
	power := inv.MachinesByCPU(domain.CPUPower)
	if len(power) != 1 || power[0] != p1 {
		t.Fatalf("MachinesByCPU(POWER) = %v, want [%d]", power, p1)
	}
	if len(inv.MachinesByCPU(domain.CPUArm)) != 0 {
		t.Fatal("MachinesByCPU(ARM) should be empty, no ARM machines seeded")
	}
}

func TestRegisterMachineIsIdempotentAndSorted(t *testing.T) {
	h := newTestHost()
	inv := New(h)

	inv.RegisterMachine(domain.MachineID(5), domain.CPUX86)
	inv.RegisterMachine(domain.MachineID(2), domain.CPUX86)
	inv.RegisterMachine(domain.MachineID(5), domain.CPUX86) // duplicate, must not append again

	got := inv.MachinesByCPU(domain.CPUX86)
	want := []domain.MachineID{2, 5}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("MachinesByCPU = %v, want %v", got, want)
	}
}

func TestVMLifecycleTracking(t *testing.T) {
	h := newTestHost()
	inv := New(h)

	vm := domain.VMID(1)
	inv.RegisterVM(vm)
	if vms := inv.VMs(); len(vms) != 1 || vms[0] != vm {
		t.Fatalf("VMs() = %v, want [%d]", vms, vm)
	}

	if inv.IsMigrating(vm) {
		t.Fatal("freshly-registered VM must not be migrating")
	}
	inv.MarkVMMigrating(vm, domain.MachineID(3))
	if !inv.IsMigrating(vm) {
		t.Fatal("MarkVMMigrating must flag the VM as migrating")
	}
	inv.MarkVMSettled(vm)
	if inv.IsMigrating(vm) {
		t.Fatal("MarkVMSettled must clear migrating status")
	}
}

func TestMachineWarmingTracking(t *testing.T) {
	h := newTestHost()
	id := h.Seed(simhost.MachineSpec{CPU: domain.CPUX86, NumCPUs: 4, MemoryCapacityMB: 8192})
	inv := New(h)

	if inv.IsWarming(id) {
		t.Fatal("freshly-seeded machine must not be warming")
	}
	inv.MarkMachineWarming(id)
	if !inv.IsWarming(id) {
		t.Fatal("MarkMachineWarming must flag the machine as warming")
	}
	inv.MarkMachineReady(id)
	if inv.IsWarming(id) {
		t.Fatal("MarkMachineReady must clear warming status")
	}
}
