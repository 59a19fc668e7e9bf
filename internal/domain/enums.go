package domain

// CPUArch is the CPU architecture a machine exposes or a task/VM requires.
type CPUArch string

const (
	CPUX86   CPUArch = "X86"
	CPUPower CPUArch = "POWER"
	CPUArm   CPUArch = "ARM"
)

// GuestType is the operating system a VM runs.
type GuestType string

const (
	GuestLinux GuestType = "LINUX"
	GuestAIX   GuestType = "AIX"
	GuestWin   GuestType = "WIN"
)

// SLAClass is the service-level tier of a task. SLA0 is strictest; SLA3
// carries no violation penalty (GLOSSARY).
type SLAClass string

const (
	SLA0 SLAClass = "SLA0"
	SLA1 SLAClass = "SLA1"
	SLA2 SLAClass = "SLA2"
	SLA3 SLAClass = "SLA3"
)

// SState is a machine sleep state. S0 is fully on; S5 is off.
type SState string

const (
	S0 SState = "S0"
	S1 SState = "S1"
	S2 SState = "S2"
	S3 SState = "S3"
	S4 SState = "S4"
	S5 SState = "S5"
)

// PState is a processor performance state. P0 is fastest/highest power;
// P3 is slowest/lowest power.
type PState string

const (
	P0 PState = "P0"
	P1 PState = "P1"
	P2 PState = "P2"
	P3 PState = "P3"
)

// pStateIndex supports the MIPS[P0..P3] lookup and the "slower than" / "at
// least as fast as" comparisons the placement and DVFS logic need without
// ever comparing the string values directly.
var pStateIndex = map[PState]int{P0: 0, P1: 1, P2: 2, P3: 3}

// Index returns the P-state's position in the P0..P3 ladder (0 = fastest).
func (p PState) Index() int {
	idx, ok := pStateIndex[p]
	if !ok {
		return len(pStateIndex) - 1 // unknown treated as slowest, never fastest
	}
	return idx
}

// SlowerThan reports whether p is a slower (higher-numbered) P-state than other.
func (p PState) SlowerThan(other PState) bool { return p.Index() > other.Index() }

// DefaultGuestType implements the Provisioner's init-time architecture to
// default-guest-type mapping (X86→LINUX, POWER→AIX, ARM→WIN). It is a
// total function over the known architectures; an unrecognized CPUArch
// returns ErrUnknownCPU's condition via the ok return rather than panicking,
// since a single bad entry in a fleet manifest must not bring the whole
// Provisioner init down.
func DefaultGuestType(arch CPUArch) (GuestType, bool) {
	switch arch {
	case CPUX86:
		return GuestLinux, true
	case CPUPower:
		return GuestAIX, true
	case CPUArm:
		return GuestWin, true
	default:
		return "", false
	}
}

// DVFSTarget implements the utilization-to-P-state table as a total
// function. Utilization is active_tasks / core_count and may exceed 1.0
// transiently (e.g. while the host is still draining a completed task);
// callers need not clamp it first.
func DVFSTarget(utilization, highThreshold, midThreshold, lowThreshold float64) PState {
	switch {
	case utilization > highThreshold:
		return P0
	case utilization > midThreshold:
		return P1
	case utilization > lowThreshold:
		return P2
	default:
		return P3
	}
}

func (a CPUArch) Valid() bool {
	switch a {
	case CPUX86, CPUPower, CPUArm:
		return true
	}
	return false
}

func (g GuestType) Valid() bool {
	switch g {
	case GuestLinux, GuestAIX, GuestWin:
		return true
	}
	return false
}

func (s SLAClass) Valid() bool {
	switch s {
	case SLA0, SLA1, SLA2, SLA3:
		return true
	}
	return false
}

func (s SState) String() string { return string(s) }
func (p PState) String() string { return string(p) }
