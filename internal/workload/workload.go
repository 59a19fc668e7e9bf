// Package workload loads a task-arrival trace for the driver to replay
// against a host.Host. It sits entirely outside the core: internal/scheduler never
// imports this package, it only ever sees the domain.TaskID a loaded
// arrival produces once the driver calls simhost.SubmitTask and then
// Core.HandleNewTask.
package workload

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/helios-sim/helios/internal/domain"
	"github.com/helios-sim/helios/internal/host/simhost"
)

// Arrival is one line of a task-arrival trace: a TaskSpec plus the
// simulated offset, in seconds from the run's start, at which it arrives.
type Arrival struct {
	OffsetSeconds float64
	Spec          simhost.TaskSpec
}

// traceRecord is the on-disk shape of a single trace entry. Arrival and
// deadline are both offsets in seconds from the run's start rather than
// absolute timestamps, since a trace file is authored once and replayed against whatever wall
// clock the run happens to start at.
type traceRecord struct {
	OffsetSeconds         float64 `json:"offset_seconds"`
	RequiredCPU           string  `json:"required_cpu"`
	RequiredGuest         string  `json:"required_guest"`
	RequiredMemoryMB      int64   `json:"required_memory_mb"`
	DeadlineOffsetSeconds float64 `json:"deadline_offset_seconds"`
	RemainingInstructions int64   `json:"remaining_instructions"`
	SLA                   string  `json:"sla"`
	Priority              int     `json:"priority"`
	GPUCapable            bool    `json:"gpu_capable"`
}

// Trace is a parsed, time-ordered task-arrival schedule, resolved against
// a concrete run start time.
type Trace struct {
	Arrivals []Arrival
}

// ParseTrace decodes a JSON trace document (an array of traceRecords),
// resolves each record's relative offsets against runStart, and sorts the
// result by arrival offset — a hand-authored or generated trace file is
// not guaranteed to already be in order.
func ParseTrace(r io.Reader, runStart time.Time) (Trace, error) {
	var records []traceRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return Trace{}, fmt.Errorf("decode trace: %w", err)
	}

	arrivals := make([]Arrival, 0, len(records))
	for i, rec := range records {
		if rec.DeadlineOffsetSeconds < rec.OffsetSeconds {
			return Trace{}, fmt.Errorf("trace record %d: deadline offset %.2f precedes arrival offset %.2f", i, rec.DeadlineOffsetSeconds, rec.OffsetSeconds)
		}
		cpu := domain.CPUArch(rec.RequiredCPU)
		if !cpu.Valid() {
			return Trace{}, fmt.Errorf("trace record %d: unknown required_cpu %q", i, rec.RequiredCPU)
		}
		guest := domain.GuestType(rec.RequiredGuest)
		if !guest.Valid() {
			return Trace{}, fmt.Errorf("trace record %d: unknown required_guest %q", i, rec.RequiredGuest)
		}
		slaClass := domain.SLAClass(rec.SLA)
		if !slaClass.Valid() {
			return Trace{}, fmt.Errorf("trace record %d: unknown sla %q", i, rec.SLA)
		}

		spec := simhost.TaskSpec{
			RequiredCPU:           cpu,
			RequiredGuest:         guest,
			RequiredMemoryMB:      rec.RequiredMemoryMB,
			TargetCompletion:      runStart.Add(time.Duration(rec.DeadlineOffsetSeconds * float64(time.Second))),
			RemainingInstructions: rec.RemainingInstructions,
			SLA:                   slaClass,
			Priority:              rec.Priority,
			GPUCapable:            rec.GPUCapable,
		}
		arrivals = append(arrivals, Arrival{OffsetSeconds: rec.OffsetSeconds, Spec: spec})
	}

	sort.SliceStable(arrivals, func(i, j int) bool {
		return arrivals[i].OffsetSeconds < arrivals[j].OffsetSeconds
	})

	return Trace{Arrivals: arrivals}, nil
}

// LoadLocal reads and parses a trace file from disk.
func LoadLocal(path string, runStart time.Time) (Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return Trace{}, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()
	return ParseTrace(f, runStart)
}
