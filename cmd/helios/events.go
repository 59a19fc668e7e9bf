package main

import (
	"container/heap"
	"time"

	"github.com/helios-sim/helios/internal/workload"
)

// eventKind distinguishes the two externally-driven event types the loop
// schedules ahead of time. Async completions (StateChangeComplete,
// MigrationDone) are not scheduled here: they ride SimHost's own pending
// queue and surface whenever the loop advances the clock past them.
type eventKind int

const (
	eventArrival eventKind = iota
	eventTick
)

type event struct {
	at      time.Time
	kind    eventKind
	arrival workload.Arrival
}

// eventHeap is a min-heap of events ordered by time, the discrete-event
// loop's schedule of everything known in advance (trace arrivals and
// periodic scheduler ticks).
type eventHeap []event

func (h eventHeap) Len() int           { return len(h) }
func (h eventHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h eventHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)        { *h = append(*h, x.(event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newEventQueue(trace workload.Trace, runStart time.Time, tickInterval time.Duration) *eventHeap {
	q := &eventHeap{}
	heap.Init(q)
	for _, a := range trace.Arrivals {
		heap.Push(q, event{
			at:      runStart.Add(time.Duration(a.OffsetSeconds * float64(time.Second))),
			kind:    eventArrival,
			arrival: a,
		})
	}
	if tickInterval > 0 {
		heap.Push(q, event{at: runStart.Add(tickInterval), kind: eventTick})
	}
	return q
}
