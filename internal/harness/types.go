package harness

import (
	"encoding/hex"
	"sync"
)

// InspectWindow is the number of leading bytes the check routine looks at.
const InspectWindow = 3

// Checker is the routine run on every trial's buffer.
// *target.Checker implements it.
type Checker interface {
	Check(buf []byte, n int)
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(buf []byte, n int)

// Check calls f(buf, n).
func (f CheckerFunc) Check(buf []byte, n int) {
	f(buf, n)
}

// Stats summarizes a run of the trial loop.
type Stats struct {
	Trials     int `json:"trials"`
	BytesRead  int `json:"bytes_read"`
	EmptyReads int `json:"empty_reads"`
	ReadErrors int `json:"read_errors"`
}

// TrialEvent describes one completed trial.
type TrialEvent struct {
	// Trial is the 1-based trial number.
	Trial int `json:"trial"`

	// Length is the clamped number of valid bytes passed to the checker.
	Length int `json:"length"`

	// Prefix is the hex encoding of the inspected bytes (at most InspectWindow).
	Prefix string `json:"prefix,omitempty"`

	// Triggered reports whether the bytes matched the trigger sequence.
	Triggered bool `json:"triggered"`
}

// newTrialEvent builds the event for buf[:n].
func newTrialEvent(trial int, buf []byte, n int, triggered bool) TrialEvent {
	window := n
	if window > InspectWindow {
		window = InspectWindow
	}
	return TrialEvent{
		Trial:     trial,
		Length:    n,
		Prefix:    hex.EncodeToString(buf[:window]),
		Triggered: triggered,
	}
}

// Observer is notified after every trial.
// Trials that end in a process abort are never observed.
type Observer interface {
	ObserveTrial(ev TrialEvent)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev TrialEvent)

// ObserveTrial calls f(ev).
func (f ObserverFunc) ObserveTrial(ev TrialEvent) {
	f(ev)
}

// Trace collects trial events in order.
//
// Thread-safety: safe for concurrent use.
type Trace struct {
	mu     sync.Mutex
	events []TrialEvent
}

// NewTrace creates an empty trace.
func NewTrace() *Trace {
	return &Trace{events: []TrialEvent{}}
}

// ObserveTrial appends ev.
func (t *Trace) ObserveTrial(ev TrialEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, ev)
}

// Events returns a copy of the collected events.
func (t *Trace) Events() []TrialEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TrialEvent, len(t.events))
	copy(out, t.events)
	return out
}

// Triggered returns the events that matched the trigger sequence.
func (t *Trace) Triggered() []TrialEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []TrialEvent
	for _, ev := range t.events {
		if ev.Triggered {
			out = append(out, ev)
		}
	}
	return out
}
