package player

import (
	"fmt"
	"strings"
	"time"
)

// DefaultSampleInterval is the Periodic tick when none is configured.
const DefaultSampleInterval = 10 * time.Second

// EventKind is the moment a sample may be taken.
type EventKind int

const (
	EventTick EventKind = iota + 1
	EventUnmount
	EventUnload
)

func (k EventKind) String() string {
	switch k {
	case EventTick:
		return "tick"
	case EventUnmount:
		return "unmount"
	case EventUnload:
		return "unload"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind EventKind
	At   time.Time
}

// Strategy decides which events produce a progress sample.
type Strategy interface {
	ShouldSampleNow(Event) bool
}

// Ticker is implemented by strategies that want periodic EventTick events.
type Ticker interface {
	TickInterval() time.Duration
}

// Periodic samples on every tick and on both session boundaries.
type Periodic struct {
	Interval time.Duration
}

func (p Periodic) ShouldSampleNow(e Event) bool {
	switch e.Kind {
	case EventTick, EventUnmount, EventUnload:
		return true
	}
	return false
}

func (p Periodic) TickInterval() time.Duration {
	if p.Interval <= 0 {
		return DefaultSampleInterval
	}
	return p.Interval
}

// Boundary samples only on unmount and page unload.
type Boundary struct{}

func (Boundary) ShouldSampleNow(e Event) bool {
	return e.Kind == EventUnmount || e.Kind == EventUnload
}

// ParseStrategy maps a configured name to a Strategy. An empty name selects
// Periodic.
func ParseStrategy(name string, interval time.Duration) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "periodic":
		return Periodic{Interval: interval}, nil
	case "boundary":
		return Boundary{}, nil
	default:
		return nil, fmt.Errorf("unknown sampling strategy %q (supported: periodic, boundary)", name)
	}
}
