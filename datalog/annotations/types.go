// Package annotations provides a low-overhead side channel for planning
// telemetry and debugging output. Handlers are best effort: a handler that
// panics is isolated and never affects the planner.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Plan lifecycle
	PlanRequested = "planner/plan.requested"
	PlanCached    = "planner/plan.cached"
	PlanCommitted = "planner/plan.committed"
	PlanComplete  = "planner/plan.completed"

	// Search stages
	OrderingsGenerated = "planner/orderings.generated"
	SubgraphPlanned    = "planner/subgraph.planned"

	// Statistics
	StatsLoaded = "stats/loaded"

	// Errors
	ErrorPlannerInternal = "error/planner.internal"
)

// Event represents a single annotation event during planning.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Additional event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events during a planning session.
type Collector struct {
	enabled bool
	handler Handler
	events  []Event
	dropped int
	mu      sync.Mutex
}

// NewCollector creates a new annotation collector. A nil handler disables it.
func NewCollector(handler Handler) *Collector {
	return &Collector{
		enabled: handler != nil,
		handler: handler,
		events:  make([]Event, 0, 64),
	}
}

// Enabled reports whether events are being recorded
func (c *Collector) Enabled() bool {
	return c != nil && c.enabled
}

// Add records a new event.
func (c *Collector) Add(event Event) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	c.dispatch(event)
}

// AddTiming records an event with timing information.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if !c.Enabled() {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

func (c *Collector) dispatch(event Event) {
	defer func() {
		if recover() != nil {
			c.mu.Lock()
			c.dropped++
			c.mu.Unlock()
		}
	}()
	c.handler(event)
}

// Dropped returns how many events a handler failed on
func (c *Collector) Dropped() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Events returns all collected events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
	c.dropped = 0
}

// Fanout combines handlers into one; each is isolated from the others' panics.
func Fanout(handlers ...Handler) Handler {
	var live []Handler
	for _, h := range handlers {
		if h != nil {
			live = append(live, h)
		}
	}
	if len(live) == 0 {
		return nil
	}
	return func(event Event) {
		for _, h := range live {
			func() {
				defer func() { _ = recover() }()
				h(event)
			}()
		}
	}
}
