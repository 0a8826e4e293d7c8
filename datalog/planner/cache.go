package planner

import (
	"sort"
	"sync"
	"sync/atomic"
)

// PlanCache holds the committed plan of every call mode planned in a
// session. Entries are insert-only: once a call mode has a plan it keeps it.
type PlanCache struct {
	plans map[string]Plan
	modes map[string]CallMode
	mu    sync.RWMutex

	// Statistics
	hits   int64
	misses int64
}

// NewPlanCache creates an empty plan cache
func NewPlanCache() *PlanCache {
	return &PlanCache{
		plans: make(map[string]Plan),
		modes: make(map[string]CallMode),
	}
}

// Get returns the plan of cm if one has been committed
func (c *PlanCache) Get(cm CallMode) (Plan, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	plan, ok := c.plans[cm.Key()]
	if !ok {
		atomic.AddInt64(&c.misses, 1)
		return Plan{}, false
	}
	atomic.AddInt64(&c.hits, 1)
	return plan, true
}

// PutIfAbsent commits plan for cm unless cm already has one. It reports
// whether plan was stored.
func (c *PlanCache) PutIfAbsent(cm CallMode, plan Plan) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cm.Key()
	if _, exists := c.plans[key]; exists {
		return false
	}
	c.plans[key] = plan.clone()
	c.modes[key] = cm
	return true
}

// CallModes returns every planned call mode ordered by key
func (c *PlanCache) CallModes() []CallMode {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.modes))
	for k := range c.modes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]CallMode, len(keys))
	for i, k := range keys {
		out[i] = c.modes[k]
	}
	return out
}

// Stats returns cache statistics
func (c *PlanCache) Stats() (hits, misses int64, size int) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses), len(c.plans)
}

// Contains reports whether cm has a plan, without counting a hit or miss
func (c *PlanCache) Contains(cm CallMode) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.plans[cm.Key()]
	return ok
}
