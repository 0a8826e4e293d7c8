// Package stats supplies the leaf-level numbers of the cardinality
// estimator: how many facts a relation holds and how many distinct
// values each of its argument positions takes.
package stats

import (
	"sort"
	"sync"

	"github.com/wbrown/janus-reasoner/datalog"
)

// DefaultRelationCount is assumed for a stored relation nothing is known about
const DefaultRelationCount = 1000000

// Source answers statistics queries. The boolean result is false when the
// source has no information; callers pick their own fallback.
type Source interface {
	RelationCount(relation datalog.Keyword) (float64, bool)
	DistinctCount(relation datalog.Keyword, position int) (float64, bool)
}

// Relation holds the statistics of one stored relation
type Relation struct {
	Name     datalog.Keyword
	Count    float64   // Number of stored facts
	Distinct []float64 // Distinct values per argument position; 0 = unknown
}

// Table is an in-memory Source
type Table struct {
	mu        sync.RWMutex
	relations map[datalog.Keyword]Relation
}

// NewTable creates a table holding rels
func NewTable(rels ...Relation) *Table {
	t := &Table{relations: make(map[datalog.Keyword]Relation, len(rels))}
	for _, r := range rels {
		t.Put(r)
	}
	return t
}

// Put adds or replaces the statistics of a relation
func (t *Table) Put(r Relation) {
	distinct := make([]float64, len(r.Distinct))
	copy(distinct, r.Distinct)
	r.Distinct = distinct

	t.mu.Lock()
	defer t.mu.Unlock()
	t.relations[r.Name] = r
}

// Get returns the statistics of one relation
func (t *Table) Get(name datalog.Keyword) (Relation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.relations[name]
	return r, ok
}

// Relations returns all relations sorted by name
func (t *Table) Relations() []Relation {
	t.mu.RLock()
	out := make([]Relation, 0, len(t.relations))
	for _, r := range t.relations {
		out = append(out, r)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name.Compare(out[j].Name) < 0 })
	return out
}

// RelationCount implements Source
func (t *Table) RelationCount(relation datalog.Keyword) (float64, bool) {
	r, ok := t.Get(relation)
	if !ok {
		return 0, false
	}
	return r.Count, true
}

// DistinctCount implements Source
func (t *Table) DistinctCount(relation datalog.Keyword, position int) (float64, bool) {
	r, ok := t.Get(relation)
	if !ok || position < 0 || position >= len(r.Distinct) || r.Distinct[position] <= 0 {
		return 0, false
	}
	return r.Distinct[position], true
}
