package planner

import (
	"github.com/cockroachdb/errors"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/logic"
)

// PartialOrderReductionSearch enumerates the orderings of a conjunction's
// resolvables that can differ in cost under one binding mode.
//
// A depth-first search over permutations is pruned three ways:
//   - a resolvable is enabled only once its dependencies are bound
//   - sibling subtrees already explored put their head resolvable to sleep
//     until a variable-sharing resolvable is scheduled (sleep sets), so
//     independent resolvables are only tried in one relative order
//   - enabled resolvables connected to the bound variables are preferred;
//     disconnected ones are tried only when nothing connected is enabled and
//     nothing is asleep
type PartialOrderReductionSearch struct {
	resolvables []logic.Resolvable
	vars        []datalog.VariableSet
	deps        []datalog.VariableSet
	negated     []bool
	initial     datalog.VariableSet
}

// NewPartialOrderReductionSearch prepares a search over conj with mode bound.
// Variables fixed to a single value anywhere in conj count as bound.
func NewPartialOrderReductionSearch(conj *logic.Conjunction, mode datalog.VariableSet) *PartialOrderReductionSearch {
	resolvables := conj.Resolvables()
	s := &PartialOrderReductionSearch{
		resolvables: resolvables,
		vars:        make([]datalog.VariableSet, len(resolvables)),
		deps:        make([]datalog.VariableSet, len(resolvables)),
		negated:     make([]bool, len(resolvables)),
		initial:     mode.Union(conj.Fixed()),
	}
	for i, r := range resolvables {
		s.vars[i] = conj.VariablesOf(r)
		s.deps[i] = dependencies(conj, r)
		_, s.negated[i] = r.(*logic.Negated)
	}
	return s
}

// dependencies returns the variables that must be bound before r can run
func dependencies(conj *logic.Conjunction, r logic.Resolvable) datalog.VariableSet {
	switch res := r.(type) {
	case *logic.Retrievable:
		return res.Requires
	case *logic.Negated:
		return conj.VariablesOf(res)
	default:
		return datalog.EmptyVariables
	}
}

// AllOrderings returns every distinct ordering. It fails only when no
// resolvable order satisfies the dependencies, which means the conjunction
// was built inconsistently.
func (s *PartialOrderReductionSearch) AllOrderings() ([][]logic.Resolvable, error) {
	var found [][]int
	remaining := make([]bool, len(s.resolvables))
	for i := range remaining {
		remaining[i] = true
	}
	s.search(nil, s.initial, remaining, make([]bool, len(s.resolvables)), &found)
	if len(found) == 0 {
		return nil, errors.AssertionFailedf("no ordering of %d resolvables satisfies their dependencies under %s",
			len(s.resolvables), s.initial)
	}

	orderings := make([][]logic.Resolvable, len(found))
	for i, path := range found {
		ordering := make([]logic.Resolvable, len(path))
		for j, idx := range path {
			ordering[j] = s.resolvables[idx]
		}
		orderings[i] = ordering
	}
	return orderings, nil
}

// search extends path by one resolvable per level. Every argument is
// treated as immutable; each branch works on its own copies.
func (s *PartialOrderReductionSearch) search(path []int, bound datalog.VariableSet, remaining, sleeping []bool, found *[][]int) {
	if len(path) == len(s.resolvables) {
		*found = append(*found, append([]int(nil), path...))
		return
	}

	var enabled, connected []int
	anySleeping := false
	for i := range s.resolvables {
		if sleeping[i] {
			anySleeping = true
		}
		if !remaining[i] || sleeping[i] || !s.deps[i].SubsetOf(bound) {
			continue
		}
		enabled = append(enabled, i)
		if s.vars[i].Intersects(bound) {
			connected = append(connected, i)
		}
	}
	if len(enabled) == 0 {
		return
	}
	if len(connected) > 0 {
		enabled = connected
	} else if anySleeping {
		// A disconnected resolvable here was already tried down a sibling
		// branch that put it to sleep.
		return
	}

	asleep := append([]bool(nil), sleeping...)
	for _, next := range enabled {
		nextSleeping := make([]bool, len(asleep))
		for i, sl := range asleep {
			nextSleeping[i] = sl && !s.vars[i].Intersects(s.vars[next])
		}
		nextBound := bound
		if !s.negated[next] {
			nextBound = bound.Union(s.vars[next])
		}
		nextRemaining := append([]bool(nil), remaining...)
		nextRemaining[next] = false

		s.search(append(path[:len(path):len(path)], next), nextBound, nextRemaining, nextSleeping, found)
		asleep[next] = true
	}
}
