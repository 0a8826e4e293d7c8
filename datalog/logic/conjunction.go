package logic

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/wbrown/janus-reasoner/datalog"
)

var nextConjunctionID atomic.Uint64

// Conjunction is a fragment: an immutable set of resolvables planned as a unit.
// Conjunctions are shared by pointer and their identity (ID) is stable for the
// life of the process.
type Conjunction struct {
	id          uint64
	name        string
	resolvables []Resolvable
	scoped      map[Resolvable]datalog.VariableSet
	variables   datalog.VariableSet
	fixed       datalog.VariableSet
}

// NewConjunction validates and builds a conjunction. Fixed lists variables
// constrained to a single value somewhere in the fragment (e.g. [(= ?x 3)]).
func NewConjunction(name string, resolvables []Resolvable, fixed ...datalog.Symbol) (*Conjunction, error) {
	seen := make(map[Resolvable]bool, len(resolvables))
	positive := datalog.EmptyVariables
	for i, r := range resolvables {
		if r == nil {
			return nil, fmt.Errorf("conjunction %s: resolvable %d is nil", name, i)
		}
		if seen[r] {
			return nil, fmt.Errorf("conjunction %s: resolvable %s appears twice", name, r)
		}
		seen[r] = true
		switch res := r.(type) {
		case *Negated:
			if len(res.Branches) == 0 {
				return nil, fmt.Errorf("conjunction %s: negation has no branches", name)
			}
			for _, b := range res.Branches {
				if b == nil {
					return nil, fmt.Errorf("conjunction %s: negation has a nil branch", name)
				}
			}
		default:
			positive = positive.Union(r.Variables())
		}
	}

	fixedSet := datalog.NewVariableSet(fixed...)
	if missing := fixedSet.Minus(positive); !missing.IsEmpty() {
		return nil, fmt.Errorf("conjunction %s: fixed variables %s do not appear in a positive sub-goal", name, missing)
	}

	scoped := make(map[Resolvable]datalog.VariableSet, len(resolvables))
	for _, r := range resolvables {
		if n, ok := r.(*Negated); ok {
			scoped[r] = n.Variables().Intersect(positive)
		} else {
			scoped[r] = r.Variables()
		}
	}

	copied := make([]Resolvable, len(resolvables))
	copy(copied, resolvables)
	return &Conjunction{
		id:          nextConjunctionID.Add(1),
		name:        name,
		resolvables: copied,
		scoped:      scoped,
		variables:   positive,
		fixed:       fixedSet,
	}, nil
}

// MustConjunction is NewConjunction that panics on invalid input
func MustConjunction(name string, resolvables []Resolvable, fixed ...datalog.Symbol) *Conjunction {
	c, err := NewConjunction(name, resolvables, fixed...)
	if err != nil {
		panic(err)
	}
	return c
}

// ID returns the process-unique identity of the conjunction
func (c *Conjunction) ID() uint64 { return c.id }

// Key returns a fixed-width identity string that sorts by creation order
func (c *Conjunction) Key() string { return fmt.Sprintf("%08d", c.id) }

// Name returns the label given at construction, or a generated one
func (c *Conjunction) Name() string {
	if c.name != "" {
		return c.name
	}
	return fmt.Sprintf("conj#%d", c.id)
}

// Resolvables returns the sub-goals in declaration order
func (c *Conjunction) Resolvables() []Resolvable {
	out := make([]Resolvable, len(c.resolvables))
	copy(out, c.resolvables)
	return out
}

// Len returns the number of sub-goals
func (c *Conjunction) Len() int { return len(c.resolvables) }

// Variables returns the variables bound by the positive sub-goals
func (c *Conjunction) Variables() datalog.VariableSet { return c.variables }

// Fixed returns the variables constrained to a single value
func (c *Conjunction) Fixed() datalog.VariableSet { return c.fixed }

// Contains reports whether r is one of c's sub-goals
func (c *Conjunction) Contains(r Resolvable) bool {
	_, ok := c.scoped[r]
	return ok
}

// VariablesOf returns the variables of r as seen from this conjunction.
// For a negation these are only the variables shared with positive sub-goals.
func (c *Conjunction) VariablesOf(r Resolvable) datalog.VariableSet {
	if vars, ok := c.scoped[r]; ok {
		return vars
	}
	return r.Variables()
}

func (c *Conjunction) String() string {
	parts := make([]string, len(c.resolvables))
	for i, r := range c.resolvables {
		parts[i] = r.String()
	}
	return "(and " + strings.Join(parts, " ") + ")"
}
