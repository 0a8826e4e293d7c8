package datalog

import (
	"sort"
	"strings"
)

// VariableSet is an immutable, sorted set of variable symbols.
// Every operation returns a new set and never modifies its receiver,
// so sets can be shared freely between search branches.
type VariableSet struct {
	vars []Symbol // sorted, no duplicates
}

// EmptyVariables is the empty set
var EmptyVariables = VariableSet{}

// NewVariableSet builds a set from symbols in any order
func NewVariableSet(vars ...Symbol) VariableSet {
	if len(vars) == 0 {
		return EmptyVariables
	}
	out := make([]Symbol, len(vars))
	copy(out, vars)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return VariableSet{vars: out[:n]}
}

// Len returns the number of variables in the set
func (s VariableSet) Len() int { return len(s.vars) }

// IsEmpty reports whether the set has no members
func (s VariableSet) IsEmpty() bool { return len(s.vars) == 0 }

// Symbols returns a copy of the members in sorted order
func (s VariableSet) Symbols() []Symbol {
	out := make([]Symbol, len(s.vars))
	copy(out, s.vars)
	return out
}

// Contains reports membership
func (s VariableSet) Contains(v Symbol) bool {
	i := sort.Search(len(s.vars), func(i int) bool { return s.vars[i] >= v })
	return i < len(s.vars) && s.vars[i] == v
}

// Union returns s ∪ other
func (s VariableSet) Union(other VariableSet) VariableSet {
	if other.IsEmpty() {
		return s
	}
	if s.IsEmpty() {
		return other
	}
	out := make([]Symbol, 0, len(s.vars)+len(other.vars))
	i, j := 0, 0
	for i < len(s.vars) && j < len(other.vars) {
		switch {
		case s.vars[i] < other.vars[j]:
			out = append(out, s.vars[i])
			i++
		case s.vars[i] > other.vars[j]:
			out = append(out, other.vars[j])
			j++
		default:
			out = append(out, s.vars[i])
			i++
			j++
		}
	}
	out = append(out, s.vars[i:]...)
	out = append(out, other.vars[j:]...)
	return VariableSet{vars: out}
}

// Intersect returns s ∩ other
func (s VariableSet) Intersect(other VariableSet) VariableSet {
	var out []Symbol
	i, j := 0, 0
	for i < len(s.vars) && j < len(other.vars) {
		switch {
		case s.vars[i] < other.vars[j]:
			i++
		case s.vars[i] > other.vars[j]:
			j++
		default:
			out = append(out, s.vars[i])
			i++
			j++
		}
	}
	return VariableSet{vars: out}
}

// Minus returns s \ other
func (s VariableSet) Minus(other VariableSet) VariableSet {
	var out []Symbol
	for _, v := range s.vars {
		if !other.Contains(v) {
			out = append(out, v)
		}
	}
	return VariableSet{vars: out}
}

// Intersects reports whether s and other share at least one variable
func (s VariableSet) Intersects(other VariableSet) bool {
	i, j := 0, 0
	for i < len(s.vars) && j < len(other.vars) {
		switch {
		case s.vars[i] < other.vars[j]:
			i++
		case s.vars[i] > other.vars[j]:
			j++
		default:
			return true
		}
	}
	return false
}

// SubsetOf reports whether every member of s is in other
func (s VariableSet) SubsetOf(other VariableSet) bool {
	for _, v := range s.vars {
		if !other.Contains(v) {
			return false
		}
	}
	return true
}

// Equal reports whether both sets have the same members
func (s VariableSet) Equal(other VariableSet) bool {
	if len(s.vars) != len(other.vars) {
		return false
	}
	for i := range s.vars {
		if s.vars[i] != other.vars[i] {
			return false
		}
	}
	return true
}

// Key returns a canonical string usable as a map key
func (s VariableSet) Key() string {
	parts := make([]string, len(s.vars))
	for i, v := range s.vars {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}

// String returns the set in EDN vector form, e.g. [?a ?b]
func (s VariableSet) String() string {
	return "[" + strings.ReplaceAll(s.Key(), ",", " ") + "]"
}
