package logic

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-reasoner/datalog"
)

// Resolvable is one sub-goal of a conjunction.
// Resolvables are compared by identity: the same atom written twice
// in a conjunction is two resolvables.
type Resolvable interface {
	// Variables returns every variable the sub-goal mentions
	Variables() datalog.VariableSet
	String() string
	isResolvable()
}

// Atom is the shared shape of retrievables and concludables: a relation
// applied to argument terms.
type Atom struct {
	Relation datalog.Keyword
	Args     []datalog.Term
	vars     datalog.VariableSet
}

func newAtom(relation datalog.Keyword, args []datalog.Term) Atom {
	copied := make([]datalog.Term, len(args))
	copy(copied, args)
	return Atom{
		Relation: relation,
		Args:     copied,
		vars:     datalog.NewVariableSet(datalog.TermVariables(copied)...),
	}
}

// Arity returns the number of arguments
func (a *Atom) Arity() int { return len(a.Args) }

// Variables returns the variables among the arguments
func (a *Atom) Variables() datalog.VariableSet { return a.vars }

func (a *Atom) format(open, close, relation string) string {
	var sb strings.Builder
	sb.WriteString(open)
	sb.WriteString(relation)
	for _, arg := range a.Args {
		sb.WriteByte(' ')
		sb.WriteString(arg.String())
	}
	sb.WriteString(close)
	return sb.String()
}

// Retrievable is answered directly from stored facts.
type Retrievable struct {
	Atom
	// Requires lists variables that must be bound before the lookup can run
	// (e.g. a computed or index-only relation). Usually empty.
	Requires datalog.VariableSet
}

// NewRetrievable creates a stored-fact lookup [relation args...]
func NewRetrievable(relation datalog.Keyword, args ...datalog.Term) *Retrievable {
	return &Retrievable{Atom: newAtom(relation, args)}
}

// WithRequires returns a copy of r that may only be scheduled once vars are bound
func (r *Retrievable) WithRequires(vars ...datalog.Symbol) *Retrievable {
	return &Retrievable{Atom: r.Atom, Requires: datalog.NewVariableSet(vars...)}
}

func (r *Retrievable) String() string { return r.format("[", "]", r.Relation.String()) }
func (*Retrievable) isResolvable()    {}

// Concludable is answered from stored facts and by the rules whose head
// matches it; it is where recursion enters a program.
type Concludable struct {
	Atom
}

// NewConcludable creates a rule call (relation args...)
func NewConcludable(relation datalog.Keyword, args ...datalog.Term) *Concludable {
	return &Concludable{Atom: newAtom(relation, args)}
}

// String renders c as it is written in a rule body, (name args...)
func (c *Concludable) String() string {
	return c.format("(", ")", strings.TrimPrefix(c.Relation.String(), ":"))
}
func (*Concludable) isResolvable()    {}

// Negated succeeds when every branch of its disjunction fails.
type Negated struct {
	Branches []*Conjunction
	vars     datalog.VariableSet
}

// NewNegated creates a negation over one or more branch conjunctions
func NewNegated(branches ...*Conjunction) *Negated {
	vars := datalog.EmptyVariables
	for _, b := range branches {
		if b != nil {
			vars = vars.Union(b.Variables())
		}
	}
	copied := make([]*Conjunction, len(branches))
	copy(copied, branches)
	return &Negated{Branches: copied, vars: vars}
}

// Variables returns the union of the branch variables, including those
// local to a branch. Conjunction.VariablesOf narrows this to the
// variables shared with the enclosing conjunction.
func (n *Negated) Variables() datalog.VariableSet { return n.vars }

func (n *Negated) String() string {
	parts := make([]string, len(n.Branches))
	for i, b := range n.Branches {
		parts[i] = b.String()
	}
	return fmt.Sprintf("(not %s)", strings.Join(parts, " "))
}
func (*Negated) isResolvable() {}
