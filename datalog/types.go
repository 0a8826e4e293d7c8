package datalog

import (
	"fmt"
)

// Keyword names a relation (e.g., :parent, :person/friend)
type Keyword struct {
	value string // The keyword string (e.g., ":parent")
}

// NewKeyword creates a keyword
func NewKeyword(s string) Keyword {
	return Keyword{value: s}
}

// String returns the keyword string
func (k Keyword) String() string {
	return k.value
}

// Compare compares two keywords
func (k Keyword) Compare(other Keyword) int {
	if k.value < other.value {
		return -1
	} else if k.value > other.value {
		return 1
	}
	return 0
}

// Symbol names a variable in a rule or query (e.g., ?x, ?name)
type Symbol string

// IsVariable returns true if this is a variable symbol (starts with ?)
func (s Symbol) IsVariable() bool {
	return len(s) > 0 && s[0] == '?'
}

// String returns the string representation
func (s Symbol) String() string {
	return string(s)
}

// Term is one argument position of an atom: a variable or a constant
type Term interface {
	IsVariable() bool
	String() string
}

// Variable is a term bound by evaluation
type Variable struct {
	Name Symbol
}

func (v Variable) IsVariable() bool { return true }
func (v Variable) String() string   { return v.Name.String() }

// Constant is a term with a fixed value
// Value is one of int64, float64, string, bool or Keyword
type Constant struct {
	Value interface{}
}

func (c Constant) IsVariable() bool { return false }
func (c Constant) String() string {
	if s, ok := c.Value.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", c.Value)
}

// Var is shorthand for a variable term
func Var(name string) Variable {
	return Variable{Name: Symbol(name)}
}

// Const is shorthand for a constant term
func Const(v interface{}) Constant {
	return Constant{Value: v}
}

// TermVariables returns the variable symbols appearing in terms, in order, without duplicates
func TermVariables(terms []Term) []Symbol {
	var out []Symbol
	seen := make(map[Symbol]bool, len(terms))
	for _, t := range terms {
		if v, ok := t.(Variable); ok && !seen[v.Name] {
			seen[v.Name] = true
			out = append(out, v.Name)
		}
	}
	return out
}
