package logic

import (
	"fmt"

	"github.com/wbrown/janus-reasoner/datalog"
)

// Rule derives facts for its head relation from answers to its body.
type Rule struct {
	Label string
	Head  *Concludable
	Body  *Conjunction
}

// NewRule validates that every head variable is bound by the body
func NewRule(label string, head *Concludable, body *Conjunction) (*Rule, error) {
	if head == nil || body == nil {
		return nil, fmt.Errorf("rule %s: head and body are required", label)
	}
	if missing := head.Variables().Minus(body.Variables()); !missing.IsEmpty() {
		return nil, fmt.Errorf("rule %s: head variables %s are not bound by the body", label, missing)
	}
	return &Rule{Label: label, Head: head, Body: body}, nil
}

func (r *Rule) String() string {
	return fmt.Sprintf("[%s %s]", r.Head, r.Body)
}

// Unifies reports whether the rule head can answer c: same relation and arity,
// and no pair of differing constants in the same position.
func (r *Rule) Unifies(c *Concludable) bool {
	if r.Head.Relation != c.Relation || r.Head.Arity() != c.Arity() {
		return false
	}
	for i, arg := range c.Args {
		ca, ok1 := arg.(datalog.Constant)
		ha, ok2 := r.Head.Args[i].(datalog.Constant)
		if ok1 && ok2 && ca.Value != ha.Value {
			return false
		}
	}
	return true
}

// Program is a registry of rules indexed by head relation.
type Program struct {
	rules      []*Rule
	byRelation map[datalog.Keyword][]*Rule
}

// NewProgram creates a program from rules, keeping their order
func NewProgram(rules ...*Rule) *Program {
	p := &Program{byRelation: make(map[datalog.Keyword][]*Rule)}
	for _, r := range rules {
		p.Add(r)
	}
	return p
}

// Add registers a rule
func (p *Program) Add(r *Rule) {
	p.rules = append(p.rules, r)
	p.byRelation[r.Head.Relation] = append(p.byRelation[r.Head.Relation], r)
}

// Rules returns the rules applicable to c, in registration order
func (p *Program) Rules(c *Concludable) []*Rule {
	var out []*Rule
	for _, r := range p.byRelation[c.Relation] {
		if r.Unifies(c) {
			out = append(out, r)
		}
	}
	return out
}

// All returns every registered rule
func (p *Program) All() []*Rule {
	out := make([]*Rule, len(p.rules))
	copy(out, p.rules)
	return out
}

// Derives reports whether any rule concludes relation
func (p *Program) Derives(relation datalog.Keyword) bool {
	return len(p.byRelation[relation]) > 0
}
