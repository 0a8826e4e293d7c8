package planner

import (
	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/logic"
)

// triggeredCalls returns the call modes a concludable invokes when mode is
// bound at the point it runs: one per applicable rule, binding the head
// variables whose argument is a constant or a bound variable. When keep is
// non-nil, rules whose body it rejects are skipped.
func triggeredCalls(rules RuleSource, c *logic.Concludable, mode datalog.VariableSet, keep func(*logic.Conjunction) bool) []CallMode {
	var calls []CallMode
	seen := make(map[string]bool)
	for _, rule := range rules.Rules(c) {
		if keep != nil && !keep(rule.Body) {
			continue
		}
		var bound []datalog.Symbol
		for i, arg := range c.Args {
			head, ok := rule.Head.Args[i].(datalog.Variable)
			if !ok {
				continue
			}
			switch a := arg.(type) {
			case datalog.Variable:
				if mode.Contains(a.Name) {
					bound = append(bound, head.Name)
				}
			default:
				bound = append(bound, head.Name)
			}
		}
		call := NewCallMode(rule.Body, bound...)
		if !seen[call.Key()] {
			seen[call.Key()] = true
			calls = append(calls, call)
		}
	}
	return calls
}

// branchCall is the call mode of one negation branch given the variables
// bound where the negation runs
func branchCall(branch *logic.Conjunction, bound datalog.VariableSet) CallMode {
	return CallMode{Conjunction: branch, Mode: branch.Variables().Intersect(bound)}
}
