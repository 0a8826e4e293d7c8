package planner

import (
	"math"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/jzelinskie/persistent"
)

// assignment maps call mode keys to the ordering choice committed for them.
// Search branches share it by cloning, so no branch sees a sibling's writes.
type assignment = persistent.Map[string, *OrderingChoice]

func newAssignment() *assignment {
	return persistent.NewMap[string, *OrderingChoice](func(a, b string) bool { return a < b })
}

// SubgraphPlan is a joint assignment of one ordering choice to every call
// mode of a mutually recursive set, with the scaling factor each call mode
// receives from the choices that call it cyclically.
type SubgraphPlan struct {
	choices []*OrderingChoice // ordered by call mode key
	factors map[string]float64
}

// Choices returns the assigned ordering choices ordered by call mode key
func (sp *SubgraphPlan) Choices() []*OrderingChoice {
	out := make([]*OrderingChoice, len(sp.choices))
	copy(out, sp.choices)
	return out
}

// ScalingFactor returns the inbound cyclic scaling factor of cm, in [0, 1]
func (sp *SubgraphPlan) ScalingFactor(cm CallMode) float64 {
	return sp.factors[cm.Key()]
}

func (sp *SubgraphPlan) choiceFor(cm CallMode) *OrderingChoice {
	key := cm.Key()
	i := sort.Search(len(sp.choices), func(i int) bool { return sp.choices[i].CallMode.Key() >= key })
	if i < len(sp.choices) && sp.choices[i].CallMode.Key() == key {
		return sp.choices[i]
	}
	return nil
}

// Cost is the total cost of the subgraph when root is entered with
// rootFactor of its answers requested. Every other call mode is scaled by
// what its cyclic callers amortise.
func (sp *SubgraphPlan) Cost(root CallMode, rootFactor float64) float64 {
	rootKey := root.Key()
	cost := 0.0
	for _, choice := range sp.choices {
		key := choice.CallMode.Key()
		factor := sp.factors[key]
		if key == rootKey {
			factor = math.Min(1, rootFactor+factor)
		}
		cost += choice.AcyclicCost*factor + choice.UnscalableCost
	}
	return cost
}

// rootScalingFactor is the share of a call mode's answers one caller binding selects
func rootScalingFactor(choice *OrderingChoice) float64 {
	if choice.AnswersToMode <= 0 {
		return 1
	}
	return math.Min(1, 1/choice.AnswersToMode)
}

func (p *RecursivePlanner) newSubgraphPlan(assigned *assignment) (*SubgraphPlan, error) {
	var choices []*OrderingChoice
	assigned.Range(func(_ string, choice *OrderingChoice) {
		choices = append(choices, choice)
	})

	factors := make(map[string]float64, len(choices))
	for _, choice := range choices {
		node, err := p.graph.Node(choice.CallMode.Conjunction)
		if err != nil {
			return nil, err
		}
		for _, cm := range choice.CyclicConcludableModes {
			for _, call := range triggeredCalls(p.rules, cm.Concludable, cm.Mode, node.cyclicBody(cm.Concludable)) {
				key := call.Key()
				factors[key] = math.Min(1, factors[key]+choice.ScalingFactors[cm.Concludable])
			}
		}
	}
	return &SubgraphPlan{choices: choices, factors: factors}, nil
}

// searchFrame is one level of the subgraph search: a call mode being
// assigned, the options left to try for it, and the best completion seen.
type searchFrame struct {
	mode     CallMode
	pending  []CallMode // still unassigned, ordered by key, excluding mode
	assigned *assignment
	options  []*OrderingChoice
	next     int
	best     *SubgraphPlan
	bestCost float64
}

// searchSubgraph finds the cheapest joint assignment for the mutually
// recursive set around root. It backtracks over the ordering choices of one
// pending call mode at a time, adding the cyclic calls each choice makes,
// until nothing is pending. Frames live on an explicit stack.
func (p *RecursivePlanner) searchSubgraph(root CallMode) (*SubgraphPlan, int, error) {
	first, err := p.newSearchFrame([]CallMode{root}, newAssignment())
	if err != nil {
		return nil, 0, err
	}
	stack := []*searchFrame{first}
	var returned *SubgraphPlan
	completions := 0

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		if returned != nil {
			cost := returned.Cost(root, rootScalingFactor(returned.choiceFor(root)))
			if f.best == nil || cost < f.bestCost {
				f.best, f.bestCost = returned, cost
			}
			returned = nil
		}

		if f.next == len(f.options) {
			stack = stack[:len(stack)-1]
			returned = f.best
			continue
		}

		choice := f.options[f.next]
		f.next++
		assigned := f.assigned.Clone()
		assigned.Set(f.mode.Key(), choice, nil)

		pending, err := p.extendPending(f.pending, choice, assigned)
		if err != nil {
			return nil, 0, err
		}
		if len(pending) == 0 {
			completions++
			if returned, err = p.newSubgraphPlan(assigned); err != nil {
				return nil, 0, err
			}
			continue
		}
		child, err := p.newSearchFrame(pending, assigned)
		if err != nil {
			return nil, 0, err
		}
		stack = append(stack, child)
	}

	if returned == nil {
		return nil, 0, errors.AssertionFailedf("subgraph search for %s found no complete assignment", root)
	}
	return returned, completions, nil
}

func (p *RecursivePlanner) newSearchFrame(pending []CallMode, assigned *assignment) (*searchFrame, error) {
	mode := pending[0]
	entry, ok := p.entries[mode.Key()]
	if !ok || entry.state != choicesReady {
		return nil, errors.AssertionFailedf("call mode %s reached subgraph search before its ordering choices were built", mode)
	}
	if len(entry.choices) == 0 {
		return nil, errors.AssertionFailedf("call mode %s has no ordering choices", mode)
	}
	return &searchFrame{
		mode:     mode,
		pending:  pending[1:],
		assigned: assigned,
		options:  entry.choices,
	}, nil
}

// extendPending returns pending plus the cyclic calls choice makes that are
// not assigned yet, ordered by key. pending itself is left untouched.
func (p *RecursivePlanner) extendPending(pending []CallMode, choice *OrderingChoice, assigned *assignment) ([]CallMode, error) {
	node, err := p.graph.Node(choice.CallMode.Conjunction)
	if err != nil {
		return nil, err
	}
	next := make([]CallMode, len(pending), len(pending)+len(choice.CyclicConcludableModes))
	copy(next, pending)
	seen := make(map[string]bool, len(pending))
	for _, cm := range pending {
		seen[cm.Key()] = true
	}
	for _, cm := range choice.CyclicConcludableModes {
		for _, call := range triggeredCalls(p.rules, cm.Concludable, cm.Mode, node.cyclicBody(cm.Concludable)) {
			key := call.Key()
			if seen[key] {
				continue
			}
			if _, done := assigned.Get(key); done {
				continue
			}
			seen[key] = true
			next = append(next, call)
		}
	}
	sort.Slice(next, func(i, j int) bool { return next[i].Key() < next[j].Key() })
	return next, nil
}
