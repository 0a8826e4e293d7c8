package planner

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/logic"
)

// Costs approximate work as expected answer counts. Known inaccuracies,
// kept on purpose:
//   - retrieval work and reasoning overhead are the same unit
//   - an acyclic dependency reached along several paths is charged on each
//   - scaling factors cap at 1, so excess calls are not penalised
//   - cost does not depend on the binding mode beyond what the ordering
//     search's connectivity preference already encodes

// ConcludableMode is a cyclic concludable together with the variables bound
// when an ordering reaches it.
type ConcludableMode struct {
	Concludable *logic.Concludable
	Position    int // declaration index within the conjunction
	Mode        datalog.VariableSet
}

func (cm ConcludableMode) key() string {
	return fmt.Sprintf("%d:%s", cm.Position, cm.Mode.Key())
}

// OrderingSummary is one ordering scored as if called on its own. Orderings
// of a call mode with the same cyclic signature are interchangeable for
// subgraph planning.
type OrderingSummary struct {
	CallMode               CallMode
	Ordering               []logic.Resolvable
	CyclicConcludableModes []ConcludableMode // sorted by key, no duplicates
	SinglyBoundCost        float64
}

// Signature identifies the summary's equivalence class
func (s *OrderingSummary) Signature() string {
	keys := make([]string, len(s.CyclicConcludableModes))
	for i, cm := range s.CyclicConcludableModes {
		keys[i] = cm.key()
	}
	return strings.Join(keys, ";")
}

// OrderingChoice is the retained representative of an equivalence class,
// with its cost split by whether it scales with the caller's bindings.
type OrderingChoice struct {
	CallMode               CallMode
	Ordering               []logic.Resolvable
	CyclicConcludableModes []ConcludableMode
	ScalingFactors         map[*logic.Concludable]float64
	AcyclicCost            float64 // connected to the caller's bindings
	UnscalableCost         float64 // paid regardless of the caller
	AnswersToMode          float64 // distinct bindings of the mode
	SinglyBoundCost        float64
}

func scalingFactor(prefix, total float64) float64 {
	if total == 0 {
		return 0
	}
	return clamp01(prefix / total)
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	return math.Min(1, f)
}

func positions(conj *logic.Conjunction) map[logic.Resolvable]int {
	pos := make(map[logic.Resolvable]int, conj.Len())
	for i, r := range conj.Resolvables() {
		pos[r] = i
	}
	return pos
}

// summarize scores ordering for cm, charging every acyclic call at its
// cached plan cost and collecting the cyclic concludables it reaches.
func (p *RecursivePlanner) summarize(cm CallMode, ordering []logic.Resolvable) (*OrderingSummary, error) {
	conj := cm.Conjunction
	node, err := p.graph.Node(conj)
	if err != nil {
		return nil, err
	}
	estimator, err := p.estimator.Incremental(conj, cm.Mode)
	if err != nil {
		return nil, err
	}
	pos := positions(conj)

	bound := cm.Mode
	cyclic := make(map[string]ConcludableMode)
	cost := 0.0
	for _, r := range ordering {
		vars := conj.VariablesOf(r)
		mode := vars.Intersect(bound)
		prefix := estimator.AnswerEstimate(mode)

		var rc float64
		if n, ok := r.(*logic.Negated); ok {
			rc, err = p.negatedCost(n, prefix, mode, mode)
		} else {
			var total float64
			total, err = p.estimator.LocalEstimate(conj, r, mode)
			if err == nil {
				rc, err = p.scaledAcyclicCost(scalingFactor(prefix, total), node, r, mode)
			}
		}
		if err != nil {
			return nil, err
		}

		if c, ok := r.(*logic.Concludable); ok && node.IsCyclic(c) {
			m := ConcludableMode{Concludable: c, Position: pos[c], Mode: mode}
			cyclic[m.key()] = m
		}

		estimator = estimator.Extend(r)
		cost += rc
		if _, ok := r.(*logic.Negated); !ok {
			bound = bound.Union(vars)
		}
	}

	modes := make([]ConcludableMode, 0, len(cyclic))
	for _, m := range cyclic {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i].key() < modes[j].key() })

	return &OrderingSummary{
		CallMode:               cm,
		Ordering:               ordering,
		CyclicConcludableModes: modes,
		SinglyBoundCost:        cost,
	}, nil
}

// finalize rescores s without the caller's bindings, splitting its cost into
// the part connected to the caller's variables and the part that is not,
// and records a scaling factor for each cyclic concludable.
func (p *RecursivePlanner) finalize(s *OrderingSummary) (*OrderingChoice, error) {
	cm := s.CallMode
	conj := cm.Conjunction
	node, err := p.graph.Node(conj)
	if err != nil {
		return nil, err
	}
	estimator, err := p.estimator.Incremental(conj, datalog.EmptyVariables)
	if err != nil {
		return nil, err
	}

	bound := cm.Mode
	restricted := datalog.EmptyVariables
	inputConnected := cm.Mode
	factors := make(map[*logic.Concludable]float64)
	acyclic, unscalable := 0.0, 0.0

	for _, r := range s.Ordering {
		vars := conj.VariablesOf(r)
		mode := vars.Intersect(bound)
		restrictedVars := vars.Intersect(restricted)
		prefix := estimator.AnswerEstimate(restrictedVars)

		var rc float64
		if n, ok := r.(*logic.Negated); ok {
			rc, err = p.negatedCost(n, prefix, restrictedVars, mode)
		} else {
			var total float64
			total, err = p.estimator.LocalEstimate(conj, r, restrictedVars)
			if err == nil {
				rc, err = p.scaledAcyclicCost(scalingFactor(prefix, total), node, r, mode)
			}
		}
		if err != nil {
			return nil, err
		}

		if c, ok := r.(*logic.Concludable); ok && node.IsCyclic(c) {
			// Caller variables stay out of the projection; the caller scales them.
			projection := restrictedVars.Minus(cm.Mode)
			unrestricted, err := p.estimator.LocalEstimate(conj, r, mode)
			if err != nil {
				return nil, err
			}
			factor := 0.0
			if !projection.IsEmpty() {
				factor = scalingFactor(estimator.AnswerEstimate(projection), unrestricted)
			}
			factors[c] = factor
		}

		estimator = estimator.Extend(r)

		connected := mode.Intersects(inputConnected)
		if connected {
			acyclic += rc
		} else {
			unscalable += rc
		}
		if _, ok := r.(*logic.Negated); !ok {
			bound = bound.Union(vars)
			restricted = restricted.Union(vars)
			if connected {
				inputConnected = inputConnected.Union(vars)
			}
		}
	}

	answers, err := p.estimator.ProjectedAnswers(conj, cm.Mode)
	if err != nil {
		return nil, err
	}
	return &OrderingChoice{
		CallMode:               cm,
		Ordering:               s.Ordering,
		CyclicConcludableModes: s.CyclicConcludableModes,
		ScalingFactors:         factors,
		AcyclicCost:            acyclic,
		UnscalableCost:         unscalable,
		AnswersToMode:          answers,
		SinglyBoundCost:        s.SinglyBoundCost,
	}, nil
}

// negatedCost sums the scaled call cost of every branch. restricted selects
// the branch variables the prefix restricts; bound selects the branch mode.
func (p *RecursivePlanner) negatedCost(n *logic.Negated, prefix float64, restricted, bound datalog.VariableSet) (float64, error) {
	total := 0.0
	for _, branch := range n.Branches {
		all, err := p.estimator.ProjectedAnswers(branch, branch.Variables().Intersect(restricted))
		if err != nil {
			return 0, err
		}
		cost, err := p.scaledCallCost(scalingFactor(prefix, all), branchCall(branch, bound))
		if err != nil {
			return 0, err
		}
		total += cost
	}
	return total, nil
}

// scaledAcyclicCost is the retrieval cost of a positive resolvable plus, for
// a concludable, the cost of every acyclic call it triggers, all scaled by
// factor. Cyclic calls are priced by the subgraph search.
func (p *RecursivePlanner) scaledAcyclicCost(factor float64, node *ConjunctionNode, r logic.Resolvable, mode datalog.VariableSet) (float64, error) {
	retrieval, err := p.estimator.RetrievalEstimate(node.Conjunction(), r)
	if err != nil {
		return 0, err
	}
	switch res := r.(type) {
	case *logic.Retrievable:
		return factor * retrieval, nil
	case *logic.Concludable:
		cost := factor * retrieval
		for _, call := range triggeredCalls(p.rules, res, mode, node.acyclicBody(res)) {
			cc, err := p.scaledCallCost(factor, call)
			if err != nil {
				return 0, err
			}
			cost += cc
		}
		return cost, nil
	default:
		return 0, errors.AssertionFailedf("unexpected resolvable %T in acyclic cost", r)
	}
}

// scaledCallCost charges a planned call, discounted by factor plus whatever
// its own subgraph already amortises.
func (p *RecursivePlanner) scaledCallCost(factor float64, call CallMode) (float64, error) {
	plan, ok := p.cache.Get(call)
	if !ok {
		return 0, errors.AssertionFailedf("call %s has no plan while pricing its caller", call)
	}
	return float64(plan.Cost) * math.Min(1, factor+p.cyclicScalingFactors[call.Key()]), nil
}
