package planner

import (
	"github.com/cockroachdb/errors"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/logic"
	"github.com/wbrown/janus-reasoner/datalog/stats"
)

// GreedyPlanner orders resolvables one at a time without looking through
// rule calls. It is a baseline for comparing against RecursivePlanner,
// chosen explicitly with New(KindGreedy); nothing switches to it on its own.
//
// At each step resolvables are split into executable (dependencies bound)
// and not; executable ones into related (sharing a bound variable) and
// unrelated. The cheapest related resolvable under the current prefix is
// taken, else the first unrelated one.
type GreedyPlanner struct {
	graph     *ConjunctionGraph
	estimator *CardinalityEstimator
	cache     *PlanCache
}

// NewGreedyPlanner creates a greedy planner over rules and statistics
func NewGreedyPlanner(rules RuleSource, source stats.Source) *GreedyPlanner {
	if source == nil {
		source = stats.NewTable()
	}
	graph := NewConjunctionGraph(rules)
	return &GreedyPlanner{
		graph:     graph,
		estimator: NewCardinalityEstimator(source, rules, graph),
		cache:     NewPlanCache(),
	}
}

// Plan implements ReasonerPlanner
func (g *GreedyPlanner) Plan(cm CallMode) (Plan, error) {
	if cm.Conjunction == nil {
		return Plan{}, errors.New("call mode has no conjunction")
	}
	if plan, ok := g.cache.Get(cm); ok {
		return plan.clone(), nil
	}

	conj := cm.Conjunction
	estimator, err := g.estimator.Incremental(conj, cm.Mode)
	if err != nil {
		return Plan{}, err
	}

	bound := cm.Mode.Union(conj.Fixed())
	remaining := conj.Resolvables()
	var ordering []logic.Resolvable
	cost := 0.0

	for len(remaining) > 0 {
		var related, unrelated []int
		for i, r := range remaining {
			if !dependencies(conj, r).SubsetOf(bound) {
				continue
			}
			if conj.VariablesOf(r).Intersects(bound) {
				related = append(related, i)
			} else {
				unrelated = append(unrelated, i)
			}
		}

		pick := -1
		var pickCost float64
		switch {
		case len(related) > 0:
			for _, i := range related {
				c, err := g.stepCost(conj, estimator, remaining[i], bound)
				if err != nil {
					return Plan{}, err
				}
				if pick < 0 || c < pickCost {
					pick, pickCost = i, c
				}
			}
		case len(unrelated) > 0:
			pick = unrelated[0]
			if pickCost, err = g.stepCost(conj, estimator, remaining[pick], bound); err != nil {
				return Plan{}, err
			}
		default:
			return Plan{}, errors.Newf("no resolvable of %s can run with %s bound", conj.Name(), bound)
		}

		next := remaining[pick]
		ordering = append(ordering, next)
		cost += pickCost
		estimator = estimator.Extend(next)
		if _, negated := next.(*logic.Negated); !negated {
			bound = bound.Union(conj.VariablesOf(next))
		}
		remaining = append(remaining[:pick:pick], remaining[pick+1:]...)
	}

	plan := Plan{Ordering: ordering, Cost: roundCost(cost)}
	g.cache.PutIfAbsent(cm, plan)
	return plan.clone(), nil
}

// stepCost is the answers r yields per prefix answer. Negations cost the
// answers of their branches under the shared bound variables.
func (g *GreedyPlanner) stepCost(conj *logic.Conjunction, estimator *IncrementalEstimator, r logic.Resolvable, bound datalog.VariableSet) (float64, error) {
	mode := conj.VariablesOf(r).Intersect(bound)
	prefix := estimator.AnswerEstimate(mode)

	if n, ok := r.(*logic.Negated); ok {
		total := 0.0
		for _, branch := range n.Branches {
			answers, err := g.estimator.EstimateAnswers(branch, branch.Variables().Intersect(mode))
			if err != nil {
				return 0, err
			}
			total += answers
		}
		return total, nil
	}

	all, err := g.estimator.LocalEstimate(conj, r, mode)
	if err != nil {
		return 0, err
	}
	retrieval, err := g.estimator.RetrievalEstimate(conj, r)
	if err != nil {
		return 0, err
	}
	return scalingFactor(prefix, all) * retrieval, nil
}
