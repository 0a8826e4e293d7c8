// Package planner chooses execution orders for the conjunctions of a
// deductive program, including conjunctions that call each other through
// recursive rules.
//
// File organization:
//   - planner.go: RecursivePlanner and the Plan() entry point
//   - types.go: CallMode, Plan, Options
//   - estimator.go: cardinality estimation under partial bindings
//   - graph.go: conjunction call graph and cycle classification
//   - ordering_search.go: ordering enumeration with partial-order reduction
//   - cost.go: ordering summaries and ordering choices
//   - subgraph.go: joint planning of mutually recursive call modes
//   - calls.go: call modes triggered by concludables and negations
//   - cache.go: session plan cache
//   - greedy.go: recursion-oblivious baseline planner
//   - explain.go: plan explanations and table rendering
//
// Start with Plan() in planner.go to understand the planning flow.
package planner

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/wbrown/janus-reasoner/datalog/annotations"
	"github.com/wbrown/janus-reasoner/datalog/logic"
	"github.com/wbrown/janus-reasoner/datalog/stats"
)

// choiceState tracks how far a call mode's ordering choices have been built
type choiceState uint8

const (
	choicesUnvisited choiceState = iota
	choicesBuilding
	choicesReady
)

type callModeEntry struct {
	mode      CallMode
	state     choiceState
	choices   []*OrderingChoice
	orderings int
}

// RecursivePlanner plans call modes one session at a time. All of its
// caches grow monotonically and are owned by the planner; it is not safe
// for concurrent use.
type RecursivePlanner struct {
	rules       RuleSource
	graph       *ConjunctionGraph
	estimator   *CardinalityEstimator
	cache       *PlanCache
	entries     map[string]*callModeEntry
	options     Options
	logger      *zap.Logger
	annotations *annotations.Collector

	// cyclicScalingFactors records, per planned call mode, what its
	// recursive callers already amortise. Read when pricing outside callers.
	cyclicScalingFactors map[string]float64

	// err is the first internal error; it aborts the rest of the session
	err error
}

// NewRecursivePlanner creates a planner session over rules and statistics
func NewRecursivePlanner(rules RuleSource, source stats.Source, options Options) *RecursivePlanner {
	if source == nil {
		source = stats.NewTable()
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	graph := NewConjunctionGraph(rules)
	return &RecursivePlanner{
		rules:                rules,
		graph:                graph,
		estimator:            NewCardinalityEstimator(source, rules, graph),
		cache:                NewPlanCache(),
		entries:              make(map[string]*callModeEntry),
		options:              options,
		logger:               logger,
		annotations:          annotations.NewCollector(options.Annotations),
		cyclicScalingFactors: make(map[string]float64),
	}
}

// Plan returns the plan of cm, computing and caching it and every call mode
// it depends on first. A cached plan is returned unchanged.
func (p *RecursivePlanner) Plan(cm CallMode) (Plan, error) {
	if cm.Conjunction == nil {
		return Plan{}, errors.New("call mode has no conjunction")
	}
	if p.err != nil {
		return Plan{}, p.err
	}

	start := time.Now()
	p.annotations.Add(annotations.Event{
		Name:  annotations.PlanRequested,
		Start: start,
		Data:  map[string]interface{}{"call_mode": cm.String()},
	})

	if plan, ok := p.cache.Get(cm); ok {
		p.annotations.AddTiming(annotations.PlanCached, start, map[string]interface{}{
			"call_mode": cm.String(),
			"cost":      plan.Cost,
		})
		return plan.clone(), nil
	}

	plan, err := p.computePlan(cm)
	if err != nil {
		p.abort(err)
		p.annotations.AddTiming(annotations.PlanComplete, start, map[string]interface{}{
			"call_mode": cm.String(),
			"success":   false,
			"error":     err.Error(),
		})
		return Plan{}, err
	}

	p.annotations.AddTiming(annotations.PlanComplete, start, map[string]interface{}{
		"call_mode": cm.String(),
		"success":   true,
		"cost":      plan.Cost,
	})
	return plan.clone(), nil
}

// Err returns the error that aborted the session, if any
func (p *RecursivePlanner) Err() error { return p.err }

// Graph returns the session's conjunction graph
func (p *RecursivePlanner) Graph() *ConjunctionGraph { return p.graph }

// Estimator returns the session's cardinality estimator
func (p *RecursivePlanner) Estimator() *CardinalityEstimator { return p.estimator }

// Cache returns the session's plan cache
func (p *RecursivePlanner) Cache() *PlanCache { return p.cache }

// Annotations returns the events recorded so far
func (p *RecursivePlanner) Annotations() []annotations.Event { return p.annotations.Events() }

func (p *RecursivePlanner) abort(err error) {
	p.err = err
	p.logger.Error("planning session aborted", zap.Error(err))
	p.annotations.Add(annotations.Event{
		Name:  annotations.ErrorPlannerInternal,
		Start: time.Now(),
		Data:  map[string]interface{}{"error": err.Error()},
	})
}

func (p *RecursivePlanner) computePlan(cm CallMode) (Plan, error) {
	if err := p.ensureOrderingChoices(cm); err != nil {
		return Plan{}, err
	}
	if err := p.planSubgraph(cm); err != nil {
		return Plan{}, err
	}
	plan, ok := p.cache.Get(cm)
	if !ok {
		return Plan{}, errors.AssertionFailedf("plan for %s missing after subgraph search", cm)
	}
	return plan, nil
}

func (p *RecursivePlanner) entry(cm CallMode) *callModeEntry {
	key := cm.Key()
	e, ok := p.entries[key]
	if !ok {
		e = &callModeEntry{mode: cm}
		p.entries[key] = e
	}
	return e
}

// buildFrame is one call mode whose ordering choices are being built. The
// dependencies it must plan before scoring are recorded in plan; ensure
// lists every call mode whose choices must exist, cyclic ones included.
type buildFrame struct {
	entry     *callModeEntry
	orderings [][]logic.Resolvable
	ensure    []CallMode
	plan      []CallMode
	next      int
}

// ensureOrderingChoices builds ordering choices for root and everything it
// can reach, dependencies first, with an explicit stack. Acyclic
// dependencies are fully planned before a call mode is scored; cyclic ones
// only get their choices, as they are planned jointly by planSubgraph.
func (p *RecursivePlanner) ensureOrderingChoices(root CallMode) error {
	if p.entry(root).state != choicesUnvisited {
		return nil
	}
	first, err := p.openFrame(root)
	if err != nil {
		return err
	}
	stack := []*buildFrame{first}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		if f.next < len(f.ensure) {
			child := f.ensure[f.next]
			f.next++
			if p.entry(child).state == choicesUnvisited {
				cf, err := p.openFrame(child)
				if err != nil {
					return err
				}
				stack = append(stack, cf)
			}
			continue
		}

		stack = stack[:len(stack)-1]
		if err := p.closeFrame(f); err != nil {
			return err
		}
	}
	return nil
}

// openFrame marks cm as in progress, enumerates its orderings and collects
// the call modes they trigger.
func (p *RecursivePlanner) openFrame(cm CallMode) (*buildFrame, error) {
	entry := p.entry(cm)
	entry.state = choicesBuilding

	conj := cm.Conjunction
	if err := p.estimator.BuildModel(conj); err != nil {
		return nil, err
	}
	node, err := p.graph.Node(conj)
	if err != nil {
		return nil, err
	}
	orderings, err := NewPartialOrderReductionSearch(conj, cm.Mode).AllOrderings()
	if err != nil {
		return nil, errors.Wrapf(err, "ordering %s", cm)
	}
	if limit := p.options.MaxOrderingsWarning; limit > 0 && len(orderings) > limit {
		p.logger.Warn("call mode has many orderings",
			zap.Stringer("call_mode", cm),
			zap.Int("orderings", len(orderings)),
			zap.Int("limit", limit))
	}

	f := &buildFrame{entry: entry, orderings: orderings}
	seenEnsure := make(map[string]bool)
	seenPlan := make(map[string]bool)
	add := func(call CallMode, plan bool) {
		key := call.Key()
		if !seenEnsure[key] {
			seenEnsure[key] = true
			f.ensure = append(f.ensure, call)
		}
		if plan && !seenPlan[key] {
			seenPlan[key] = true
			f.plan = append(f.plan, call)
		}
	}

	for _, ordering := range orderings {
		bound := cm.Mode
		for _, r := range ordering {
			vars := conj.VariablesOf(r)
			mode := vars.Intersect(bound)
			switch res := r.(type) {
			case *logic.Concludable:
				cyclic := node.cyclicBody(res)
				for _, call := range triggeredCalls(p.rules, res, mode, nil) {
					add(call, !cyclic(call.Conjunction))
				}
			case *logic.Negated:
				for _, branch := range res.Branches {
					add(branchCall(branch, mode), true)
				}
			}
			if _, negated := r.(*logic.Negated); !negated {
				bound = bound.Union(vars)
			}
		}
	}
	return f, nil
}

// closeFrame plans the frame's acyclic dependencies, scores its orderings,
// and keeps the cheapest ordering per cyclic signature.
func (p *RecursivePlanner) closeFrame(f *buildFrame) error {
	cm := f.entry.mode
	for _, call := range f.plan {
		if p.entry(call).state != choicesReady {
			return errors.AssertionFailedf("dependency %s of %s is not ready to plan", call, cm)
		}
		if err := p.ensurePlanned(call); err != nil {
			return err
		}
	}

	var signatures []string
	best := make(map[string]*OrderingSummary)
	for _, ordering := range f.orderings {
		s, err := p.summarize(cm, ordering)
		if err != nil {
			return err
		}
		sig := s.Signature()
		existing, ok := best[sig]
		if !ok {
			signatures = append(signatures, sig)
			best[sig] = s
		} else if s.SinglyBoundCost < existing.SinglyBoundCost {
			best[sig] = s
		}
	}

	choices := make([]*OrderingChoice, 0, len(signatures))
	for _, sig := range signatures {
		choice, err := p.finalize(best[sig])
		if err != nil {
			return err
		}
		choices = append(choices, choice)
	}

	f.entry.choices = choices
	f.entry.orderings = len(f.orderings)
	f.entry.state = choicesReady

	p.logger.Debug("ordering choices built",
		zap.Stringer("call_mode", cm),
		zap.Int("orderings", len(f.orderings)),
		zap.Int("choices", len(choices)))
	p.annotations.Add(annotations.Event{
		Name:  annotations.OrderingsGenerated,
		Start: time.Now(),
		Data: map[string]interface{}{
			"call_mode":       cm.String(),
			"orderings.count": len(f.orderings),
			"choices.count":   len(choices),
		},
	})
	return nil
}

func (p *RecursivePlanner) ensurePlanned(cm CallMode) error {
	if p.cache.Contains(cm) {
		return nil
	}
	return p.planSubgraph(cm)
}

// planSubgraph jointly plans the mutually recursive set around cm and
// commits a plan for every call mode in it that has none yet.
func (p *RecursivePlanner) planSubgraph(cm CallMode) error {
	start := time.Now()
	best, completions, err := p.searchSubgraph(cm)
	if err != nil {
		return err
	}

	for _, choice := range best.choices {
		call := choice.CallMode
		plan := Plan{Ordering: choice.Ordering, Cost: roundCost(best.Cost(call, 1))}
		if !p.cache.PutIfAbsent(call, plan) {
			continue
		}
		p.cyclicScalingFactors[call.Key()] = best.ScalingFactor(call)

		p.logger.Debug("plan committed",
			zap.Stringer("call_mode", call),
			zap.Int64("cost", plan.Cost),
			zap.Float64("cyclic_scaling_factor", best.ScalingFactor(call)))
		p.annotations.Add(annotations.Event{
			Name:  annotations.PlanCommitted,
			Start: time.Now(),
			Data: map[string]interface{}{
				"call_mode": call.String(),
				"cost":      plan.Cost,
				"ordering":  plan.String(),
			},
		})
	}

	p.annotations.AddTiming(annotations.SubgraphPlanned, start, map[string]interface{}{
		"root":              cm.String(),
		"call_modes.count":  len(best.choices),
		"completions.count": completions,
		"cost":              best.Cost(cm, 1),
	})
	return nil
}

// roundCost rounds up to the next integer, saturating instead of overflowing
func roundCost(cost float64) int64 {
	switch {
	case math.IsNaN(cost) || cost <= 0:
		return 0
	case cost >= math.MaxInt64:
		return math.MaxInt64
	default:
		return int64(math.Ceil(cost))
	}
}
