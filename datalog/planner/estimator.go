package planner

import (
	"math"

	"github.com/cockroachdb/errors"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/logic"
	"github.com/wbrown/janus-reasoner/datalog/stats"
)

// CardinalityEstimator predicts answer counts of conjunctions under
// partial bindings. Each conjunction's statistical model is built once,
// on first use, and reused for the rest of the session.
//
// The model keeps, per sub-goal, an answer count and a distinct-value
// count per variable. Joining a sub-goal onto a prefix divides the
// product of their counts by the larger distinct count of each shared
// variable.
type CardinalityEstimator struct {
	stats  stats.Source
	rules  RuleSource
	graph  *ConjunctionGraph
	models map[*logic.Conjunction]*conjunctionModel
}

type resolvableModel struct {
	count    float64
	vars     []datalog.Symbol // sorted
	distinct map[datalog.Symbol]float64
}

type conjunctionModel struct {
	conjunction *logic.Conjunction
	resolvables map[logic.Resolvable]*resolvableModel
	domain      map[datalog.Symbol]float64
	full        *IncrementalEstimator
}

// NewCardinalityEstimator creates an estimator over source. Concludable
// counts include answers inferred through rules outside the caller's own
// recursive component, classified by graph.
func NewCardinalityEstimator(source stats.Source, rules RuleSource, graph *ConjunctionGraph) *CardinalityEstimator {
	return &CardinalityEstimator{
		stats:  source,
		rules:  rules,
		graph:  graph,
		models: make(map[*logic.Conjunction]*conjunctionModel),
	}
}

// BuildModel builds the statistical model of conj. Repeated calls are no-ops.
func (e *CardinalityEstimator) BuildModel(conj *logic.Conjunction) error {
	_, err := e.model(conj)
	return err
}

// EstimateAnswers returns the expected number of answers to conj per
// binding of bound. With nothing bound this is the unconditional count;
// binding more variables never increases it.
func (e *CardinalityEstimator) EstimateAnswers(conj *logic.Conjunction, bound datalog.VariableSet) (float64, error) {
	m, err := e.model(conj)
	if err != nil {
		return 0, err
	}
	return m.full.answers / math.Max(1, m.full.AnswerEstimate(bound)), nil
}

// ProjectedAnswers returns the expected number of distinct answers to conj
// projected onto vars: how many different bindings of vars it produces.
func (e *CardinalityEstimator) ProjectedAnswers(conj *logic.Conjunction, vars datalog.VariableSet) (float64, error) {
	m, err := e.model(conj)
	if err != nil {
		return 0, err
	}
	return m.full.AnswerEstimate(vars), nil
}

// LocalEstimate returns the expected number of distinct answers of a single
// sub-goal of conj projected onto bound. Negations have no local answers.
func (e *CardinalityEstimator) LocalEstimate(conj *logic.Conjunction, r logic.Resolvable, bound datalog.VariableSet) (float64, error) {
	m, err := e.model(conj)
	if err != nil {
		return 0, err
	}
	rm, ok := m.resolvables[r]
	if !ok {
		return 0, nil
	}
	return rm.projection(bound), nil
}

// RetrievalEstimate returns the number of answers a sub-goal of conj yields
// with nothing bound.
func (e *CardinalityEstimator) RetrievalEstimate(conj *logic.Conjunction, r logic.Resolvable) (float64, error) {
	m, err := e.model(conj)
	if err != nil {
		return 0, err
	}
	rm, ok := m.resolvables[r]
	if !ok {
		return 0, nil
	}
	return rm.projection(datalog.NewVariableSet(rm.vars...)), nil
}

// Incremental starts an estimator over conj with mode already bound
func (e *CardinalityEstimator) Incremental(conj *logic.Conjunction, mode datalog.VariableSet) (*IncrementalEstimator, error) {
	m, err := e.model(conj)
	if err != nil {
		return nil, err
	}
	return m.start(mode), nil
}

// modelFrame is one conjunction waiting for the models of the rule bodies
// its concludables draw inferred answers from.
type modelFrame struct {
	conj *logic.Conjunction
	deps []*logic.Conjunction
	next int
}

// model returns the model of conj, first building those of the rule bodies
// it depends on, deepest first, from an explicit stack.
func (e *CardinalityEstimator) model(conj *logic.Conjunction) (*conjunctionModel, error) {
	if m, ok := e.models[conj]; ok {
		return m, nil
	}
	if _, err := e.graph.Node(conj); err != nil {
		return nil, err
	}

	visiting := map[*logic.Conjunction]bool{conj: true}
	stack := []*modelFrame{{conj: conj, deps: e.modelDependencies(conj)}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next < len(top.deps) {
			dep := top.deps[top.next]
			top.next++
			if _, done := e.models[dep]; done {
				continue
			}
			if visiting[dep] {
				return nil, errors.AssertionFailedf(
					"estimate of %s depends on itself through %s outside its component", dep.Name(), top.conj.Name())
			}
			visiting[dep] = true
			stack = append(stack, &modelFrame{conj: dep, deps: e.modelDependencies(dep)})
			continue
		}

		stack = stack[:len(stack)-1]
		m, err := e.buildModel(top.conj)
		if err != nil {
			return nil, err
		}
		e.models[top.conj] = m
	}
	return e.models[conj], nil
}

// modelDependencies lists the rule bodies outside conj's own recursive
// component that its concludables may call.
func (e *CardinalityEstimator) modelDependencies(conj *logic.Conjunction) []*logic.Conjunction {
	var deps []*logic.Conjunction
	for _, r := range conj.Resolvables() {
		c, ok := r.(*logic.Concludable)
		if !ok {
			continue
		}
		for _, rule := range e.rules.Rules(c) {
			if !e.graph.SameComponent(conj, rule.Body) {
				deps = append(deps, rule.Body)
			}
		}
	}
	return deps
}

// buildModel builds the model of conj. The models of its dependencies
// must already exist.
func (e *CardinalityEstimator) buildModel(conj *logic.Conjunction) (*conjunctionModel, error) {
	if _, err := e.graph.Node(conj); err != nil {
		return nil, err
	}
	m := &conjunctionModel{
		conjunction: conj,
		resolvables: make(map[logic.Resolvable]*resolvableModel),
		domain:      make(map[datalog.Symbol]float64),
	}
	for _, r := range conj.Resolvables() {
		var rm *resolvableModel
		var err error
		switch res := r.(type) {
		case *logic.Retrievable:
			rm = e.retrievableModel(conj, res)
		case *logic.Concludable:
			rm, err = e.concludableModel(conj, res)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		m.resolvables[r] = rm
		for _, v := range rm.vars {
			if d, ok := m.domain[v]; !ok || rm.distinct[v] < d {
				m.domain[v] = rm.distinct[v]
			}
		}
	}

	full := m.start(datalog.EmptyVariables)
	for _, r := range conj.Resolvables() {
		full = full.Extend(r)
	}
	m.full = full
	return m, nil
}

func (e *CardinalityEstimator) retrievableModel(conj *logic.Conjunction, r *logic.Retrievable) *resolvableModel {
	count, ok := e.stats.RelationCount(r.Relation)
	if !ok {
		count = stats.DefaultRelationCount
	}
	return e.atomModel(conj, &r.Atom, count, func(pos int) (float64, bool) {
		return e.stats.DistinctCount(r.Relation, pos)
	})
}

// concludableModel counts stored facts plus answers inferred by rule
// bodies outside conj's own recursive component. Bodies inside it would
// need the answer being computed.
func (e *CardinalityEstimator) concludableModel(conj *logic.Conjunction, c *logic.Concludable) (*resolvableModel, error) {
	stored, _ := e.stats.RelationCount(c.Relation)
	inferred := 0.0
	inferredDistinct := make([]float64, c.Arity())

	for _, rule := range e.rules.Rules(c) {
		body := rule.Body
		if e.graph.SameComponent(conj, body) {
			continue
		}
		bm, ok := e.models[body]
		if !ok {
			return nil, errors.AssertionFailedf("rule body %s of %s has no model", body.Name(), c)
		}
		head := datalog.NewVariableSet(rule.Head.Variables().Symbols()...)
		inferred += bm.full.AnswerEstimate(head)
		for i, arg := range rule.Head.Args {
			d := 1.0
			if v, ok := arg.(datalog.Variable); ok {
				d = math.Max(1, bm.full.distinctOf(v.Name))
			}
			inferredDistinct[i] += d
		}
	}

	count := stored + inferred
	return e.atomModel(conj, &c.Atom, count, func(pos int) (float64, bool) {
		d, ok := e.stats.DistinctCount(c.Relation, pos)
		if inferred == 0 {
			return d, ok
		}
		if !ok {
			d = 0
		}
		return d + inferredDistinct[pos], true
	}), nil
}

// atomModel applies constants, repeated variables, and fixed variables as
// selections on a relation of count facts.
func (e *CardinalityEstimator) atomModel(conj *logic.Conjunction, a *logic.Atom, count float64, distinctAt func(int) (float64, bool)) *resolvableModel {
	total := count
	distinct := make(map[datalog.Symbol]float64)
	positionDistinct := func(pos int) float64 {
		if d, ok := distinctAt(pos); ok && d > 0 {
			return math.Min(d, math.Max(count, 1))
		}
		return math.Max(count, 1)
	}

	for pos, arg := range a.Args {
		d := positionDistinct(pos)
		switch t := arg.(type) {
		case datalog.Variable:
			if prev, seen := distinct[t.Name]; seen {
				total /= math.Max(1, math.Max(prev, d))
				distinct[t.Name] = math.Min(prev, d)
			} else {
				distinct[t.Name] = d
			}
		default:
			total /= math.Max(1, d)
		}
	}

	vars := a.Variables().Symbols()
	for _, v := range vars {
		if conj.Fixed().Contains(v) {
			total /= math.Max(1, distinct[v])
			distinct[v] = 1
		}
	}
	for _, v := range vars {
		distinct[v] = math.Min(distinct[v], math.Max(total, 1))
	}
	return &resolvableModel{count: total, vars: vars, distinct: distinct}
}

func (rm *resolvableModel) projection(vars datalog.VariableSet) float64 {
	p := 1.0
	for _, v := range vars.Intersect(datalog.NewVariableSet(rm.vars...)).Symbols() {
		p *= math.Max(1, rm.distinct[v])
	}
	return math.Min(rm.count, p)
}

func (m *conjunctionModel) start(mode datalog.VariableSet) *IncrementalEstimator {
	distinct := make(map[datalog.Symbol]float64, mode.Len())
	for _, v := range mode.Symbols() {
		distinct[v] = 1
	}
	return &IncrementalEstimator{model: m, answers: 1, distinct: distinct}
}

// IncrementalEstimator tracks the answers of a growing prefix of sub-goals.
// It is immutable: Extend returns a new estimator and leaves the receiver
// untouched, so branches of a search can share prefixes.
type IncrementalEstimator struct {
	model    *conjunctionModel
	answers  float64
	distinct map[datalog.Symbol]float64
}

// Extend folds r into the prefix. Negations and unknown sub-goals filter
// answers without changing the estimate.
func (ie *IncrementalEstimator) Extend(r logic.Resolvable) *IncrementalEstimator {
	rm, ok := ie.model.resolvables[r]
	if !ok {
		return ie
	}
	answers := ie.answers * rm.count
	distinct := make(map[datalog.Symbol]float64, len(ie.distinct)+len(rm.vars))
	for v, d := range ie.distinct {
		distinct[v] = d
	}
	for _, v := range rm.vars {
		dr := rm.distinct[v]
		if dp, shared := ie.distinct[v]; shared {
			answers /= math.Max(1, math.Max(dp, dr))
			distinct[v] = math.Min(dp, dr)
		} else {
			distinct[v] = dr
		}
	}
	for v, d := range distinct {
		if d > answers {
			distinct[v] = answers
		}
	}
	return &IncrementalEstimator{model: ie.model, answers: answers, distinct: distinct}
}

// Answers returns the estimated answer count of the prefix
func (ie *IncrementalEstimator) Answers() float64 { return ie.answers }

// AnswerEstimate returns the expected number of distinct bindings of vars
// produced by the prefix. Variables the prefix has not reached use their
// smallest domain in the conjunction.
func (ie *IncrementalEstimator) AnswerEstimate(vars datalog.VariableSet) float64 {
	p := 1.0
	for _, v := range vars.Symbols() {
		p *= math.Max(1, ie.distinctOf(v))
	}
	return math.Min(ie.answers, p)
}

func (ie *IncrementalEstimator) distinctOf(v datalog.Symbol) float64 {
	if d, ok := ie.distinct[v]; ok {
		return d
	}
	if d, ok := ie.model.domain[v]; ok {
		return d
	}
	return 1
}
