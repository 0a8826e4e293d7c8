package planner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/logic"
	"github.com/wbrown/janus-reasoner/datalog/stats"
)

func newEstimator(rules RuleSource, source stats.Source) *CardinalityEstimator {
	return NewCardinalityEstimator(source, rules, NewConjunctionGraph(rules))
}

func TestEstimateAnswersJoin(t *testing.T) {
	parent := retrievable(kwParent, v("?x"), v("?y"))
	person := retrievable(kwPerson, v("?y"))
	q := conjunction(t, "q", parent, person)
	e := newEstimator(logic.NewProgram(), familyStats())

	tests := []struct {
		name  string
		bound datalog.VariableSet
		want  float64
	}{
		{"unconditional", datalog.EmptyVariables, 1000},
		{"x bound", datalog.NewVariableSet("?x"), 2.5},
		{"x and y bound", datalog.NewVariableSet("?x", "?y"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.EstimateAnswers(q, tt.bound)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	projected, err := e.ProjectedAnswers(q, datalog.NewVariableSet("?y"))
	require.NoError(t, err)
	assert.InDelta(t, 500, projected, 1e-9)

	local, err := e.LocalEstimate(q, parent, datalog.NewVariableSet("?x"))
	require.NoError(t, err)
	assert.InDelta(t, 400, local, 1e-9)

	local, err = e.LocalEstimate(q, person, datalog.EmptyVariables)
	require.NoError(t, err)
	assert.InDelta(t, 1, local, 1e-9, "empty projection of a non-empty relation")
}

func TestEstimatorSelections(t *testing.T) {
	e := newEstimator(logic.NewProgram(), familyStats())

	constant := retrievable(kwParent, datalog.Const("alice"), v("?y"))
	q := conjunction(t, "const", constant)
	got, err := e.RetrievalEstimate(q, constant)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, got, 1e-9)

	fixedAtom := retrievable(kwParent, v("?x"), v("?y"))
	fixed, err := logic.NewConjunction("fixed", []logic.Resolvable{fixedAtom}, "?x")
	require.NoError(t, err)
	got, err = e.EstimateAnswers(fixed, datalog.EmptyVariables)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, got, 1e-9)

	unknown := retrievable(datalog.NewKeyword(":unknown"), v("?a"))
	uq := conjunction(t, "unknown", unknown)
	got, err = e.EstimateAnswers(uq, datalog.EmptyVariables)
	require.NoError(t, err)
	assert.InDelta(t, stats.DefaultRelationCount, got, 1e-9)
}

func TestIncrementalEstimatorIsImmutable(t *testing.T) {
	parent := retrievable(kwParent, v("?x"), v("?y"))
	person := retrievable(kwPerson, v("?y"))
	neg := logic.NewNegated(conjunction(t, "banned", retrievable(kwBanned, v("?y"))))
	q := conjunction(t, "q", parent, person, neg)
	e := newEstimator(logic.NewProgram(), familyStats())

	start, err := e.Incremental(q, datalog.NewVariableSet("?x"))
	require.NoError(t, err)
	afterParent := start.Extend(parent)
	afterPerson := afterParent.Extend(person)

	assert.InDelta(t, 1, start.Answers(), 1e-9)
	assert.InDelta(t, 2.5, afterParent.Answers(), 1e-9)
	assert.InDelta(t, 2.5, afterPerson.Answers(), 1e-9)
	assert.Same(t, afterPerson, afterPerson.Extend(neg), "negations do not change the estimate")

	assert.InDelta(t, 1, start.AnswerEstimate(datalog.NewVariableSet("?x")), 1e-9)
	assert.InDelta(t, 1, start.AnswerEstimate(datalog.EmptyVariables), 1e-9)
	assert.InDelta(t, 2.5, afterParent.AnswerEstimate(datalog.NewVariableSet("?y")), 1e-9)
}

func TestConcludableCountIncludesAcyclicRules(t *testing.T) {
	anc := newAncestorProgram(t)
	call := concludable(kwAncestor, v("?a"), v("?b"))
	q := conjunction(t, "q", call)
	e := newEstimator(anc.program, familyStats())

	// base contributes 1000; the recursive body sees only base (2000 after
	// the join), since its own call is inside its component.
	got, err := e.EstimateAnswers(q, datalog.EmptyVariables)
	require.NoError(t, err)
	assert.InDelta(t, 3000, got, 1e-9)

	inner, err := e.EstimateAnswers(anc.rec, datalog.EmptyVariables)
	require.NoError(t, err)
	assert.InDelta(t, 2000, inner, 1e-9)
}

func TestConcludableWithoutRulesOrFacts(t *testing.T) {
	call := concludable(datalog.NewKeyword(":nothing"), v("?a"))
	q := conjunction(t, "q", call)
	e := newEstimator(logic.NewProgram(), familyStats())

	got, err := e.EstimateAnswers(q, datalog.EmptyVariables)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestBuildModelIsIdempotent(t *testing.T) {
	q := conjunction(t, "q", retrievable(kwParent, v("?x"), v("?y")))
	e := newEstimator(logic.NewProgram(), familyStats())

	require.NoError(t, e.BuildModel(q))
	first := e.models[q]
	require.NoError(t, e.BuildModel(q))
	assert.Same(t, first, e.models[q])
}

func TestEstimatorHandlesDeepRuleChains(t *testing.T) {
	const depth = 5000
	kwBase := datalog.NewKeyword(":base")
	level := func(i int) datalog.Keyword { return datalog.NewKeyword(fmt.Sprintf(":r%d", i)) }

	// (r0 ?x ?y) :- [:base ?x ?y]; (ri ?x ?y) :- (ri-1 ?x ?y)
	program := logic.NewProgram()
	bodies := make([]*logic.Conjunction, depth)
	for i := 0; i < depth; i++ {
		var body logic.Resolvable = retrievable(kwBase, v("?x"), v("?y"))
		if i > 0 {
			body = concludable(level(i-1), v("?x"), v("?y"))
		}
		bodies[i] = conjunction(t, fmt.Sprintf("r%d#1", i), body)
		rule, err := logic.NewRule(bodies[i].Name(), concludable(level(i), v("?x"), v("?y")), bodies[i])
		require.NoError(t, err)
		program.Add(rule)
	}
	q := conjunction(t, "q", concludable(level(depth-1), v("?a"), v("?b")))
	source := stats.NewTable(stats.Relation{Name: kwBase, Count: 100, Distinct: []float64{10, 20}})
	e := newEstimator(program, source)

	got, err := e.EstimateAnswers(q, datalog.EmptyVariables)
	require.NoError(t, err)
	assert.Equal(t, 100.0, got, "every level passes the base answers through")
	got, err = e.EstimateAnswers(q, datalog.NewVariableSet("?a"))
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)

	assert.Len(t, e.models, depth+1)
	for _, body := range bodies {
		assert.Contains(t, e.models, body)
	}
}
