package planner

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/logic"
)

func TestGraphSelfRecursion(t *testing.T) {
	anc := newAncestorProgram(t)
	call := concludable(kwAncestor, v("?a"), v("?b"))
	q := conjunction(t, "q", call)
	g := NewConjunctionGraph(anc.program)

	qn, err := g.Node(q)
	require.NoError(t, err)
	assert.False(t, qn.IsCyclic(call), "the query is not part of the recursion")
	assert.Equal(t, []*logic.Conjunction{anc.base, anc.rec}, qn.AcyclicDependencies(call))
	assert.Empty(t, qn.CyclicConcludables())

	rn, err := g.Node(anc.rec)
	require.NoError(t, err)
	assert.True(t, rn.IsCyclic(anc.recCall))
	assert.Equal(t, []*logic.Conjunction{anc.rec}, rn.CyclicDependencies(anc.recCall))
	assert.Equal(t, []*logic.Conjunction{anc.base}, rn.AcyclicDependencies(anc.recCall))
	assert.Equal(t, []*logic.Concludable{anc.recCall}, rn.CyclicConcludables())

	assert.True(t, g.SameComponent(anc.rec, anc.rec))
	assert.False(t, g.SameComponent(q, anc.rec))
	assert.False(t, g.SameComponent(anc.base, anc.rec))
}

func TestGraphMutualRecursion(t *testing.T) {
	m := newMutualProgram(t)
	g := NewConjunctionGraph(m.program)

	an, err := g.Node(m.a)
	require.NoError(t, err)
	assert.True(t, an.IsCyclic(m.callQ))
	assert.Equal(t, []*logic.Conjunction{m.b}, an.CyclicDependencies(m.callQ))

	bn, err := g.Node(m.b)
	require.NoError(t, err)
	assert.True(t, bn.IsCyclic(m.callP))
	assert.True(t, g.SameComponent(m.a, m.b))
}

func TestGraphLaterRegionsKeepEarlierComponents(t *testing.T) {
	anc := newAncestorProgram(t)
	g := NewConjunctionGraph(anc.program)

	_, err := g.Node(anc.rec)
	require.NoError(t, err)
	before := g.component[int64(anc.rec.ID())]

	q := conjunction(t, "q", concludable(kwAncestor, v("?a"), v("?b")))
	_, err = g.Node(q)
	require.NoError(t, err)
	assert.Equal(t, before, g.component[int64(anc.rec.ID())])
	assert.False(t, g.SameComponent(q, anc.rec))
}

func TestGraphRejectsRecursionThroughNegation(t *testing.T) {
	kwP, kwR := datalog.NewKeyword(":p"), datalog.NewKeyword(":r")
	branch := conjunction(t, "branch", concludable(kwP, v("?x")))
	body := conjunction(t, "body", retrievable(kwR, v("?x")), logic.NewNegated(branch))
	rule, err := logic.NewRule("p", concludable(kwP, v("?x")), body)
	require.NoError(t, err)

	g := NewConjunctionGraph(logic.NewProgram(rule))
	_, err = g.Node(body)
	require.Error(t, err)
	assert.True(t, errors.IsAssertionFailure(err))
}

func TestGraphDOT(t *testing.T) {
	m := newMutualProgram(t)
	g := NewConjunctionGraph(m.program)
	_, err := g.Node(m.a)
	require.NoError(t, err)

	out, err := g.DOT("calls")
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "digraph calls")
	assert.Contains(t, text, "A")
	assert.Contains(t, text, "B")
	assert.Contains(t, text, "red")
}
