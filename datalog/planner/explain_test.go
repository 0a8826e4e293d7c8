package planner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-reasoner/datalog/logic"
)

func TestExplainTable(t *testing.T) {
	m := newMutualProgram(t)
	p := NewRecursivePlanner(m.program, m.stats, DefaultOptions())
	root := NewCallMode(m.a)

	e, err := p.Explain(root)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Orderings)
	assert.Len(t, e.Choices, 2, "the two orderings call B in different modes")

	out := ExplainTable(e)
	assert.True(t, strings.HasPrefix(out, "A[]: cost "), out)
	assert.Contains(t, out, "Ordering")
	assert.Contains(t, out, "Cyclic factors")
	assert.Contains(t, out, FormatOrdering(e.Plan.Ordering))
	assert.Equal(t, 1, strings.Count(out, "| *"), "exactly one chosen row:\n%s", out)
}

func TestPlansTable(t *testing.T) {
	parent := retrievable(kwParent, v("?x"), v("?y"))
	q := conjunction(t, "people", parent)
	p := NewRecursivePlanner(logic.NewProgram(), familyStats(), DefaultOptions())
	_, err := p.Plan(NewCallMode(q))
	require.NoError(t, err)

	out := PlansTable(p)
	assert.Contains(t, out, "Call mode")
	assert.Contains(t, out, "people[]")
	assert.Contains(t, out, "1000")
	assert.Contains(t, out, "[:parent ?x ?y]")
}

func TestFormatOrdering(t *testing.T) {
	a := retrievable(kwParent, v("?x"), v("?y"))
	b := retrievable(kwPerson, v("?y"))
	assert.Equal(t, "[:parent ?x ?y] [:person ?y]", FormatOrdering([]logic.Resolvable{a, b}))
	assert.Equal(t, "", FormatOrdering(nil))
}
