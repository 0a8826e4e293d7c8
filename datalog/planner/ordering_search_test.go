package planner

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/logic"
)

func TestOrderingSearch(t *testing.T) {
	kwA, kwB := datalog.NewKeyword(":a"), datalog.NewKeyword(":b")

	t.Run("independent resolvables are tried in one order", func(t *testing.T) {
		a := retrievable(kwA, v("?x"))
		b := retrievable(kwB, v("?y"))
		q := conjunction(t, "q", a, b)

		orderings, err := NewPartialOrderReductionSearch(q, datalog.EmptyVariables).AllOrderings()
		require.NoError(t, err)
		require.Len(t, orderings, 1)
		assert.True(t, isPermutation(q, orderings[0]))
	})

	t.Run("sharing resolvables are tried in both orders", func(t *testing.T) {
		a := retrievable(kwA, v("?x"), v("?y"))
		b := retrievable(kwB, v("?y"), v("?z"))
		q := conjunction(t, "q", a, b)

		orderings, err := NewPartialOrderReductionSearch(q, datalog.EmptyVariables).AllOrderings()
		require.NoError(t, err)
		require.Len(t, orderings, 2)
		assert.Equal(t, []logic.Resolvable{a, b}, orderings[0])
		assert.Equal(t, []logic.Resolvable{b, a}, orderings[1])
	})

	t.Run("bound variables are preferred", func(t *testing.T) {
		a := retrievable(kwA, v("?x"), v("?y"))
		b := retrievable(kwB, v("?z"), v("?w"))
		q := conjunction(t, "q", b, a)

		orderings, err := NewPartialOrderReductionSearch(q, datalog.NewVariableSet("?x")).AllOrderings()
		require.NoError(t, err)
		require.Len(t, orderings, 1)
		assert.Equal(t, []logic.Resolvable{a, b}, orderings[0])
	})

	t.Run("fixed variables count as bound", func(t *testing.T) {
		a := retrievable(kwA, v("?x"), v("?y"))
		b := retrievable(kwB, v("?z"), v("?w"))
		q, err := logic.NewConjunction("q", []logic.Resolvable{a, b}, "?z")
		require.NoError(t, err)

		orderings, err := NewPartialOrderReductionSearch(q, datalog.EmptyVariables).AllOrderings()
		require.NoError(t, err)
		require.Len(t, orderings, 1)
		assert.Equal(t, []logic.Resolvable{b, a}, orderings[0])
	})

	t.Run("negation waits for its shared variables", func(t *testing.T) {
		a := retrievable(kwA, v("?x"))
		neg := logic.NewNegated(conjunction(t, "branch", retrievable(kwB, v("?x"))))
		q := conjunction(t, "q", neg, a)

		orderings, err := NewPartialOrderReductionSearch(q, datalog.EmptyVariables).AllOrderings()
		require.NoError(t, err)
		require.Len(t, orderings, 1)
		assert.Equal(t, []logic.Resolvable{a, neg}, orderings[0])
	})

	t.Run("empty conjunction has one empty ordering", func(t *testing.T) {
		q := conjunction(t, "empty")
		orderings, err := NewPartialOrderReductionSearch(q, datalog.EmptyVariables).AllOrderings()
		require.NoError(t, err)
		require.Len(t, orderings, 1)
		assert.Empty(t, orderings[0])
	})

	t.Run("unsatisfiable requirement is an internal error", func(t *testing.T) {
		a := retrievable(kwA, v("?x")).WithRequires("?missing")
		q := conjunction(t, "q", a)

		_, err := NewPartialOrderReductionSearch(q, datalog.EmptyVariables).AllOrderings()
		require.Error(t, err)
		assert.True(t, errors.IsAssertionFailure(err))
	})

	t.Run("requirement satisfied by an earlier resolvable", func(t *testing.T) {
		a := retrievable(kwA, v("?x"))
		b := retrievable(kwB, v("?x"), v("?y")).WithRequires("?x")
		q := conjunction(t, "q", b, a)

		orderings, err := NewPartialOrderReductionSearch(q, datalog.EmptyVariables).AllOrderings()
		require.NoError(t, err)
		require.Len(t, orderings, 1)
		assert.Equal(t, []logic.Resolvable{a, b}, orderings[0])
	})
}
