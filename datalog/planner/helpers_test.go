package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/logic"
	"github.com/wbrown/janus-reasoner/datalog/stats"
)

var (
	kwParent    = datalog.NewKeyword(":parent")
	kwPerson    = datalog.NewKeyword(":person")
	kwAncestor  = datalog.NewKeyword(":ancestor")
	kwBanned    = datalog.NewKeyword(":banned")
	kwSuspended = datalog.NewKeyword(":suspended")
)

func v(name string) datalog.Variable { return datalog.Var(name) }

func retrievable(rel datalog.Keyword, args ...datalog.Term) *logic.Retrievable {
	return logic.NewRetrievable(rel, args...)
}

func concludable(rel datalog.Keyword, args ...datalog.Term) *logic.Concludable {
	return logic.NewConcludable(rel, args...)
}

func conjunction(t testing.TB, name string, rs ...logic.Resolvable) *logic.Conjunction {
	t.Helper()
	c, err := logic.NewConjunction(name, rs)
	require.NoError(t, err)
	return c
}

func familyStats() *stats.Table {
	return stats.NewTable(
		stats.Relation{Name: kwParent, Count: 1000, Distinct: []float64{400, 500}},
		stats.Relation{Name: kwPerson, Count: 800, Distinct: []float64{800}},
		stats.Relation{Name: kwBanned, Count: 10, Distinct: []float64{10}},
		stats.Relation{Name: kwSuspended, Count: 40, Distinct: []float64{20, 5}},
	)
}

// ancestorProgram is the textbook transitive closure:
//
//	(ancestor ?x ?y) :- [parent ?x ?y]
//	(ancestor ?x ?y) :- [parent ?x ?z] (ancestor ?z ?y)
type ancestorProgram struct {
	program *logic.Program
	base    *logic.Conjunction
	rec     *logic.Conjunction
	recCall *logic.Concludable
}

func newAncestorProgram(t testing.TB) ancestorProgram {
	t.Helper()
	base := conjunction(t, "ancestor-base", retrievable(kwParent, v("?x"), v("?y")))
	recCall := concludable(kwAncestor, v("?z"), v("?y"))
	rec := conjunction(t, "ancestor-rec", retrievable(kwParent, v("?x"), v("?z")), recCall)

	r1, err := logic.NewRule("base", concludable(kwAncestor, v("?x"), v("?y")), base)
	require.NoError(t, err)
	r2, err := logic.NewRule("rec", concludable(kwAncestor, v("?x"), v("?y")), rec)
	require.NoError(t, err)

	return ancestorProgram{program: logic.NewProgram(r1, r2), base: base, rec: rec, recCall: recCall}
}

// mutualProgram is a two-fragment cycle:
//
//	(p ?x ?y) :- [edge ?x ?z] (q ?z ?y)    fragment A
//	(q ?x ?y) :- [link ?x ?z] (p ?z ?y)    fragment B
type mutualProgram struct {
	program *logic.Program
	a, b    *logic.Conjunction
	callQ   *logic.Concludable
	callP   *logic.Concludable
	stats   *stats.Table
}

func newMutualProgram(t testing.TB) mutualProgram {
	t.Helper()
	kwP, kwQ := datalog.NewKeyword(":p"), datalog.NewKeyword(":q")
	kwEdge, kwLink := datalog.NewKeyword(":edge"), datalog.NewKeyword(":link")

	callQ := concludable(kwQ, v("?z"), v("?y"))
	a := conjunction(t, "A", retrievable(kwEdge, v("?x"), v("?z")), callQ)
	callP := concludable(kwP, v("?z"), v("?y"))
	b := conjunction(t, "B", retrievable(kwLink, v("?x"), v("?z")), callP)

	rp, err := logic.NewRule("p", concludable(kwP, v("?x"), v("?y")), a)
	require.NoError(t, err)
	rq, err := logic.NewRule("q", concludable(kwQ, v("?x"), v("?y")), b)
	require.NoError(t, err)

	return mutualProgram{
		program: logic.NewProgram(rp, rq),
		a:       a,
		b:       b,
		callQ:   callQ,
		callP:   callP,
		stats: stats.NewTable(
			stats.Relation{Name: kwP, Count: 200, Distinct: []float64{100, 100}},
			stats.Relation{Name: kwQ, Count: 300, Distinct: []float64{150, 150}},
			stats.Relation{Name: kwEdge, Count: 1000, Distinct: []float64{500, 500}},
			stats.Relation{Name: kwLink, Count: 600, Distinct: []float64{300, 300}},
		),
	}
}

func orderingStrings(ordering []logic.Resolvable) []string {
	out := make([]string, len(ordering))
	for i, r := range ordering {
		out[i] = r.String()
	}
	return out
}

// isPermutation reports whether ordering schedules every resolvable of conj exactly once
func isPermutation(conj *logic.Conjunction, ordering []logic.Resolvable) bool {
	if len(ordering) != conj.Len() {
		return false
	}
	seen := make(map[logic.Resolvable]bool)
	for _, r := range ordering {
		if !conj.Contains(r) || seen[r] {
			return false
		}
		seen[r] = true
	}
	return true
}
