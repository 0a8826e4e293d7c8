package planner

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/logic"
	"github.com/wbrown/janus-reasoner/datalog/stats"
)

var propertyVars = []string{"?a", "?b", "?c", "?d"}

// relation i of a generated fragment always has arity 1 + i%2
func genStats(t *rapid.T) *stats.Table {
	table := stats.NewTable()
	for i := 0; i < 4; i++ {
		count := float64(rapid.IntRange(1, 10000).Draw(t, fmt.Sprintf("count%d", i)))
		distinct := make([]float64, 1+i%2)
		for pos := range distinct {
			distinct[pos] = float64(rapid.IntRange(1, int(count)).Draw(t, fmt.Sprintf("distinct%d.%d", i, pos)))
		}
		table.Put(stats.Relation{Name: datalog.NewKeyword(fmt.Sprintf(":r%d", i)), Count: count, Distinct: distinct})
	}
	return table
}

func genRetrievable(t *rapid.T, label string) *logic.Retrievable {
	rel := rapid.IntRange(0, 3).Draw(t, label+".rel")
	args := make([]datalog.Term, 1+rel%2)
	for i := range args {
		if rapid.IntRange(0, 5).Draw(t, fmt.Sprintf("%s.const%d", label, i)) == 0 {
			args[i] = datalog.Const(int64(i))
		} else {
			args[i] = datalog.Var(rapid.SampledFrom(propertyVars).Draw(t, fmt.Sprintf("%s.var%d", label, i)))
		}
	}
	return logic.NewRetrievable(datalog.NewKeyword(fmt.Sprintf(":r%d", rel)), args...)
}

func genConjunction(t *rapid.T) *logic.Conjunction {
	n := rapid.IntRange(0, 4).Draw(t, "resolvables")
	resolvables := make([]logic.Resolvable, 0, n+1)
	for i := 0; i < n; i++ {
		resolvables = append(resolvables, genRetrievable(t, fmt.Sprintf("r%d", i)))
	}
	if rapid.Bool().Draw(t, "negated") {
		branches := rapid.IntRange(1, 2).Draw(t, "branches")
		var bs []*logic.Conjunction
		for i := 0; i < branches; i++ {
			bs = append(bs, logic.MustConjunction(fmt.Sprintf("branch%d", i),
				[]logic.Resolvable{genRetrievable(t, fmt.Sprintf("neg%d", i))}))
		}
		resolvables = append(resolvables, logic.NewNegated(bs...))
	}
	return logic.MustConjunction("generated", resolvables)
}

func genMode(t *rapid.T, conj *logic.Conjunction) datalog.VariableSet {
	var bound []datalog.Symbol
	for _, v := range conj.Variables().Symbols() {
		if rapid.Bool().Draw(t, "bind"+string(v)) {
			bound = append(bound, v)
		}
	}
	return datalog.NewVariableSet(bound...)
}

func TestOrderingsRespectDependencies(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		conj := genConjunction(t)
		mode := genMode(t, conj)

		orderings, err := NewPartialOrderReductionSearch(conj, mode).AllOrderings()
		require.NoError(t, err)
		require.NotEmpty(t, orderings)
		for _, ordering := range orderings {
			require.True(t, isPermutation(conj, ordering), "ordering %s", FormatOrdering(ordering))
			bound := mode
			for _, r := range ordering {
				require.True(t, dependencies(conj, r).SubsetOf(bound),
					"%s scheduled before its dependencies in %s", r, FormatOrdering(ordering))
				if _, negated := r.(*logic.Negated); !negated {
					bound = bound.Union(conj.VariablesOf(r))
				}
			}
		}
	})
}

func TestEstimateIsMonotoneInBindings(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		source := genStats(t)
		conj := genConjunction(t)
		smaller := genMode(t, conj)
		larger := smaller.Union(genMode(t, conj))
		e := newEstimator(logic.NewProgram(), source)

		few, err := e.EstimateAnswers(conj, smaller)
		require.NoError(t, err)
		more, err := e.EstimateAnswers(conj, larger)
		require.NoError(t, err)
		require.LessOrEqual(t, more, few*(1+1e-9), "binding %s on top of %s", larger, smaller)
		require.GreaterOrEqual(t, more, 0.0)
	})
}

func TestPlansAreValidAndStable(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		source := genStats(t)
		conj := genConjunction(t)
		cm := CallMode{Conjunction: conj, Mode: genMode(t, conj)}

		p := NewRecursivePlanner(logic.NewProgram(), source, DefaultOptions())
		plan, err := p.Plan(cm)
		require.NoError(t, err)
		require.True(t, isPermutation(conj, plan.Ordering))
		require.GreaterOrEqual(t, plan.Cost, int64(0))

		for _, planned := range p.PlannedCallModes() {
			e, err := p.Explain(planned)
			require.NoError(t, err)
			require.True(t, e.ScalingFactor >= 0 && e.ScalingFactor <= 1)
		}

		again := NewRecursivePlanner(logic.NewProgram(), source, DefaultOptions())
		other, err := again.Plan(cm)
		require.NoError(t, err)
		require.Equal(t, plan.String(), other.String())
	})
}

func TestScalingFactorsStayInUnitInterval(t *testing.T) {
	anc := newAncestorProgram(t)
	query := conjunction(t, "q", concludable(kwAncestor, v("?a"), v("?b")))

	rapid.Check(t, func(t *rapid.T) {
		prefix := rapid.Float64Range(0, 1e9).Draw(t, "prefix")
		total := rapid.Float64Range(0, 1e9).Draw(t, "total")
		f := scalingFactor(prefix, total)
		require.True(t, f >= 0 && f <= 1, "scalingFactor(%g, %g) = %g", prefix, total, f)

		count := float64(rapid.IntRange(1, 100000).Draw(t, "count"))
		source := stats.NewTable(stats.Relation{
			Name:  kwParent,
			Count: count,
			Distinct: []float64{
				float64(rapid.IntRange(1, int(count)).Draw(t, "from")),
				float64(rapid.IntRange(1, int(count)).Draw(t, "to")),
			},
		})
		p := NewRecursivePlanner(anc.program, source, DefaultOptions())
		_, err := p.Plan(CallMode{Conjunction: query, Mode: genMode(t, query)})
		require.NoError(t, err)

		for _, planned := range p.PlannedCallModes() {
			e, err := p.Explain(planned)
			require.NoError(t, err)
			require.True(t, e.ScalingFactor >= 0 && e.ScalingFactor <= 1, "%s: %g", planned, e.ScalingFactor)
			for _, c := range e.Choices {
				for conc, factor := range c.ScalingFactors {
					require.True(t, factor >= 0 && factor <= 1, "%s in %s: %g", conc, planned, factor)
				}
			}
		}
	})
}
