package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/wbrown/janus-reasoner/datalog/logic"
)

// Explanation describes how a call mode's plan was chosen
type Explanation struct {
	CallMode      CallMode
	Plan          Plan
	Orderings     int               // orderings produced by the ordering search
	Choices       []*OrderingChoice // one per cyclic signature
	ScalingFactor float64           // amortised by recursive callers
}

// Explain plans cm if necessary and returns the plan together with the
// ordering choices it was selected from.
func (p *RecursivePlanner) Explain(cm CallMode) (*Explanation, error) {
	plan, err := p.Plan(cm)
	if err != nil {
		return nil, err
	}
	entry := p.entry(cm)
	choices := make([]*OrderingChoice, len(entry.choices))
	copy(choices, entry.choices)
	return &Explanation{
		CallMode:      cm,
		Plan:          plan,
		Orderings:     entry.orderings,
		Choices:       choices,
		ScalingFactor: p.cyclicScalingFactors[cm.Key()],
	}, nil
}

// PlannedCallModes returns every call mode with a committed plan, ordered by key
func (p *RecursivePlanner) PlannedCallModes() []CallMode {
	return p.cache.CallModes()
}

// FormatOrdering renders an ordering on one line
func FormatOrdering(ordering []logic.Resolvable) string {
	parts := make([]string, len(ordering))
	for i, r := range ordering {
		parts[i] = r.String()
	}
	return strings.Join(parts, " ")
}

// ExplainTable renders the ordering choices of an explanation as a markdown
// table, marking the chosen one.
func ExplainTable(e *Explanation) string {
	sb := &strings.Builder{}
	fmt.Fprintf(sb, "%s: cost %d, %d orderings, %d choices, scaling %.3f\n\n",
		e.CallMode, e.Plan.Cost, e.Orderings, len(e.Choices), e.ScalingFactor)

	alignment := []tw.Align{tw.AlignNone, tw.AlignNone, tw.AlignRight, tw.AlignRight, tw.AlignRight, tw.AlignNone}
	table := tablewriter.NewTable(sb,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"", "Ordering", "Acyclic", "Unscalable", "Answers", "Cyclic factors"})

	chosen := FormatOrdering(e.Plan.Ordering)
	for _, c := range e.Choices {
		ordering := FormatOrdering(c.Ordering)
		mark := ""
		if ordering == chosen {
			mark = "*"
		}
		table.Append([]string{
			mark,
			ordering,
			fmt.Sprintf("%.2f", c.AcyclicCost),
			fmt.Sprintf("%.2f", c.UnscalableCost),
			fmt.Sprintf("%.2f", c.AnswersToMode),
			formatFactors(c),
		})
	}
	table.Render()
	return sb.String()
}

// PlansTable renders every committed plan of a session as a markdown table
func PlansTable(p *RecursivePlanner) string {
	sb := &strings.Builder{}
	table := tablewriter.NewTable(sb,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment([]tw.Align{tw.AlignNone, tw.AlignRight, tw.AlignNone}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"Call mode", "Cost", "Ordering"})
	for _, cm := range p.PlannedCallModes() {
		plan, _ := p.cache.Get(cm)
		table.Append([]string{cm.String(), fmt.Sprintf("%d", plan.Cost), FormatOrdering(plan.Ordering)})
	}
	table.Render()
	return sb.String()
}

func formatFactors(c *OrderingChoice) string {
	if len(c.CyclicConcludableModes) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(c.CyclicConcludableModes))
	for _, cm := range c.CyclicConcludableModes {
		parts = append(parts, fmt.Sprintf("%s%s=%.3f", cm.Concludable, cm.Mode, c.ScalingFactors[cm.Concludable]))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
