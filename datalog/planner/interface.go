package planner

import (
	"github.com/cockroachdb/errors"

	"github.com/wbrown/janus-reasoner/datalog/stats"
)

// ReasonerPlanner is the interface every planner implements
type ReasonerPlanner interface {
	// Plan returns the ordering and estimated cost of a call mode
	Plan(cm CallMode) (Plan, error)
}

// Ensure both planners implement the interface
var _ ReasonerPlanner = (*RecursivePlanner)(nil)
var _ ReasonerPlanner = (*GreedyPlanner)(nil)

// Planner kinds accepted by New
const (
	KindRecursive = "recursive"
	KindGreedy    = "greedy"
)

// New creates a planner of the given kind
func New(kind string, rules RuleSource, source stats.Source, options Options) (ReasonerPlanner, error) {
	switch kind {
	case KindRecursive, "":
		return NewRecursivePlanner(rules, source, options), nil
	case KindGreedy:
		return NewGreedyPlanner(rules, source), nil
	default:
		return nil, errors.Newf("unknown planner kind %q (want %s or %s)", kind, KindRecursive, KindGreedy)
	}
}
