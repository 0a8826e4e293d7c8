package planner

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/annotations"
	"github.com/wbrown/janus-reasoner/datalog/logic"
)

// RuleSource enumerates the rules that may answer a concludable.
// *logic.Program implements it.
type RuleSource interface {
	Rules(c *logic.Concludable) []*logic.Rule
}

// CallMode is the unit of planning: a conjunction together with the
// variables its caller has already bound.
type CallMode struct {
	Conjunction *logic.Conjunction
	Mode        datalog.VariableSet
}

// NewCallMode creates a call mode, dropping bound variables the
// conjunction does not mention.
func NewCallMode(conj *logic.Conjunction, bound ...datalog.Symbol) CallMode {
	return CallMode{
		Conjunction: conj,
		Mode:        datalog.NewVariableSet(bound...).Intersect(conj.Variables()),
	}
}

// Key identifies the call mode within a planning session
func (cm CallMode) Key() string {
	return cm.Conjunction.Key() + "|" + cm.Mode.Key()
}

func (cm CallMode) String() string {
	return fmt.Sprintf("%s%s", cm.Conjunction.Name(), cm.Mode)
}

// Plan is the chosen ordering of a call mode's resolvables and its
// estimated cost, rounded up.
type Plan struct {
	Ordering []logic.Resolvable
	Cost     int64
}

func (p Plan) clone() Plan {
	ordering := make([]logic.Resolvable, len(p.Ordering))
	copy(ordering, p.Ordering)
	return Plan{Ordering: ordering, Cost: p.Cost}
}

func (p Plan) String() string {
	parts := make([]string, len(p.Ordering))
	for i, r := range p.Ordering {
		parts[i] = r.String()
	}
	return fmt.Sprintf("cost=%d [%s]", p.Cost, strings.Join(parts, " "))
}

// Options configures a planner session
type Options struct {
	// Logger receives debug output about ordering choices and committed plans.
	// Nil means no logging.
	Logger *zap.Logger

	// Annotations receives planning events. Handler panics are swallowed.
	Annotations annotations.Handler

	// MaxOrderingsWarning logs a warning when a single call mode yields more
	// orderings than this. Zero disables the warning. Orderings are never pruned.
	MaxOrderingsWarning int
}

// DefaultOptions returns the options used when none are supplied
func DefaultOptions() Options {
	return Options{
		Logger:              zap.NewNop(),
		MaxOrderingsWarning: 1000,
	}
}
