package main

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/parser"
	"github.com/wbrown/janus-reasoner/datalog/planner"
)

type planFlags struct {
	where   string
	bound   string
	explain bool
	all     bool
}

func newPlanCommand(e *env) *cobra.Command {
	f := &planFlags{}
	cmd := &cobra.Command{
		Use:   "plan <program.edn> [query...]",
		Short: "Plan the queries of a program",
		Long: `Plan every query of the program, or only the named ones. With --where the
given clauses are planned instead, against the program's rules.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.runPlan(cmd.OutOrStdout(), f, args[0], args[1:])
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.where, "where", "", "plan these clauses instead of the program's queries")
	flags.StringVar(&f.bound, "bound", "", "variables bound by the caller of --where, e.g. \"[?x]\"")
	flags.BoolVar(&f.explain, "explain", false, "show the ordering choices behind each plan")
	flags.BoolVar(&f.all, "all", false, "also list every call mode planned along the way")
	return cmd
}

func (e *env) runPlan(out io.Writer, f *planFlags, path string, names []string) error {
	prog, table, err := e.loadProgram(path)
	if err != nil {
		return err
	}
	queries, err := selectQueries(prog, f, names)
	if err != nil {
		return err
	}

	kind := e.config.GetString(plannerFlag)
	p, err := planner.New(kind, prog.Rules, table, e.plannerOptions())
	if err != nil {
		return err
	}
	recursive, _ := p.(*planner.RecursivePlanner)
	if (f.explain || f.all) && recursive == nil {
		return errors.Newf("--explain and --all need the %s planner", planner.KindRecursive)
	}

	for _, q := range queries {
		cm := planner.NewCallMode(q.Conjunction, q.Bound...)
		if f.explain {
			explanation, err := recursive.Explain(cm)
			if err != nil {
				return errors.Wrapf(err, "planning %s", q.Name)
			}
			fmt.Fprintf(out, "## %s\n\n%s\n", q.Name, planner.ExplainTable(explanation))
			continue
		}
		plan, err := p.Plan(cm)
		if err != nil {
			return errors.Wrapf(err, "planning %s", q.Name)
		}
		fmt.Fprintf(out, "%s %s cost %d\n  %s\n", q.Name, cm, plan.Cost, planner.FormatOrdering(plan.Ordering))
	}

	if f.all {
		fmt.Fprintf(out, "\n%s", planner.PlansTable(recursive))
	}
	return nil
}

// selectQueries picks what to plan: the --where clauses, the named
// queries, or every query in source order.
func selectQueries(prog *parser.Program, f *planFlags, names []string) ([]*parser.Query, error) {
	if f.where != "" {
		if len(names) > 0 {
			return nil, errors.New("--where cannot be combined with query names")
		}
		conj, err := parser.ParseWhere("where", f.where, prog.Rules)
		if err != nil {
			return nil, err
		}
		var bound []datalog.Symbol
		if f.bound != "" {
			if bound, err = parser.ParseBound(f.bound); err != nil {
				return nil, err
			}
		}
		return []*parser.Query{{Name: "where", Conjunction: conj, Bound: bound}}, nil
	}
	if f.bound != "" {
		return nil, errors.New("--bound needs --where")
	}

	if len(names) == 0 {
		names = prog.QueryNames()
	}
	if len(names) == 0 {
		return nil, errors.New("program has no queries; use --where")
	}
	queries := make([]*parser.Query, 0, len(names))
	for _, name := range names {
		q, ok := prog.Queries[name]
		if !ok {
			return nil, errors.Newf("unknown query %q", name)
		}
		queries = append(queries, q)
	}
	return queries, nil
}
