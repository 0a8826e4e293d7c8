package main

import (
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-reasoner/datalog/parser"
	"github.com/wbrown/janus-reasoner/datalog/planner"
)

func newGraphCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "graph <program.edn> [query...]",
		Short: "Print the rule call graph reachable from the queries as DOT",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := parser.ParseFile(args[0])
			if err != nil {
				return err
			}
			queries, err := selectQueries(prog, &planFlags{}, args[1:])
			if err != nil {
				return err
			}

			g := planner.NewConjunctionGraph(prog.Rules)
			for _, q := range queries {
				if _, err := g.Node(q.Conjunction); err != nil {
					return err
				}
			}
			out, err := g.DOT("calls")
			if err != nil {
				return err
			}
			e.logger.Debug("rendered call graph")
			_, err = cmd.OutOrStdout().Write(append(out, '\n'))
			return err
		},
	}
}
