package main

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/wbrown/janus-reasoner/datalog/parser"
	"github.com/wbrown/janus-reasoner/datalog/stats"
	"github.com/wbrown/janus-reasoner/datalog/storage"
)

func newStatsCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Manage the relation statistics database",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <program.edn>",
		Short: "Store the :relations of a program in the statistics database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prog, err := parser.ParseFile(args[0])
			if err != nil {
				return err
			}
			store, err := e.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Import(prog.Stats); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d relations\n", len(prog.Stats.Relations()))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "List the relations in the statistics database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := e.openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			table, err := store.Snapshot()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), relationsTable(table))
			return nil
		},
	})
	return cmd
}

func (e *env) openStore() (*storage.StatsStore, error) {
	dir := e.config.GetString(statsDBFlag)
	if dir == "" {
		return nil, errors.New("no statistics database; set --stats-db or REASONER_STATS_DB")
	}
	return storage.Open(dir, storage.Options{Logger: e.logger})
}

func relationsTable(t *stats.Table) string {
	sb := &strings.Builder{}
	table := tablewriter.NewTable(sb,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment([]tw.Align{tw.AlignNone, tw.AlignRight, tw.AlignNone}),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"Relation", "Count", "Distinct"})
	for _, r := range t.Relations() {
		distinct := make([]string, len(r.Distinct))
		for i, d := range r.Distinct {
			distinct[i] = fmt.Sprintf("%.0f", d)
		}
		table.Append([]string{r.Name.String(), fmt.Sprintf("%.0f", r.Count), strings.Join(distinct, " ")})
	}
	table.Render()
	return sb.String()
}
