package main

import (
	"time"

	"go.uber.org/zap"

	"github.com/wbrown/janus-reasoner/datalog/annotations"
	"github.com/wbrown/janus-reasoner/datalog/parser"
	"github.com/wbrown/janus-reasoner/datalog/stats"
	"github.com/wbrown/janus-reasoner/datalog/storage"
)

// loadProgram parses a program file and resolves the statistics it is
// planned against: the stats database, if configured, overlaid with the
// relations the program declares inline.
func (e *env) loadProgram(path string) (*parser.Program, *stats.Table, error) {
	prog, err := parser.ParseFile(path)
	if err != nil {
		return nil, nil, err
	}

	start := time.Now()
	table := stats.NewTable()
	if dir := e.config.GetString(statsDBFlag); dir != "" {
		table, err = e.snapshot(dir)
		if err != nil {
			return nil, nil, err
		}
	}
	for _, r := range prog.Stats.Relations() {
		table.Put(r)
	}

	relations := len(table.Relations())
	e.logger.Debug("statistics resolved",
		zap.String("program", path),
		zap.Int("relations", relations))
	annotations.NewCollector(e.annotations()).AddTiming(annotations.StatsLoaded, start, map[string]interface{}{
		"relations.count": relations,
	})
	return prog, table, nil
}

func (e *env) snapshot(dir string) (*stats.Table, error) {
	store, err := storage.Open(dir, storage.Options{Logger: e.logger})
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Snapshot()
}
