package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const familyProgram = `
{:relations [[:parent 1000 [400 500]]
             [:person 800 [800]]]
 :rules     [[(ancestor ?x ?y) [:parent ?x ?y]]
             [(ancestor ?x ?y) [:parent ?x ?z] (ancestor ?z ?y)]]
 :queries   {:parents     {:where [[:parent ?a ?b]]}
             :descendants {:where [(ancestor ?a ?d)] :bound [?a]}}}
`

func writeProgram(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "family.edn")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func run(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestPlanCommand(t *testing.T) {
	path := writeProgram(t, familyProgram)

	out, _, err := run(t, "plan", path, "parents")
	require.NoError(t, err)
	assert.Equal(t, "parents parents[] cost 1000\n  [:parent ?a ?b]\n", out)

	out, _, err = run(t, "plan", path)
	require.NoError(t, err)
	assert.Contains(t, out, "parents parents[] cost 1000")
	assert.Contains(t, out, "descendants descendants[?a] cost")
	assert.Contains(t, out, "(ancestor ?a ?d)")
}

func TestPlanWhere(t *testing.T) {
	path := writeProgram(t, familyProgram)

	out, _, err := run(t, "plan", path, "--where", "[[:parent ?x ?y] [:person ?y]]", "--bound", "[?x]")
	require.NoError(t, err)
	assert.Equal(t, "where where[?x] cost 1500\n  [:parent ?x ?y] [:person ?y]\n", out)

	_, _, err = run(t, "plan", path, "--bound", "[?x]")
	assert.ErrorContains(t, err, "--bound needs --where")

	_, _, err = run(t, "plan", path, "parents", "--where", "[[:parent ?x ?y]]")
	assert.Error(t, err)
}

func TestPlanExplainAndAll(t *testing.T) {
	path := writeProgram(t, familyProgram)

	out, _, err := run(t, "plan", path, "descendants", "--explain", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "## descendants")
	assert.Contains(t, out, "descendants[?a]: cost ")
	assert.Contains(t, out, "Call mode")
}

func TestPlanGreedy(t *testing.T) {
	path := writeProgram(t, familyProgram)

	out, _, err := run(t, "plan", path, "parents", "--planner", "greedy")
	require.NoError(t, err)
	assert.Contains(t, out, "[:parent ?a ?b]")

	_, _, err = run(t, "plan", path, "--planner", "greedy", "--explain")
	assert.ErrorContains(t, err, "recursive planner")

	_, _, err = run(t, "plan", path, "--planner", "magic")
	assert.ErrorContains(t, err, "unknown planner kind")
}

func TestPlanErrors(t *testing.T) {
	path := writeProgram(t, familyProgram)

	_, _, err := run(t, "plan", path, "nosuch")
	assert.ErrorContains(t, err, `unknown query "nosuch"`)

	_, _, err = run(t, "plan", filepath.Join(t.TempDir(), "missing.edn"))
	assert.Error(t, err)

	_, _, err = run(t, "plan", writeProgram(t, `{:relations [[:parent 10]]}`))
	assert.ErrorContains(t, err, "no queries")

	_, _, err = run(t, "plan", path, "--log-level", "loud")
	assert.ErrorContains(t, err, "unknown log level")
}

func TestPlanMetricsAndVerbose(t *testing.T) {
	path := writeProgram(t, familyProgram)

	_, errOut, err := run(t, "plan", path, "--metrics", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, errOut, `reasoner_plan_requests_total{outcome="computed"} 2`)
	assert.Contains(t, errOut, "reasoner_stats_loads_total 1")
	assert.Contains(t, errOut, "Loaded statistics")
}

func TestGraphCommand(t *testing.T) {
	path := writeProgram(t, familyProgram)

	out, _, err := run(t, "graph", path, "descendants")
	require.NoError(t, err)
	assert.Contains(t, out, "digraph calls")
	assert.Contains(t, out, "ancestor#1")
	assert.Contains(t, out, "ancestor#2")
	assert.NotContains(t, out, "red")

	mutual := writeProgram(t, `
{:relations [[:edge 100 [50 50]]]
 :rules     [[(reach ?x ?y) [:edge ?x ?y]]
             [(reach ?x ?y) (hop ?x ?y)]
             [(hop ?x ?y) [:edge ?x ?z] (reach ?z ?y)]]
 :queries   {:q {:where [(reach ?a ?b)]}}}`)
	out, _, err = run(t, "graph", mutual)
	require.NoError(t, err)
	assert.Contains(t, out, "hop#1")
	assert.Contains(t, out, "red")
}

func TestStatsImportAndShow(t *testing.T) {
	path := writeProgram(t, familyProgram)
	db := filepath.Join(t.TempDir(), "stats")

	_, _, err := run(t, "stats", "show")
	assert.ErrorContains(t, err, "no statistics database")

	out, _, err := run(t, "--stats-db", db, "stats", "import", path)
	require.NoError(t, err)
	assert.Equal(t, "imported 2 relations\n", out)

	out, _, err = run(t, "--stats-db", db, "stats", "show")
	require.NoError(t, err)
	assert.Contains(t, out, ":parent")
	assert.Contains(t, out, "400 500")
	assert.Contains(t, out, ":person")

	// The stored numbers stand in for a program without :relations
	bare := writeProgram(t, `{:queries {:q {:where [[:parent ?a ?b]]}}}`)
	out, _, err = run(t, "--stats-db", db, "plan", bare)
	require.NoError(t, err)
	assert.Equal(t, "q q[] cost 1000\n  [:parent ?a ?b]\n", out)
}

func TestStatsDBFromEnvironment(t *testing.T) {
	path := writeProgram(t, familyProgram)
	db := filepath.Join(t.TempDir(), "stats")
	t.Setenv("REASONER_STATS_DB", db)

	_, _, err := run(t, "stats", "import", path)
	require.NoError(t, err)
	out, _, err := run(t, "stats", "show")
	require.NoError(t, err)
	assert.Contains(t, out, ":parent")
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		for _, level := range []string{"none", "debug", "info", "warn", "error"} {
			logger, err := newLogger(format, level)
			require.NoError(t, err, "%s/%s", format, level)
			require.NotNil(t, logger)
		}
	}
	_, err := newLogger("xml", "info")
	assert.ErrorContains(t, err, "unknown log format")
}

func TestConfigFile(t *testing.T) {
	path := writeProgram(t, familyProgram)
	dir := t.TempDir()
	config := filepath.Join(dir, "reasoner.yaml")
	require.NoError(t, os.WriteFile(config, []byte("planner: magic\n"), 0o644))

	_, _, err := run(t, "--config", config, "plan", path)
	assert.ErrorContains(t, err, "unknown planner kind")

	// flags win over the file
	_, _, err = run(t, "--config", config, "--planner", "recursive", "plan", path)
	assert.NoError(t, err)

	_, _, err = run(t, "--config", filepath.Join(dir, "missing.yaml"), "plan", path)
	assert.Error(t, err)
}
