package planner

import (
	"sort"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/wbrown/janus-reasoner/datalog/logic"
)

// ConjunctionNode is the dependency summary of one conjunction: which rule
// bodies each of its concludables may invoke, split by whether the call
// closes a cycle back to this conjunction.
type ConjunctionNode struct {
	conjunction        *logic.Conjunction
	cyclic             map[*logic.Concludable][]*logic.Conjunction
	acyclic            map[*logic.Concludable][]*logic.Conjunction
	cyclicConcludables []*logic.Concludable
	isCyclic           map[*logic.Concludable]bool
}

// Conjunction returns the conjunction the node describes
func (n *ConjunctionNode) Conjunction() *logic.Conjunction { return n.conjunction }

// CyclicDependencies returns the rule bodies reachable from c that can call back into this conjunction
func (n *ConjunctionNode) CyclicDependencies(c *logic.Concludable) []*logic.Conjunction {
	return n.cyclic[c]
}

// AcyclicDependencies returns the rule bodies reachable from c that cannot
func (n *ConjunctionNode) AcyclicDependencies(c *logic.Concludable) []*logic.Conjunction {
	return n.acyclic[c]
}

// cyclicBody returns a filter accepting the bodies that c reaches cyclically
func (n *ConjunctionNode) cyclicBody(c *logic.Concludable) func(*logic.Conjunction) bool {
	return func(body *logic.Conjunction) bool {
		for _, b := range n.cyclic[c] {
			if b == body {
				return true
			}
		}
		return false
	}
}

// acyclicBody returns a filter accepting the bodies that c reaches acyclically
func (n *ConjunctionNode) acyclicBody(c *logic.Concludable) func(*logic.Conjunction) bool {
	cyclic := n.cyclicBody(c)
	return func(body *logic.Conjunction) bool { return !cyclic(body) }
}

// IsCyclic reports whether c has at least one cyclic dependency
func (n *ConjunctionNode) IsCyclic(c *logic.Concludable) bool {
	return n.isCyclic[c]
}

// CyclicConcludables returns the cyclic concludables in declaration order
func (n *ConjunctionNode) CyclicConcludables() []*logic.Concludable {
	return n.cyclicConcludables
}

// ConjunctionGraph is the call graph between conjunctions induced by
// concludable → rule body and negation → branch edges. It is explored
// lazily, one reachable region at a time, and never changes once a
// conjunction has been classified.
type ConjunctionGraph struct {
	rules     RuleSource
	calls     *simple.DirectedGraph
	nodes     map[*logic.Conjunction]*ConjunctionNode
	fragments map[int64]*logic.Conjunction
	component map[int64]int
	nextComp  int
}

// NewConjunctionGraph creates an empty graph over rules
func NewConjunctionGraph(rules RuleSource) *ConjunctionGraph {
	return &ConjunctionGraph{
		rules:     rules,
		calls:     simple.NewDirectedGraph(),
		nodes:     make(map[*logic.Conjunction]*ConjunctionNode),
		fragments: make(map[int64]*logic.Conjunction),
		component: make(map[int64]int),
	}
}

// Node returns the dependency summary of conj, exploring the part of the
// program reachable from it on first request.
func (g *ConjunctionGraph) Node(conj *logic.Conjunction) (*ConjunctionNode, error) {
	if n, ok := g.nodes[conj]; ok {
		return n, nil
	}
	explored := g.explore(conj)
	g.classifyComponents()

	for _, c := range explored {
		n, err := g.buildNode(c)
		if err != nil {
			return nil, err
		}
		g.nodes[c] = n
	}
	return g.nodes[conj], nil
}

// SameComponent reports whether a and b are mutually reachable. Both must
// have been explored.
func (g *ConjunctionGraph) SameComponent(a, b *logic.Conjunction) bool {
	ca, okA := g.component[int64(a.ID())]
	cb, okB := g.component[int64(b.ID())]
	return okA && okB && ca == cb
}

// explore adds every conjunction reachable from root that is not yet in the
// graph, returning them in discovery order. Already classified regions are
// closed under reachability, so the walk stops at them.
func (g *ConjunctionGraph) explore(root *logic.Conjunction) []*logic.Conjunction {
	var discovered []*logic.Conjunction
	queue := []*logic.Conjunction{root}
	g.addFragment(root)
	discovered = append(discovered, root)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, callee := range g.callees(current) {
			if _, known := g.fragments[int64(callee.ID())]; !known {
				g.addFragment(callee)
				discovered = append(discovered, callee)
				queue = append(queue, callee)
			}
			if callee != current {
				g.calls.SetEdge(g.calls.NewEdge(g.calls.Node(int64(current.ID())), g.calls.Node(int64(callee.ID()))))
			}
		}
	}
	return discovered
}

func (g *ConjunctionGraph) addFragment(c *logic.Conjunction) {
	g.fragments[int64(c.ID())] = c
	g.calls.AddNode(simple.Node(int64(c.ID())))
}

// callees lists the conjunctions c may invoke, in declaration order
func (g *ConjunctionGraph) callees(c *logic.Conjunction) []*logic.Conjunction {
	var out []*logic.Conjunction
	for _, r := range c.Resolvables() {
		switch res := r.(type) {
		case *logic.Concludable:
			for _, rule := range g.rules.Rules(res) {
				out = append(out, rule.Body)
			}
		case *logic.Negated:
			out = append(out, res.Branches...)
		}
	}
	return out
}

// classifyComponents assigns a component to every node that lacks one.
// Existing assignments are stable: adding a region never merges it with an
// earlier one, since earlier regions cannot reach it.
func (g *ConjunctionGraph) classifyComponents() {
	sccs := topo.TarjanSCC(g.calls)
	for _, scc := range sccs {
		if _, done := g.component[scc[0].ID()]; done {
			continue
		}
		g.nextComp++
		for _, n := range scc {
			g.component[n.ID()] = g.nextComp
		}
	}
}

func (g *ConjunctionGraph) buildNode(c *logic.Conjunction) (*ConjunctionNode, error) {
	n := &ConjunctionNode{
		conjunction: c,
		cyclic:      make(map[*logic.Concludable][]*logic.Conjunction),
		acyclic:     make(map[*logic.Concludable][]*logic.Conjunction),
		isCyclic:    make(map[*logic.Concludable]bool),
	}
	for _, r := range c.Resolvables() {
		switch res := r.(type) {
		case *logic.Concludable:
			for _, rule := range g.rules.Rules(res) {
				if g.SameComponent(c, rule.Body) {
					n.cyclic[res] = append(n.cyclic[res], rule.Body)
					if !n.isCyclic[res] {
						n.isCyclic[res] = true
						n.cyclicConcludables = append(n.cyclicConcludables, res)
					}
				} else {
					n.acyclic[res] = append(n.acyclic[res], rule.Body)
				}
			}
		case *logic.Negated:
			for _, branch := range res.Branches {
				if g.SameComponent(c, branch) {
					return nil, errors.AssertionFailedf(
						"negation %s in %s is recursive through its own branch %s",
						res, c.Name(), branch.Name())
				}
			}
		}
	}
	return n, nil
}

// dotNode and dotEdge decorate the call graph for rendering
type dotNode struct {
	id    int64
	label string
}

func (n dotNode) ID() int64      { return n.id }
func (n dotNode) DOTID() string { return n.label }

type dotEdge struct {
	from, to graph.Node
	cyclic   bool
}

func (e dotEdge) From() graph.Node         { return e.from }
func (e dotEdge) To() graph.Node           { return e.to }
func (e dotEdge) ReversedEdge() graph.Edge { return dotEdge{from: e.to, to: e.from, cyclic: e.cyclic} }
func (e dotEdge) Attributes() []encoding.Attribute {
	if e.cyclic {
		return []encoding.Attribute{{Key: "style", Value: "bold"}, {Key: "color", Value: "red"}}
	}
	return nil
}

// DOT renders the explored call graph in Graphviz format. Edges inside a
// strongly connected component are drawn bold red.
func (g *ConjunctionGraph) DOT(name string) ([]byte, error) {
	out := simple.NewDirectedGraph()
	ids := make([]int64, 0, len(g.fragments))
	for id := range g.fragments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	nodes := make(map[int64]dotNode, len(ids))
	for _, id := range ids {
		n := dotNode{id: id, label: g.fragments[id].Name()}
		nodes[id] = n
		out.AddNode(n)
	}
	edges := g.calls.Edges()
	for edges.Next() {
		e := edges.Edge()
		from, to := e.From().ID(), e.To().ID()
		out.SetEdge(dotEdge{
			from:   nodes[from],
			to:     nodes[to],
			cyclic: g.component[from] == g.component[to],
		})
	}
	b, err := dot.Marshal(out, name, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "rendering call graph")
	}
	return b, nil
}
