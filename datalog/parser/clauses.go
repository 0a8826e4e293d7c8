package parser

import (
	"fmt"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/edn"
	"github.com/wbrown/janus-reasoner/datalog/logic"
)

// bodyParser turns clause nodes into resolvables. Anonymous variables are
// numbered across one rule or query, negation branches included.
type bodyParser struct {
	derived  func(relation string) bool
	anon     int
	branches int
}

func (b *bodyParser) conjunction(name string, clauses []*edn.Node) (*logic.Conjunction, error) {
	var resolvables []logic.Resolvable
	var fixed []datalog.Symbol
	for _, clause := range clauses {
		r, fixedVar, err := b.clause(name, clause)
		if err != nil {
			return nil, err
		}
		if r != nil {
			resolvables = append(resolvables, r)
		}
		if fixedVar != "" {
			fixed = append(fixed, fixedVar)
		}
	}
	return logic.NewConjunction(name, resolvables, fixed...)
}

// clause parses one clause. A fixing constraint yields no resolvable, only
// the variable it fixes.
func (b *bodyParser) clause(name string, node *edn.Node) (logic.Resolvable, datalog.Symbol, error) {
	switch node.Kind {
	case edn.Vector:
		if len(node.Children) == 1 && node.Children[0].Kind == edn.List {
			v, err := b.fixing(node.Children[0])
			return nil, v, err
		}
		if len(node.Children) == 0 {
			return nil, "", node.Errorf("empty lookup")
		}
		rel, err := node.Children[0].AsKeyword()
		if err != nil {
			return nil, "", err
		}
		args, err := b.atomArgs(node.Children[1:])
		if err != nil {
			return nil, "", err
		}
		return logic.NewRetrievable(datalog.NewKeyword(rel), args...), "", nil

	case edn.List:
		if len(node.Children) == 0 {
			return nil, "", node.Errorf("empty rule call")
		}
		head, err := node.Children[0].AsSymbol()
		if err != nil {
			return nil, "", err
		}
		if head == "not" {
			n, err := b.negation(name, node)
			return n, "", err
		}
		rel := ":" + head
		if !b.derived(rel) {
			return nil, "", node.Children[0].Errorf("no rule derives %s", head)
		}
		args, err := b.atomArgs(node.Children[1:])
		if err != nil {
			return nil, "", err
		}
		return logic.NewConcludable(datalog.NewKeyword(rel), args...), "", nil

	default:
		return nil, "", node.Errorf("expected clause, found %s %s", node.Kind, node)
	}
}

func (b *bodyParser) negation(name string, node *edn.Node) (*logic.Negated, error) {
	body := node.Children[1:]
	if len(body) == 0 {
		return nil, node.Errorf("empty negation")
	}

	var groups [][]*edn.Node
	if isAnd(body[0]) {
		for _, g := range body {
			if !isAnd(g) {
				return nil, g.Errorf("negation mixes (and ...) branches with plain clauses")
			}
			groups = append(groups, g.Children[1:])
		}
	} else {
		groups = [][]*edn.Node{body}
	}

	branches := make([]*logic.Conjunction, 0, len(groups))
	for _, g := range groups {
		b.branches++
		branch, err := b.conjunction(fmt.Sprintf("%s/not%d", name, b.branches), g)
		if err != nil {
			return nil, err
		}
		branches = append(branches, branch)
	}
	return logic.NewNegated(branches...), nil
}

func isAnd(n *edn.Node) bool {
	return n.Kind == edn.List && len(n.Children) > 0 &&
		n.Children[0].Kind == edn.Symbol && n.Children[0].Text == "and"
}

// fixing parses (= ?v constant) and returns ?v
func (b *bodyParser) fixing(node *edn.Node) (datalog.Symbol, error) {
	if len(node.Children) != 3 || node.Children[0].Kind != edn.Symbol || node.Children[0].Text != "=" {
		return "", node.Errorf("expected (= ?var constant), found %s", node)
	}
	lhs, rhs := node.Children[1], node.Children[2]
	if rhs.Kind == edn.Symbol && lhs.Kind != edn.Symbol {
		lhs, rhs = rhs, lhs
	}
	v, err := lhs.AsSymbol()
	if err != nil || !datalog.Symbol(v).IsVariable() {
		return "", lhs.Errorf("expected a variable, found %s", lhs)
	}
	if _, err := rhs.Value(); err != nil || rhs.Kind == edn.Symbol {
		return "", rhs.Errorf("expected a constant, found %s", rhs)
	}
	return datalog.Symbol(v), nil
}

func (b *bodyParser) atomArgs(nodes []*edn.Node) ([]datalog.Term, error) {
	args := make([]datalog.Term, 0, len(nodes))
	for _, n := range nodes {
		t, err := b.term(n)
		if err != nil {
			return nil, err
		}
		args = append(args, t)
	}
	return args, nil
}

func (b *bodyParser) term(n *edn.Node) (datalog.Term, error) {
	if n.Kind == edn.Symbol {
		switch {
		case n.Text == "_":
			b.anon++
			return datalog.Var(fmt.Sprintf("?_%d", b.anon)), nil
		case datalog.Symbol(n.Text).IsVariable():
			return datalog.Var(n.Text), nil
		default:
			return nil, n.Errorf("symbol %s is neither a variable nor _", n.Text)
		}
	}
	if n.Kind == edn.Keyword {
		return datalog.Const(datalog.NewKeyword(n.Text)), nil
	}
	v, err := n.Value()
	if err != nil {
		return nil, err
	}
	return datalog.Const(v), nil
}
