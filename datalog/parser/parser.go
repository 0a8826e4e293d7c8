// Package parser reads reasoner programs written in EDN.
//
// A program is a map with three optional entries:
//
//	{:relations [[:parent 1000 [400 500]]
//	             [:person 800]]
//	 :rules     [[(ancestor ?x ?y) [:parent ?x ?y]]
//	             [(ancestor ?x ?y) [:parent ?x ?z] (ancestor ?z ?y)]]
//	 :queries   {:descendants {:where [(ancestor ?a ?d)] :bound [?a]}}}
//
// :relations lists stored relations with their fact count and, optionally,
// distinct values per argument position. Each rule is a vector of a head
// followed by its body clauses. Body and query clauses are:
//
//	[:rel args...]             stored-fact lookup
//	(name args...)             rule call; name must head some rule
//	(not clause...)            negation with one branch
//	(not (and ...) (and ...))  negation with several branches
//	[(= ?v constant)]          ?v is fixed to a single value
//
// The symbol _ stands for a fresh variable at each occurrence.
package parser

import (
	"fmt"
	"os"

	"github.com/wbrown/janus-reasoner/datalog"
	"github.com/wbrown/janus-reasoner/datalog/edn"
	"github.com/wbrown/janus-reasoner/datalog/logic"
	"github.com/wbrown/janus-reasoner/datalog/stats"
)

// Program is a parsed program file
type Program struct {
	Rules   *logic.Program
	Stats   *stats.Table
	Queries map[string]*Query
	order   []string
}

// Query is a named conjunction to plan and the variables its caller binds
type Query struct {
	Name        string
	Conjunction *logic.Conjunction
	Bound       []datalog.Symbol
}

// QueryNames returns the query names in source order
func (p *Program) QueryNames() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// ParseFile reads and parses a program file
func ParseFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program: %w", err)
	}
	prog, err := ParseProgram(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// ParseProgram parses a program from EDN text
func ParseProgram(input string) (*Program, error) {
	node, err := edn.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("EDN parse error: %w", err)
	}
	if node.Kind != edn.Map {
		return nil, node.Errorf("program must be a map, got %s", node.Kind)
	}

	prog := &Program{
		Rules:   logic.NewProgram(),
		Stats:   stats.NewTable(),
		Queries: make(map[string]*Query),
	}
	var relations, rules, queries *edn.Node
	err = node.Pairs(func(key, value *edn.Node) error {
		kw, err := key.AsKeyword()
		if err != nil {
			return err
		}
		switch kw {
		case ":relations":
			relations = value
		case ":rules":
			rules = value
		case ":queries":
			queries = value
		default:
			return key.Errorf("unknown program section %s", kw)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if relations != nil {
		if err := parseRelations(relations, prog.Stats); err != nil {
			return nil, fmt.Errorf("relations: %w", err)
		}
	}
	heads := make(map[string]bool)
	if rules != nil {
		if err := parseRules(rules, prog.Rules, heads); err != nil {
			return nil, fmt.Errorf("rules: %w", err)
		}
	}
	if queries != nil {
		if err := parseQueries(queries, prog, heads); err != nil {
			return nil, fmt.Errorf("queries: %w", err)
		}
	}
	return prog, nil
}

// ParseWhere parses a vector of clauses into a conjunction. Rule calls must
// name a relation derived by rules.
func ParseWhere(name, input string, rules *logic.Program) (*logic.Conjunction, error) {
	node, err := edn.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("EDN parse error: %w", err)
	}
	clauses, err := node.Items()
	if err != nil {
		return nil, err
	}
	b := &bodyParser{derived: func(rel string) bool {
		return rules != nil && rules.Derives(datalog.NewKeyword(rel))
	}}
	return b.conjunction(name, clauses)
}

// ParseBound parses a vector of variables, e.g. [?a ?b]
func ParseBound(input string) ([]datalog.Symbol, error) {
	node, err := edn.Parse(input)
	if err != nil {
		return nil, fmt.Errorf("EDN parse error: %w", err)
	}
	return parseBound(node)
}

func parseRelations(node *edn.Node, table *stats.Table) error {
	items, err := node.Items()
	if err != nil {
		return err
	}
	for _, item := range items {
		parts, err := item.Items()
		if err != nil {
			return err
		}
		if len(parts) < 2 || len(parts) > 3 {
			return item.Errorf("relation entry must be [:name count] or [:name count [distinct...]]")
		}
		name, err := parts[0].AsKeyword()
		if err != nil {
			return err
		}
		count, err := parts[1].AsNumber()
		if err != nil {
			return err
		}
		if count < 0 {
			return parts[1].Errorf("negative count for %s", name)
		}
		r := stats.Relation{Name: datalog.NewKeyword(name), Count: count}
		if len(parts) == 3 {
			ds, err := parts[2].Items()
			if err != nil {
				return err
			}
			for _, d := range ds {
				v, err := d.AsNumber()
				if err != nil {
					return err
				}
				if v < 0 {
					return d.Errorf("negative distinct count for %s", name)
				}
				r.Distinct = append(r.Distinct, v)
			}
		}
		table.Put(r)
	}
	return nil
}

func parseRules(node *edn.Node, program *logic.Program, heads map[string]bool) error {
	items, err := node.Items()
	if err != nil {
		return err
	}

	// Heads first, so bodies may call rules defined later in the file
	type pending struct {
		node  *edn.Node
		parts []*edn.Node
	}
	rules := make([]pending, 0, len(items))
	for _, item := range items {
		if item.Kind != edn.Vector {
			return item.Errorf("rule must be a vector [(head ...) clause...]")
		}
		parts := item.Children
		if len(parts) == 0 || parts[0].Kind != edn.List || len(parts[0].Children) == 0 {
			return item.Errorf("rule must start with a head (name args...)")
		}
		name, err := parts[0].Children[0].AsSymbol()
		if err != nil {
			return err
		}
		heads[":"+name] = true
		rules = append(rules, pending{node: item, parts: parts})
	}

	counts := make(map[string]int)
	for _, r := range rules {
		b := &bodyParser{derived: func(rel string) bool { return heads[rel] }}
		head, err := b.atomArgs(r.parts[0].Children[1:])
		if err != nil {
			return err
		}
		rel := ":" + r.parts[0].Children[0].Text
		counts[rel]++
		label := fmt.Sprintf("%s#%d", r.parts[0].Children[0].Text, counts[rel])

		body, err := b.conjunction(label, r.parts[1:])
		if err != nil {
			return fmt.Errorf("rule %s: %w", label, err)
		}
		rule, err := logic.NewRule(label, logic.NewConcludable(datalog.NewKeyword(rel), head...), body)
		if err != nil {
			return r.node.Errorf("%v", err)
		}
		program.Add(rule)
	}
	return nil
}

func parseQueries(node *edn.Node, prog *Program, heads map[string]bool) error {
	return node.Pairs(func(key, value *edn.Node) error {
		name, err := key.AsKeyword()
		if err != nil {
			return err
		}
		name = name[1:]
		if _, dup := prog.Queries[name]; dup {
			return key.Errorf("query %s defined twice", name)
		}
		where, ok := value.Lookup(":where")
		if !ok {
			return value.Errorf("query %s has no :where", name)
		}
		clauses, err := where.Items()
		if err != nil {
			return err
		}
		b := &bodyParser{derived: func(rel string) bool { return heads[rel] }}
		conj, err := b.conjunction(name, clauses)
		if err != nil {
			return fmt.Errorf("query %s: %w", name, err)
		}

		q := &Query{Name: name, Conjunction: conj}
		if bound, ok := value.Lookup(":bound"); ok {
			if q.Bound, err = parseBound(bound); err != nil {
				return fmt.Errorf("query %s: %w", name, err)
			}
			for _, v := range q.Bound {
				if !conj.Variables().Contains(v) {
					return bound.Errorf("bound variable %s does not appear in query %s", v, name)
				}
			}
		}
		prog.Queries[name] = q
		prog.order = append(prog.order, name)
		return nil
	})
}

func parseBound(node *edn.Node) ([]datalog.Symbol, error) {
	items, err := node.Items()
	if err != nil {
		return nil, err
	}
	out := make([]datalog.Symbol, 0, len(items))
	for _, item := range items {
		s, err := item.AsSymbol()
		if err != nil {
			return nil, err
		}
		if !datalog.Symbol(s).IsVariable() {
			return nil, item.Errorf("%s is not a variable", s)
		}
		out = append(out, datalog.Symbol(s))
	}
	return out, nil
}
