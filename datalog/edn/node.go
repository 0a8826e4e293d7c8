// Package edn reads the subset of EDN used by reasoner program files:
// nil, booleans, numbers, strings, keywords, symbols, lists, vectors and
// maps, with ; comments and #_ discards.
package edn

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind is the type of an EDN value
type Kind int

const (
	Nil Kind = iota
	Bool
	Int
	Float
	String
	Keyword
	Symbol
	List
	Vector
	Map
)

var kindNames = [...]string{"nil", "bool", "int", "float", "string", "keyword", "symbol", "list", "vector", "map"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Pos is a 1-based source position
type Pos struct {
	Line, Col int
}

func (p Pos) String() string {
	return strconv.Itoa(p.Line) + ":" + strconv.Itoa(p.Col)
}

// Node is one EDN value. Atoms keep their source text; collections keep
// their elements, maps as alternating keys and values.
type Node struct {
	Kind     Kind
	Pos      Pos
	Text     string
	Children []*Node
}

func (n *Node) String() string {
	switch n.Kind {
	case Nil:
		return "nil"
	case String:
		return strconv.Quote(n.Text)
	case List:
		return "(" + joinNodes(n.Children) + ")"
	case Vector:
		return "[" + joinNodes(n.Children) + "]"
	case Map:
		return "{" + joinNodes(n.Children) + "}"
	default:
		return n.Text
	}
}

func joinNodes(nodes []*Node) string {
	parts := make([]string, len(nodes))
	for i, c := range nodes {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Errorf returns an error annotated with the node's position
func (n *Node) Errorf(format string, args ...interface{}) error {
	return errors.Wrapf(errors.Newf(format, args...), "at %s", n.Pos)
}

func (n *Node) expect(k Kind) error {
	if n.Kind != k {
		return n.Errorf("expected %s, found %s %s", k, n.Kind, n)
	}
	return nil
}

// AsKeyword returns the text of a keyword, including its colon
func (n *Node) AsKeyword() (string, error) {
	if err := n.expect(Keyword); err != nil {
		return "", err
	}
	return n.Text, nil
}

// AsSymbol returns the text of a symbol
func (n *Node) AsSymbol() (string, error) {
	if err := n.expect(Symbol); err != nil {
		return "", err
	}
	return n.Text, nil
}

// AsInt returns the value of an integer. A trailing N is accepted.
func (n *Node) AsInt() (int64, error) {
	if err := n.expect(Int); err != nil {
		return 0, err
	}
	v, err := strconv.ParseInt(strings.TrimSuffix(n.Text, "N"), 10, 64)
	if err != nil {
		return 0, n.Errorf("integer %s out of range", n.Text)
	}
	return v, nil
}

// AsNumber returns the value of an integer or float
func (n *Node) AsNumber() (float64, error) {
	switch n.Kind {
	case Int:
		v, err := n.AsInt()
		return float64(v), err
	case Float:
		v, err := strconv.ParseFloat(strings.TrimSuffix(n.Text, "M"), 64)
		if err != nil {
			return 0, n.Errorf("float %s out of range", n.Text)
		}
		return v, nil
	default:
		return 0, n.Errorf("expected number, found %s %s", n.Kind, n)
	}
}

// Value converts an atom to its Go value: nil, bool, int64, float64 or
// string. Keywords and symbols yield their text.
func (n *Node) Value() (interface{}, error) {
	switch n.Kind {
	case Nil:
		return nil, nil
	case Bool:
		return n.Text == "true", nil
	case Int:
		return n.AsInt()
	case Float:
		return n.AsNumber()
	case String, Keyword, Symbol:
		return n.Text, nil
	default:
		return nil, n.Errorf("%s is not an atom", n.Kind)
	}
}

// Items returns the elements of a list or vector
func (n *Node) Items() ([]*Node, error) {
	if n.Kind != List && n.Kind != Vector {
		return nil, n.Errorf("expected list or vector, found %s %s", n.Kind, n)
	}
	return n.Children, nil
}

// Lookup returns the value stored under a keyword key in a map
func (n *Node) Lookup(key string) (*Node, bool) {
	if n.Kind != Map {
		return nil, false
	}
	for i := 0; i+1 < len(n.Children); i += 2 {
		k := n.Children[i]
		if k.Kind == Keyword && k.Text == key {
			return n.Children[i+1], true
		}
	}
	return nil, false
}

// Pairs calls fn for every key and value of a map, in source order
func (n *Node) Pairs(fn func(key, value *Node) error) error {
	if err := n.expect(Map); err != nil {
		return err
	}
	for i := 0; i+1 < len(n.Children); i += 2 {
		if err := fn(n.Children[i], n.Children[i+1]); err != nil {
			return err
		}
	}
	return nil
}
