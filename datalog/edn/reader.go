package edn

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	intPattern   = regexp.MustCompile(`^[+-]?\d+N?$`)
	floatPattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?([eE][+-]?\d+)?M?$`)
)

const symbolPunctuation = ".*+!-_?$%&=<>/'"

// SyntaxError reports malformed input
type SyntaxError struct {
	Pos Pos
	Msg string
}

func (e *SyntaxError) Error() string {
	return "edn: " + e.Msg + " at " + e.Pos.String()
}

// Reader reads EDN values from a string, one at a time
type Reader struct {
	input string
	pos   int
	line  int
	col   int
}

// NewReader creates a reader over input
func NewReader(input string) *Reader {
	return &Reader{input: input, line: 1, col: 1}
}

// Parse reads exactly one value from input
func Parse(input string) (*Node, error) {
	nodes, err := ParseAll(input)
	if err != nil {
		return nil, err
	}
	if len(nodes) != 1 {
		return nil, &SyntaxError{Pos: Pos{1, 1}, Msg: fmt.Sprintf("expected one value, found %d", len(nodes))}
	}
	return nodes[0], nil
}

// ParseAll reads every value in input
func ParseAll(input string) ([]*Node, error) {
	r := NewReader(input)
	var nodes []*Node
	for {
		n, err := r.Next()
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nodes, nil
		}
		nodes = append(nodes, n)
	}
}

// Next returns the next value, or nil at end of input
func (r *Reader) Next() (*Node, error) {
	if err := r.skipDiscards(); err != nil {
		return nil, err
	}
	if r.done() {
		return nil, nil
	}
	return r.read()
}

func (r *Reader) done() bool { return r.pos >= len(r.input) }

func (r *Reader) peek() byte { return r.input[r.pos] }

func (r *Reader) here() Pos { return Pos{Line: r.line, Col: r.col} }

func (r *Reader) advance() {
	if r.input[r.pos] == '\n' {
		r.line++
		r.col = 1
	} else {
		r.col++
	}
	r.pos++
}

func (r *Reader) errorf(at Pos, format string, args ...interface{}) error {
	return &SyntaxError{Pos: at, Msg: fmt.Sprintf(format, args...)}
}

func (r *Reader) skipSpace() {
	for !r.done() {
		ch := r.peek()
		switch {
		case ch == ',' || unicode.IsSpace(rune(ch)):
			r.advance()
		case ch == ';':
			for !r.done() && r.peek() != '\n' {
				r.advance()
			}
		default:
			return
		}
	}
}

// skipDiscards skips whitespace, comments and #_ discarded forms
func (r *Reader) skipDiscards() error {
	for {
		r.skipSpace()
		if r.done() || !strings.HasPrefix(r.input[r.pos:], "#_") {
			return nil
		}
		r.advance()
		r.advance()
		if _, err := r.read(); err != nil {
			return err
		}
	}
}

// read reads one value
func (r *Reader) read() (*Node, error) {
	if err := r.skipDiscards(); err != nil {
		return nil, err
	}
	if r.done() {
		return nil, r.errorf(r.here(), "unexpected end of input")
	}

	start := r.here()
	switch ch := r.peek(); ch {
	case '(':
		return r.readCollection(List, ')', start)
	case '[':
		return r.readCollection(Vector, ']', start)
	case '{':
		n, err := r.readCollection(Map, '}', start)
		if err == nil && len(n.Children)%2 != 0 {
			err = r.errorf(start, "map has a key without a value")
		}
		return n, err
	case ')', ']', '}':
		return nil, r.errorf(start, "unexpected %q", ch)
	case '"':
		return r.readString(start)
	default:
		return r.readAtom(start)
	}
}

func (r *Reader) readCollection(kind Kind, closer byte, start Pos) (*Node, error) {
	r.advance()
	n := &Node{Kind: kind, Pos: start}
	for {
		if err := r.skipDiscards(); err != nil {
			return nil, err
		}
		if r.done() {
			return nil, r.errorf(start, "unterminated %s", kind)
		}
		if r.peek() == closer {
			r.advance()
			return n, nil
		}
		child, err := r.read()
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
}

func (r *Reader) readString(start Pos) (*Node, error) {
	r.advance()
	var sb strings.Builder
	for !r.done() {
		ch := r.peek()
		r.advance()
		switch ch {
		case '"':
			return &Node{Kind: String, Pos: start, Text: sb.String()}, nil
		case '\\':
			if r.done() {
				return nil, r.errorf(start, "unterminated string")
			}
			esc := r.peek()
			r.advance()
			switch esc {
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case 'n':
				sb.WriteByte('\n')
			case '\\', '"':
				sb.WriteByte(esc)
			default:
				return nil, r.errorf(start, "invalid escape \\%c", esc)
			}
		default:
			sb.WriteByte(ch)
		}
	}
	return nil, r.errorf(start, "unterminated string")
}

func isDelimiter(ch byte) bool {
	return strings.IndexByte("()[]{}\";,", ch) >= 0 || unicode.IsSpace(rune(ch))
}

func (r *Reader) readAtom(start Pos) (*Node, error) {
	from := r.pos
	for !r.done() && !isDelimiter(r.peek()) {
		r.advance()
	}
	text := r.input[from:r.pos]

	switch {
	case text == "nil":
		return &Node{Kind: Nil, Pos: start, Text: text}, nil
	case text == "true" || text == "false":
		return &Node{Kind: Bool, Pos: start, Text: text}, nil
	case intPattern.MatchString(text):
		return &Node{Kind: Int, Pos: start, Text: text}, nil
	case floatPattern.MatchString(text):
		return &Node{Kind: Float, Pos: start, Text: text}, nil
	case strings.HasPrefix(text, ":"):
		if len(text) == 1 || !validSymbol(text[1:]) {
			return nil, r.errorf(start, "invalid keyword %q", text)
		}
		return &Node{Kind: Keyword, Pos: start, Text: text}, nil
	default:
		if !validSymbol(text) {
			return nil, r.errorf(start, "invalid symbol %q", text)
		}
		return &Node{Kind: Symbol, Pos: start, Text: text}, nil
	}
}

func validSymbol(s string) bool {
	if s == "" || unicode.IsDigit(rune(s[0])) {
		return false
	}
	for _, ch := range s {
		if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && !strings.ContainsRune(symbolPunctuation, ch) {
			return false
		}
	}
	return true
}
