package evaluator

import (
	"slices"

	"github.com/YuminosukeSato/eps/core/feature"
)

// Operator is the comparison a predicate applies.
type Operator string

const (
	Equal       Operator = "equal"
	In          Operator = "in"
	GreaterThan Operator = "greaterThan"
	LessOrEqual Operator = "lessOrEqual"
)

// Predicate tests one field of a row. Equal and In compare the string form of
// the value against Set; GreaterThan and LessOrEqual compare numbers against
// Threshold.
type Predicate struct {
	Field     feature.Key
	Operator  Operator
	Threshold float64
	Set       []string
}

// Row is an encoded row: plain features under their FieldKey and text terms
// under their TermKey.
type Row map[feature.Key]any

// Match reports whether row satisfies p. A missing field never matches,
// except text terms which count as zero.
func (p *Predicate) Match(row Row) bool {
	v, ok := row[p.Field]
	if !ok || v == nil {
		if p.Field.Kind != feature.KindTerm {
			return false
		}
		v = 0.0
	}

	switch p.Operator {
	case Equal, In:
		return slices.Contains(p.Set, feature.Stringify(v))
	case GreaterThan, LessOrEqual:
		x, ok := v.(float64)
		if !ok {
			return false
		}
		if p.Operator == GreaterThan {
			return x > p.Threshold
		}
		return x <= p.Threshold
	}
	return false
}

// Node is a tree node. A node without a predicate always matches. Children
// are tried in order and the first one that yields a score wins; when none
// does, the node's own score is returned.
type Node struct {
	Score     float64
	Predicate *Predicate
	Children  []*Node
}

// Eval returns the score of row, or false when the node does not match.
func (n *Node) Eval(row Row) (float64, bool) {
	if n.Predicate != nil && !n.Predicate.Match(row) {
		return 0, false
	}
	for _, c := range n.Children {
		if s, ok := c.Eval(row); ok {
			return s, true
		}
	}
	return n.Score, true
}

// Fields returns the keys tested anywhere below n, in first-use order.
func (n *Node) Fields() []feature.Key {
	var out []feature.Key
	seen := make(map[feature.Key]struct{})
	var walk func(*Node)
	walk = func(m *Node) {
		if m.Predicate != nil {
			if _, ok := seen[m.Predicate.Field]; !ok {
				seen[m.Predicate.Field] = struct{}{}
				out = append(out, m.Predicate.Field)
			}
		}
		for _, c := range m.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}
