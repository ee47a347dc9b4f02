package lightgbm

import (
	"fmt"

	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/evaluator"
	"github.com/YuminosukeSato/eps/lightgbm/booster"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/preprocessing"
)

// translator rewrites dumped binary trees into evaluator nodes.
//
// A dumped split has a decision and two children. The evaluator node instead
// carries its own predicate and tries its children in order, falling back to
// its own score. The rewrite keeps the default child as the returned node and
// pushes the other child, now guarded by the split predicate, to the front of
// its children:
//
//	"<=" default left   -> left,  children [right if x > t, ...]
//	"<=" default right  -> right, children [left if x <= t, ...]
//	"=="                -> right, children [left if x in set, ...]
//
// Repeating this bottom-up leaves every leaf score reachable exactly where the
// dumped tree would have reached it.
type translator struct {
	keys   []feature.Key
	labels map[string]*preprocessing.LabelEncoder
}

func (tr translator) trees(d *booster.Dump) ([]*evaluator.Node, error) {
	out := make([]*evaluator.Node, len(d.TreeInfo))
	for i, info := range d.TreeInfo {
		if info.TreeStructure == nil {
			return nil, errors.NewValueError("lightgbm.translate", fmt.Sprintf("tree %d has no structure", i))
		}
		n, err := tr.node(info.TreeStructure)
		if err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		out[i] = n
	}
	return out, nil
}

func (tr translator) node(n *booster.TreeNode) (*evaluator.Node, error) {
	const op = "lightgbm.translate"
	if n.IsLeaf() {
		return &evaluator.Node{Score: *n.LeafValue}, nil
	}
	if n.SplitFeature == nil || *n.SplitFeature < 0 || *n.SplitFeature >= len(tr.keys) {
		return nil, errors.NewValueError(op, "split on unknown column")
	}
	if n.LeftChild == nil || n.RightChild == nil {
		return nil, errors.NewValueError(op, "split without two children")
	}

	key := tr.keys[*n.SplitFeature]
	pred := &evaluator.Predicate{Field: key}
	categorical := false
	switch n.DecisionType {
	case "==":
		enc := tr.labels[key.Name]
		if enc == nil || key.Kind != feature.KindField {
			return nil, errors.NewValueError(op, "categorical split on "+key.String())
		}
		cats, err := n.Categories()
		if err != nil {
			return nil, err
		}
		if pred.Set, err = enc.InverseTransform(cats); err != nil {
			return nil, err
		}
		pred.Operator = evaluator.Equal
		if len(pred.Set) > 1 {
			pred.Operator = evaluator.In
		}
		categorical = true
	case "<=":
		th, err := n.NumericThreshold()
		if err != nil {
			return nil, err
		}
		pred.Threshold = th
		pred.Operator = evaluator.LessOrEqual
		if n.IsDefaultLeft() {
			pred.Operator = evaluator.GreaterThan
		}
	default:
		return nil, errors.NewValueError(op, "unknown decision type "+n.DecisionType)
	}

	left, err := tr.node(n.LeftChild)
	if err != nil {
		return nil, err
	}
	right, err := tr.node(n.RightChild)
	if err != nil {
		return nil, err
	}

	if !categorical && n.IsDefaultLeft() {
		right.Predicate = pred
		left.Children = append([]*evaluator.Node{right}, left.Children...)
		return left, nil
	}
	left.Predicate = pred
	right.Children = append([]*evaluator.Node{left}, right.Children...)
	return right, nil
}

// classMajor reorders iteration-major trees (iteration i, class c at
// i*k+c) into k contiguous class blocks.
func classMajor(trees []*evaluator.Node, k int) ([]*evaluator.Node, error) {
	if k == 0 || len(trees)%k != 0 {
		return nil, errors.NewValueError("lightgbm.translate", fmt.Sprintf("%d trees cannot be split into %d classes", len(trees), k))
	}
	iterations := len(trees) / k
	out := make([]*evaluator.Node, 0, len(trees))
	for c := 0; c < k; c++ {
		for i := 0; i < iterations; i++ {
			out = append(out, trees[i*k+c])
		}
	}
	return out, nil
}
