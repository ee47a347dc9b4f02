package booster

import (
	"math"
	"slices"
)

// treeNode is a split or, when left is nil, a leaf.
type treeNode struct {
	feature     int
	threshold   float64
	categories  []int
	categorical bool
	gain        float64
	splitIndex  int
	left, right *treeNode

	value     float64
	leafIndex int
	count     int

	// growth state
	rows       []int
	depth      int
	sumG, sumH float64
	best       split
	canSplit   bool
}

func (n *treeNode) isLeaf() bool { return n.left == nil }

// goesLeft routes a raw row value. Missing numeric values follow the
// default (left) branch; missing or unseen categories go right.
func (n *treeNode) goesLeft(x float64) bool {
	if n.categorical {
		if math.IsNaN(x) || x < 0 {
			return false
		}
		return slices.Contains(n.categories, int(x))
	}
	if math.IsNaN(x) {
		return true
	}
	return x <= n.threshold
}

type tree struct {
	root      *treeNode
	numLeaves int
}

func (t *tree) predict(row []float64) float64 {
	n := t.root
	for !n.isLeaf() {
		if n.goesLeft(row[n.feature]) {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

func (t *tree) walk(fn func(*treeNode)) {
	var rec func(*treeNode)
	rec = func(n *treeNode) {
		fn(n)
		if !n.isLeaf() {
			rec(n.left)
			rec(n.right)
		}
	}
	rec(t.root)
}

func (t *tree) scale(rate float64) {
	t.walk(func(n *treeNode) {
		if n.isLeaf() {
			n.value *= rate
		}
	})
}

func (t *tree) addBias(b float64) {
	t.walk(func(n *treeNode) {
		if n.isLeaf() {
			n.value += b
		}
	})
}

func (t *tree) countSplits(importance []float64) {
	t.walk(func(n *treeNode) {
		if !n.isLeaf() {
			importance[n.feature]++
		}
	})
}

// grower builds one tree leaf-wise: the leaf with the highest split gain is
// split next until NumLeaves is reached or no leaf can be split.
type grower struct {
	params Params
	bins   []featureBins
	isCat  []bool
}

func (g *grower) grow(grad, hess []float64) *tree {
	rows := make([]int, len(grad))
	for i := range rows {
		rows[i] = i
	}
	root := g.newLeaf(rows, 0, grad, hess)
	leaves := []*treeNode{root}

	for splits := 0; len(leaves) < g.params.NumLeaves; splits++ {
		best := -1
		for i, l := range leaves {
			if l.canSplit && (best < 0 || l.best.gain > leaves[best].best.gain) {
				best = i
			}
		}
		if best < 0 {
			break
		}

		n := leaves[best]
		s := n.best
		n.feature = s.feature
		n.gain = s.gain
		n.splitIndex = splits
		if g.isCat[s.feature] {
			n.categorical = true
			n.categories = s.categories
		} else {
			n.threshold = s.threshold
		}

		var left, right []int
		fb := g.bins[s.feature]
		for _, i := range n.rows {
			if g.binGoesLeft(fb, n, fb.rows[i]) {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		n.left = g.newLeaf(left, n.depth+1, grad, hess)
		n.right = g.newLeaf(right, n.depth+1, grad, hess)
		n.count = len(n.rows)
		n.rows = nil

		// The left child keeps the parent's leaf index.
		leaves[best] = n.left
		leaves = append(leaves, n.right)
	}

	for i, l := range leaves {
		l.value = g.params.leafOutput(l.sumG, l.sumH)
		l.leafIndex = i
		l.count = len(l.rows)
		l.rows = nil
	}
	return &tree{root: root, numLeaves: len(leaves)}
}

func (g *grower) binGoesLeft(fb featureBins, n *treeNode, b int) bool {
	if n.categorical {
		return b >= 0 && slices.Contains(n.categories, b)
	}
	return b < len(fb.thresholds) && fb.thresholds[b] <= n.threshold
}

func (g *grower) newLeaf(rows []int, depth int, grad, hess []float64) *treeNode {
	n := &treeNode{rows: rows, depth: depth}
	for _, i := range rows {
		n.sumG += grad[i]
		n.sumH += hess[i]
	}
	if g.params.MaxDepth > 0 && depth >= g.params.MaxDepth {
		return n
	}
	if len(rows) >= 2*g.params.MinDataInLeaf {
		n.best, n.canSplit = g.bestSplit(rows, grad, hess, n.sumG, n.sumH)
	}
	return n
}
