package booster

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/eps/pkg/errors"
)

// Dump is the LightGBM dump_model document.
type Dump struct {
	Name                string     `json:"name"`
	Version             string     `json:"version"`
	NumClass            int        `json:"num_class"`
	NumTreePerIteration int        `json:"num_tree_per_iteration"`
	LabelIndex          int        `json:"label_index"`
	MaxFeatureIdx       int        `json:"max_feature_idx"`
	Objective           string     `json:"objective"`
	FeatureNames        []string   `json:"feature_names"`
	TreeInfo            []TreeInfo `json:"tree_info"`
}

// TreeInfo describes one tree. Trees are stored iteration-major: the tree of
// class c at iteration i is TreeInfo[i*NumTreePerIteration+c].
type TreeInfo struct {
	TreeIndex     int       `json:"tree_index"`
	NumLeaves     int       `json:"num_leaves"`
	NumCat        int       `json:"num_cat"`
	Shrinkage     float64   `json:"shrinkage"`
	TreeStructure *TreeNode `json:"tree_structure"`
}

// TreeNode is a split or a leaf. Leaves carry LeafValue; splits carry the
// feature, the decision and both children. Threshold is a number for "<="
// decisions and a "a||b" list of category indices for "==" decisions.
type TreeNode struct {
	SplitIndex    *int      `json:"split_index,omitempty"`
	SplitFeature  *int      `json:"split_feature,omitempty"`
	SplitGain     float64   `json:"split_gain,omitempty"`
	Threshold     any       `json:"threshold,omitempty"`
	DecisionType  string    `json:"decision_type,omitempty"`
	DefaultLeft   *bool     `json:"default_left,omitempty"`
	MissingType   string    `json:"missing_type,omitempty"`
	InternalCount int       `json:"internal_count,omitempty"`
	LeftChild     *TreeNode `json:"left_child,omitempty"`
	RightChild    *TreeNode `json:"right_child,omitempty"`

	LeafIndex *int     `json:"leaf_index,omitempty"`
	LeafValue *float64 `json:"leaf_value,omitempty"`
	LeafCount int      `json:"leaf_count,omitempty"`
}

// IsLeaf reports whether the node is a leaf.
func (n *TreeNode) IsLeaf() bool { return n.LeafValue != nil }

// IsDefaultLeft reports whether missing values follow the left child.
func (n *TreeNode) IsDefaultLeft() bool { return n.DefaultLeft != nil && *n.DefaultLeft }

// Categories parses the category indices of an "==" decision.
func (n *TreeNode) Categories() ([]int, error) {
	var raw string
	switch v := n.Threshold.(type) {
	case string:
		raw = v
	case float64:
		return []int{int(v)}, nil
	default:
		return nil, errors.NewValueError("booster.TreeNode", fmt.Sprintf("bad categorical threshold %v", n.Threshold))
	}
	parts := strings.Split(raw, "||")
	out := make([]int, len(parts))
	for i, p := range parts {
		c, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.Wrapf(err, "categorical threshold %q", raw)
		}
		out[i] = c
	}
	return out, nil
}

// NumericThreshold returns the threshold of a "<=" decision.
func (n *TreeNode) NumericThreshold() (float64, error) {
	switch v := n.Threshold.(type) {
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, errors.NewValueError("booster.TreeNode", fmt.Sprintf("bad threshold %v", n.Threshold))
	}
}

// ParseDump decodes a dump_model document.
func ParseDump(data []byte) (*Dump, error) {
	var d Dump
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, "failed to parse model dump")
	}
	return &d, nil
}

// model is the Booster returned by GBDT.
type model struct {
	objective   objective
	numFeatures int
	numClass    int
	shrinkage   float64
	trees       []*tree
	importance  []float64
}

// truncate keeps the first iterations boosting rounds.
func (m *model) truncate(iterations int) {
	if n := iterations * m.numClass; n < len(m.trees) {
		m.trees = m.trees[:n]
	}
}

func (m *model) FeatureImportance() []float64 {
	return append([]float64(nil), m.importance...)
}

func (m *model) Predict(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != m.numFeatures {
			return nil, errors.NewDimensionError("booster.Predict", m.numFeatures, len(row), 1)
		}
		raw := make([]float64, m.numClass)
		for t, tr := range m.trees {
			raw[t%m.numClass] += tr.predict(row)
		}
		out[i] = m.objective.transform(raw)
	}
	return out, nil
}

func (m *model) DumpJSON() ([]byte, error) {
	d := Dump{
		Name:                "tree",
		Version:             "v3",
		NumClass:            m.numClass,
		NumTreePerIteration: m.numClass,
		MaxFeatureIdx:       m.numFeatures - 1,
		Objective:           m.objective.name(),
		FeatureNames:        make([]string, m.numFeatures),
		TreeInfo:            make([]TreeInfo, len(m.trees)),
	}
	for j := range d.FeatureNames {
		d.FeatureNames[j] = fmt.Sprintf("Column_%d", j)
	}
	for i, t := range m.trees {
		numCat := 0
		t.walk(func(n *treeNode) {
			if !n.isLeaf() && n.categorical {
				numCat++
			}
		})
		d.TreeInfo[i] = TreeInfo{
			TreeIndex:     i,
			NumLeaves:     t.numLeaves,
			NumCat:        numCat,
			Shrinkage:     m.shrinkage,
			TreeStructure: dumpNode(t.root),
		}
	}
	return json.Marshal(d)
}

func dumpNode(n *treeNode) *TreeNode {
	if n.isLeaf() {
		value, index := n.value, n.leafIndex
		return &TreeNode{LeafIndex: &index, LeafValue: &value, LeafCount: n.count}
	}
	feature, index := n.feature, n.splitIndex
	out := &TreeNode{
		SplitIndex:    &index,
		SplitFeature:  &feature,
		SplitGain:     n.gain,
		MissingType:   "None",
		InternalCount: n.count,
		LeftChild:     dumpNode(n.left),
		RightChild:    dumpNode(n.right),
	}
	defaultLeft := !n.categorical
	out.DefaultLeft = &defaultLeft
	if n.categorical {
		parts := make([]string, len(n.categories))
		for i, c := range n.categories {
			parts[i] = strconv.Itoa(c)
		}
		out.Threshold = strings.Join(parts, "||")
		out.DecisionType = "=="
	} else {
		out.Threshold = n.threshold
		out.DecisionType = "<="
	}
	return out
}
