package booster

import (
	"math"
	"slices"
	"testing"

	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// stepData returns x = 1..n in column 0, a constant column 1 and labels
// produced by f.
func stepData(t *testing.T, n int, f func(x float64) float64) *Dataset {
	t.Helper()
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		v := float64(i + 1)
		x.Set(i, 0, v)
		x.Set(i, 1, 1)
		y[i] = f(v)
	}
	d, err := NewDataset(x, y, nil)
	require.NoError(t, err)
	return d
}

func small(objective string) Params {
	return Params{Objective: objective, MinDataInLeaf: 1, MinDataInBin: 1}
}

// evalDump walks a dumped tree the way LightGBM documents it.
func evalDump(t *testing.T, n *TreeNode, row []float64) float64 {
	for !n.IsLeaf() {
		x := row[*n.SplitFeature]
		left := false
		switch n.DecisionType {
		case "<=":
			th, err := n.NumericThreshold()
			require.NoError(t, err)
			left = x <= th
		case "==":
			cats, err := n.Categories()
			require.NoError(t, err)
			left = slices.Contains(cats, int(x))
		default:
			t.Fatalf("unknown decision %q", n.DecisionType)
		}
		if left {
			n = n.LeftChild
		} else {
			n = n.RightChild
		}
	}
	return *n.LeafValue
}

func TestTrainRegression(t *testing.T) {
	data := stepData(t, 40, func(x float64) float64 {
		if x <= 20 {
			return 0
		}
		return 10
	})

	b, err := NewGBDT().Train(small(Regression), data, nil, nil)
	require.NoError(t, err)

	pred, err := b.Predict([][]float64{{5, 1}, {35, 1}})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, pred[0][0], 0.01)
	assert.InDelta(t, 10.0, pred[1][0], 0.01)

	imp := b.FeatureImportance()
	assert.Greater(t, imp[0], 0.0)
	assert.Equal(t, 0.0, imp[1])

	raw, err := b.DumpJSON()
	require.NoError(t, err)
	dump, err := ParseDump(raw)
	require.NoError(t, err)
	assert.Equal(t, Regression, dump.Objective)
	assert.Equal(t, 1, dump.NumTreePerIteration)
	require.Len(t, dump.TreeInfo, 100)

	root := dump.TreeInfo[0].TreeStructure
	require.False(t, root.IsLeaf())
	assert.Equal(t, 0, *root.SplitFeature)
	assert.Equal(t, "<=", root.DecisionType)
	assert.True(t, root.IsDefaultLeft())
	th, err := root.NumericThreshold()
	require.NoError(t, err)
	assert.Equal(t, 20.5, th)

	// The dumped trees alone reproduce the prediction: the initial score is
	// folded into the first tree.
	for _, row := range [][]float64{{5, 1}, {35, 1}, {20, 1}, {21, 1}} {
		sum := 0.0
		for _, info := range dump.TreeInfo {
			sum += evalDump(t, info.TreeStructure, row)
		}
		p, err := b.Predict([][]float64{row})
		require.NoError(t, err)
		assert.InDelta(t, p[0][0], sum, 1e-9)
	}
}

func TestTrainWeightedInitScore(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{1, 1})
	data, err := NewDataset(x, []float64{0, 10}, []float64{3, 1})
	require.NoError(t, err)

	b, err := NewGBDT().Train(Params{Objective: Regression, NumBoostRound: 5}, data, nil, nil)
	require.NoError(t, err)
	pred, err := b.Predict([][]float64{{1}})
	require.NoError(t, err)
	assert.InDelta(t, 2.5, pred[0][0], 1e-12)
}

func TestTrainBinary(t *testing.T) {
	data := stepData(t, 40, func(x float64) float64 {
		if x > 20 {
			return 1
		}
		return 0
	})

	b, err := NewGBDT().Train(small(Binary), data, nil, nil)
	require.NoError(t, err)

	pred, err := b.Predict([][]float64{{5, 1}, {35, 1}})
	require.NoError(t, err)
	require.Len(t, pred[0], 1)
	assert.Less(t, pred[0][0], 0.1)
	assert.Greater(t, pred[1][0], 0.9)

	raw, err := b.DumpJSON()
	require.NoError(t, err)
	dump, err := ParseDump(raw)
	require.NoError(t, err)
	sum := 0.0
	for _, info := range dump.TreeInfo {
		sum += evalDump(t, info.TreeStructure, []float64{35, 1})
	}
	assert.InDelta(t, pred[1][0], 1/(1+math.Exp(-sum)), 1e-9)
}

func TestTrainMulticlass(t *testing.T) {
	data := stepData(t, 45, func(x float64) float64 {
		switch {
		case x <= 15:
			return 0
		case x <= 30:
			return 1
		default:
			return 2
		}
	})
	params := small(Multiclass)
	params.NumClass = 3

	b, err := NewGBDT().Train(params, data, nil, nil)
	require.NoError(t, err)

	pred, err := b.Predict([][]float64{{3, 1}, {22, 1}, {44, 1}})
	require.NoError(t, err)
	for i, want := range []int{0, 1, 2} {
		require.Len(t, pred[i], 3)
		assert.InDelta(t, 1.0, pred[i][0]+pred[i][1]+pred[i][2], 1e-9)
		assert.Equal(t, want, argmax(pred[i]))
	}

	raw, err := b.DumpJSON()
	require.NoError(t, err)
	dump, err := ParseDump(raw)
	require.NoError(t, err)
	assert.Equal(t, 3, dump.NumTreePerIteration)
	assert.Len(t, dump.TreeInfo, 300)
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func TestTrainCategorical(t *testing.T) {
	n := 60
	x := mat.NewDense(n, 1, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		c := i % 6
		x.Set(i, 0, float64(c))
		if c == 1 || c == 3 {
			y[i] = 10
		}
	}
	data, err := NewDataset(x, y, nil)
	require.NoError(t, err)

	b, err := NewGBDT().Train(small(Regression), data, []int{0}, nil)
	require.NoError(t, err)

	pred, err := b.Predict([][]float64{{1}, {3}, {0}, {5}, {6}})
	require.NoError(t, err)
	assert.InDelta(t, 10.0, pred[0][0], 0.01)
	assert.InDelta(t, 10.0, pred[1][0], 0.01)
	assert.InDelta(t, 0.0, pred[2][0], 0.01)
	assert.InDelta(t, 0.0, pred[3][0], 0.01)

	raw, err := b.DumpJSON()
	require.NoError(t, err)
	dump, err := ParseDump(raw)
	require.NoError(t, err)
	root := dump.TreeInfo[0].TreeStructure
	assert.Equal(t, "==", root.DecisionType)
	assert.False(t, root.IsDefaultLeft())
	assert.Equal(t, 1, dump.TreeInfo[0].NumCat)
	cats, err := root.Categories()
	require.NoError(t, err)
	// Either side of the partition may be the one listed.
	assert.True(t, slices.Equal(cats, []int{1, 3}) || slices.Equal(cats, []int{0, 2, 4, 5}), "categories %v", cats)
}

func TestTrainEarlyStopping(t *testing.T) {
	train := stepData(t, 40, func(x float64) float64 {
		if x <= 20 {
			return 0
		}
		return 10
	})
	// The validation labels disagree with every split, so the first
	// iteration is the best one.
	valid := stepData(t, 40, func(float64) float64 { return 5 })

	logger, _ := log.NewTestLogger(log.LevelDebug)
	params := small(Regression)
	params.NumBoostRound = 1000
	params.EarlyStoppingRounds = 5

	b, err := NewGBDT(WithLogger(logger)).Train(params, train, nil, valid)
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("Early stopping"))

	raw, err := b.DumpJSON()
	require.NoError(t, err)
	dump, err := ParseDump(raw)
	require.NoError(t, err)
	assert.Len(t, dump.TreeInfo, 1)
}

func TestTrainErrors(t *testing.T) {
	data := stepData(t, 4, func(x float64) float64 { return x })
	var valueErr *errors.ValueError

	_, err := NewGBDT().Train(Params{Objective: "poisson"}, data, nil, nil)
	assert.True(t, errors.As(err, &valueErr))

	_, err = NewGBDT().Train(Params{Objective: Binary}, data, nil, nil)
	assert.True(t, errors.As(err, &valueErr))

	_, err = NewGBDT().Train(Params{Objective: Multiclass, NumClass: 1}, data, nil, nil)
	assert.True(t, errors.As(err, &valueErr))

	_, err = NewGBDT().Train(Params{}, data, []int{5}, nil)
	assert.True(t, errors.As(err, &valueErr))

	b, err := NewGBDT().Train(Params{NumBoostRound: 1}, data, nil, nil)
	require.NoError(t, err)
	_, err = b.Predict([][]float64{{1}})
	var dimErr *errors.DimensionError
	assert.True(t, errors.As(err, &dimErr))

	_, err = NewDataset(mat.NewDense(2, 1, nil), []float64{1}, nil)
	assert.True(t, errors.As(err, &dimErr))
}
