package booster

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// featureBins is the discretization of one column. Numeric bin b holds the
// values x <= thresholds[b] not held by a lower bin; the last bin is open.
// Categorical bins are the category indices themselves.
type featureBins struct {
	categorical bool
	thresholds  []float64
	numBins     int
	// bin of every training row
	rows []int
}

// histogram accumulates gradient statistics per bin.
type histogram struct {
	sumGrad []float64
	sumHess []float64
	count   []int
}

func binFeatures(x *mat.Dense, isCat []bool, p Params) []featureBins {
	n, cols := x.Dims()
	out := make([]featureBins, cols)
	values := make([]float64, n)
	for j := 0; j < cols; j++ {
		mat.Col(values, j, x)
		if isCat[j] {
			out[j] = categoricalBins(values)
		} else {
			out[j] = numericBins(values, p)
		}
	}
	return out
}

func categoricalBins(values []float64) featureBins {
	fb := featureBins{categorical: true, rows: make([]int, len(values))}
	for i, v := range values {
		c := int(v)
		if math.IsNaN(v) || c < 0 {
			c = -1
		}
		fb.rows[i] = c
		fb.numBins = max(fb.numBins, c+1)
	}
	return fb
}

// numericBins groups the sorted distinct values into bins of at least
// max(MinDataInBin, n/MaxBin) rows. Thresholds sit halfway between the last
// value of a bin and the first value of the next one.
func numericBins(values []float64, p Params) featureBins {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	sort.Float64s(sorted)

	target := max(p.MinDataInBin, int(math.Ceil(float64(len(sorted))/float64(p.MaxBin))))
	var thresholds []float64
	count := 0
	for i, v := range sorted {
		count++
		if i+1 == len(sorted) || sorted[i+1] == v {
			continue
		}
		if count >= target {
			thresholds = append(thresholds, v+(sorted[i+1]-v)/2)
			count = 0
		}
	}

	fb := featureBins{thresholds: thresholds, numBins: len(thresholds) + 1, rows: make([]int, len(values))}
	for i, v := range values {
		fb.rows[i] = fb.bin(v)
	}
	return fb
}

// bin returns the numeric bin of v. NaN goes to the first bin, the side
// numeric splits send missing values to.
func (fb featureBins) bin(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return sort.Search(len(fb.thresholds), func(j int) bool { return v <= fb.thresholds[j] })
}

func (fb featureBins) histogram(rows []int, grad, hess []float64) histogram {
	h := histogram{
		sumGrad: make([]float64, fb.numBins),
		sumHess: make([]float64, fb.numBins),
		count:   make([]int, fb.numBins),
	}
	for _, i := range rows {
		b := fb.rows[i]
		if b < 0 {
			continue
		}
		h.sumGrad[b] += grad[i]
		h.sumHess[b] += hess[i]
		h.count[b]++
	}
	return h
}

// split is a candidate partition of a leaf.
type split struct {
	feature    int
	gain       float64
	threshold  float64
	categories []int
	leftCount  int
}

func (p Params) leafGain(g, h float64) float64 {
	return g * g / (h + p.Lambda)
}

// leafOutput is the Newton step of a leaf.
func (p Params) leafOutput(g, h float64) float64 {
	return -g / (h + p.Lambda)
}

// sideOK reports whether a child satisfies the minimum data constraints.
func (p Params) sideOK(count int, h float64) bool {
	return count >= p.MinDataInLeaf && h >= p.MinSumHessianInLeaf
}

// bestSplit returns the split with the highest gain over all features, or
// false when no split satisfies the constraints. Ties keep the lowest
// feature index.
func (g *grower) bestSplit(rows []int, grad, hess []float64, sumG, sumH float64) (split, bool) {
	best := split{gain: math.Inf(-1)}
	parent := g.params.leafGain(sumG, sumH)
	for j, fb := range g.bins {
		h := fb.histogram(rows, grad, hess)
		var s split
		var ok bool
		if fb.categorical {
			s, ok = g.categoricalSplit(h, sumG, sumH, len(rows), parent)
		} else {
			s, ok = g.numericSplit(fb, h, sumG, sumH, len(rows), parent)
		}
		if ok && s.gain > best.gain {
			s.feature = j
			best = s
		}
	}
	minGain := math.Max(g.params.MinGainToSplit, 1e-10)
	if math.IsInf(best.gain, -1) || best.gain <= minGain {
		return split{}, false
	}
	return best, true
}

func (g *grower) numericSplit(fb featureBins, h histogram, sumG, sumH float64, n int, parent float64) (split, bool) {
	best := split{gain: math.Inf(-1)}
	var lg, lh float64
	ln := 0
	for b := 0; b < fb.numBins-1; b++ {
		lg += h.sumGrad[b]
		lh += h.sumHess[b]
		ln += h.count[b]
		if h.count[b] == 0 {
			continue
		}
		rg, rh, rn := sumG-lg, sumH-lh, n-ln
		if !g.params.sideOK(ln, lh) || !g.params.sideOK(rn, rh) {
			continue
		}
		gain := g.params.leafGain(lg, lh) + g.params.leafGain(rg, rh) - parent
		if gain > best.gain {
			best = split{gain: gain, threshold: fb.thresholds[b], leftCount: ln}
		}
	}
	return best, !math.IsInf(best.gain, -1)
}

// categoricalSplit tries one-vs-rest partitions for few categories and,
// beyond MaxCatToOnehot, prefixes of the categories sorted by their
// smoothed gradient ratio.
func (g *grower) categoricalSplit(h histogram, sumG, sumH float64, n int, parent float64) (split, bool) {
	var cats []int
	for c, cnt := range h.count {
		if cnt > 0 {
			cats = append(cats, c)
		}
	}
	if len(cats) < 2 {
		return split{}, false
	}

	best := split{gain: math.Inf(-1)}
	try := func(left []int) {
		var lg, lh float64
		ln := 0
		for _, c := range left {
			lg += h.sumGrad[c]
			lh += h.sumHess[c]
			ln += h.count[c]
		}
		rg, rh, rn := sumG-lg, sumH-lh, n-ln
		if !g.params.sideOK(ln, lh) || !g.params.sideOK(rn, rh) {
			return
		}
		gain := g.params.leafGain(lg, lh) + g.params.leafGain(rg, rh) - parent
		if gain > best.gain {
			set := append([]int(nil), left...)
			sort.Ints(set)
			best = split{gain: gain, categories: set, leftCount: ln}
		}
	}

	if len(cats) <= g.params.MaxCatToOnehot {
		for _, c := range cats {
			try([]int{c})
		}
		return best, !math.IsInf(best.gain, -1)
	}

	sort.SliceStable(cats, func(a, b int) bool {
		ra := h.sumGrad[cats[a]] / (h.sumHess[cats[a]] + g.params.CatSmooth)
		rb := h.sumGrad[cats[b]] / (h.sumHess[cats[b]] + g.params.CatSmooth)
		return ra < rb
	})
	for i := 1; i < len(cats) && i <= g.params.MaxCatThreshold; i++ {
		try(cats[:i])
	}
	return best, !math.IsInf(best.gain, -1)
}
