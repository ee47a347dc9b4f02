// Package linear fits linear regression models by weighted ordinary least
// squares and reports coefficient statistics.
package linear

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/YuminosukeSato/eps/core/dataset"
	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/evaluator"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/pkg/log"
	"github.com/YuminosukeSato/eps/preprocessing"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// InterceptName is the display name of the intercept.
const InterceptName = "_intercept"

// Trainer は線形回帰モデルの学習器
type Trainer struct {
	model.BaseEstimator

	intercept bool
	fallback  Solver
	logger    log.Logger
}

// NewTrainer は新しい線形回帰の学習器を作成する
func NewTrainer(opts ...Option) *Trainer {
	t := &Trainer{intercept: true}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = log.GetLoggerWithName("linear")
	}
	return t
}

// Result は学習結果と係数の統計量
type Result struct {
	Evaluator *evaluator.LinearRegression

	// Names はサマリーに表示する係数名（切片を含む）
	Names  []string
	Coef   []float64
	StdErr []float64
	TValue []float64
	PValue []float64

	R2               float64
	AdjustedR2       float64
	DegreesOfFreedom int
	// Removed は共線性のため除外した計画行列の列
	Removed []int
}

// Fit はモデルを学習データで学習させる
//
// Categorical features become one indicator column per level except the first
// one encountered, and text features one count column per vocabulary term.
// The design needs at least two more rows than columns.
func (t *Trainer) Fit(p *dataset.Prepared) (res *Result, err error) {
	const op = "LinearRegression.Fit"
	defer errors.Recover(&err, op)

	if p.TargetType != feature.Numeric {
		return nil, errors.NewValueError(op, "target must be numeric")
	}
	if err := dataset.CheckTable(op, p.Train); err != nil {
		return nil, err
	}
	if p.Validation != nil {
		if err := dataset.CheckTable(op, p.Validation); err != nil {
			return nil, err
		}
	}

	logger := t.logger.With(
		log.ModelNameKey, "LinearRegression",
		log.EstimatorIDKey, t.ID(),
	)

	d, err := buildDesign(p)
	if err != nil {
		return nil, err
	}
	rows, cols := d.x.Dims()
	if cols == 0 {
		return nil, errors.NewInsufficientDataError(op, "no features left")
	}
	if rows < cols+2 {
		return nil, errors.NewInsufficientDataError(op, "number of data points must be at least two more than number of features")
	}

	logger.Info("Training started",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
	)

	x := d.x
	if t.intercept {
		x = withIntercept(d.x)
	}
	y, err := labelFloats(p.Train.Label())
	if err != nil {
		return nil, err
	}
	yv := mat.NewVecDense(len(y), y)

	sol, err := NormalEquations{Intercept: t.intercept}.Solve(x, yv, p.Train.Weight())
	if err != nil {
		var unstable *errors.UnstableSolutionError
		if t.fallback == nil || !errors.As(err, &unstable) {
			return nil, err
		}
		logger.Debug("Normal equations unstable, using fallback solver", log.RemovedColumnsKey, unstable.Removed)
		if sol, err = t.fallback.Solve(x, yv, p.Train.Weight()); err != nil {
			return nil, errors.Wrap(err, "fallback solver")
		}
	}
	if len(sol.Removed) > 0 {
		logger.Debug("Removed collinear columns", log.RemovedColumnsKey, sol.Removed)
	}
	if err := errors.CheckNumericalStability("coefficients", sol.Coef, 0); err != nil {
		return nil, err
	}

	coef := evaluator.Coefficients{}
	names := make([]string, 0, len(sol.Coef))
	offset := 0
	if t.intercept {
		coef.Intercept = sol.Coef[0]
		names = append(names, InterceptName)
		offset = 1
	}
	for j, k := range d.keys {
		coef.Terms = append(coef.Terms, evaluator.Coefficient{Key: k, Value: sol.Coef[j+offset]})
		names = append(names, k.String())
	}

	ev, err := evaluator.NewLinearRegression(p.Spec, coef, d.text)
	if err != nil {
		return nil, err
	}

	res = &Result{
		Evaluator: ev,
		Names:     names,
		Coef:      sol.Coef,
		Removed:   sol.Removed,
	}
	if err := res.statistics(p, y, sol.Scale); err != nil {
		return nil, err
	}

	t.SetFitted()
	logger.Info("Training completed",
		log.OperationKey, log.OperationFit,
		log.R2ScoreKey, res.R2,
	)
	return res, nil
}

func (r *Result) statistics(p *dataset.Prepared, y []float64, scale *mat.Dense) error {
	pred, err := r.Evaluator.Predict(p.Train)
	if err != nil {
		return err
	}

	n := len(y)
	yBar := stat.Mean(y, nil)
	var sst, sse float64
	for i, yi := range y {
		sst += (yi - yBar) * (yi - yBar)
		sse += (yi - pred.Scores[i]) * (yi - pred.Scores[i])
	}

	r.DegreesOfFreedom = n - len(r.Coef)
	mse := sse / float64(r.DegreesOfFreedom)
	mst := sst / float64(n-1)
	r.R2 = (sst - sse) / sst
	r.AdjustedR2 = (mst - mse) / mst

	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(r.DegreesOfFreedom)}
	r.StdErr = make([]float64, len(r.Coef))
	r.TValue = make([]float64, len(r.Coef))
	r.PValue = make([]float64, len(r.Coef))
	for i, c := range r.Coef {
		r.StdErr[i] = math.Sqrt(math.Max(mse*scale.At(i, i), 0))
		// Epsilon keeps perfect fits finite.
		r.TValue[i] = c / (r.StdErr[i] + epsilon)
		r.PValue[i] = 2 * (1 - dist.CDF(math.Abs(r.TValue[i])))
	}
	return nil
}

const epsilon = 2.220446049250313e-16

// Summary はモデルの係数表を返す
func (r *Result) Summary(extended bool) string {
	width := 15
	for _, name := range r.Names {
		width = max(width, utf8.RuneCountInString(name))
	}

	var b strings.Builder
	if extended {
		fmt.Fprintf(&b, "%-*s %12s %12s %12s %12s\n", width, "", "coef", "stderr", "t", "p")
	} else {
		fmt.Fprintf(&b, "%-*s %12s %12s\n", width, "", "coef", "p")
	}
	for i, name := range r.Names {
		if extended {
			fmt.Fprintf(&b, "%-*s %12.2f %12.2f %12.2f %12.3f\n", width, name, r.Coef[i], r.StdErr[i], r.TValue[i], r.PValue[i])
		} else {
			fmt.Fprintf(&b, "%-*s %12.2f %12.3f\n", width, name, r.Coef[i], r.PValue[i])
		}
	}
	b.WriteString("\n")
	if extended {
		fmt.Fprintf(&b, "r2: %.3f\n", r.R2)
	}
	fmt.Fprintf(&b, "adjusted r2: %.3f\n", r.AdjustedR2)
	return b.String()
}

// design is the encoded training matrix.
type design struct {
	x    *mat.Dense
	keys []feature.Key
	text evaluator.Text
}

// buildDesign encodes the training set: numeric columns in spec order, then
// categorical indicators, then text term counts.
func buildDesign(p *dataset.Prepared) (*design, error) {
	n := p.Train.Size()
	var cols [][]float64
	d := &design{text: evaluator.Text{}}

	for _, f := range p.Spec.OfType(feature.Numeric) {
		v, err := p.Train.Floats(f.Name)
		if err != nil {
			return nil, err
		}
		cols = append(cols, v)
		d.keys = append(d.keys, feature.FieldKey(f.Name))
	}

	for _, f := range p.Spec.OfType(feature.Categorical) {
		values, _ := p.Train.Column(f.Name)
		levels := encounterOrder(values)
		for _, level := range levels[min(1, len(levels)):] {
			col := make([]float64, n)
			for i, v := range values {
				if feature.Stringify(v) == level {
					col[i] = 1
				}
			}
			cols = append(cols, col)
			d.keys = append(d.keys, feature.CategoryKey(f.Name, level))
		}
	}

	for _, f := range p.Spec.OfType(feature.Text) {
		enc, err := preprocessing.NewTextEncoder(p.Text[f.Name])
		if err != nil {
			return nil, err
		}
		values, _ := p.Train.Column(f.Name)
		counts := enc.Fit(values)
		for _, term := range enc.Vocabulary() {
			col := make([]float64, n)
			for i, c := range counts {
				col[i] = float64(c[term])
			}
			cols = append(cols, col)
			d.keys = append(d.keys, feature.TermKey(f.Name, term))
		}
		d.text[f.Name] = enc.Options()
	}

	if len(cols) == 0 {
		d.x = &mat.Dense{}
		return d, nil
	}
	d.x = mat.NewDense(n, len(cols), nil)
	for j, c := range cols {
		d.x.SetCol(j, c)
	}
	return d, nil
}

func encounterOrder(values []any) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range values {
		s := feature.Stringify(v)
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func withIntercept(x *mat.Dense) *mat.Dense {
	r, c := x.Dims()
	out := mat.NewDense(r, c+1, nil)
	for i := 0; i < r; i++ {
		out.Set(i, 0, 1)
		for j := 0; j < c; j++ {
			out.Set(i, j+1, x.At(i, j))
		}
	}
	return out
}

func labelFloats(label []any) ([]float64, error) {
	out := make([]float64, len(label))
	for i, v := range label {
		f, ok := v.(float64)
		if !ok {
			return nil, errors.NewTypeMismatchError("LinearRegression.Fit", "target", string(feature.Numeric), fmt.Sprintf("%T", v))
		}
		out[i] = f
	}
	return out, nil
}
