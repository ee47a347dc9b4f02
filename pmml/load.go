package pmml

import (
	"encoding/xml"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/evaluator"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/pkg/log"
	"github.com/YuminosukeSato/eps/preprocessing"
	"github.com/shopspring/decimal"
)

// Layouts reported under log.FormatKey.
const (
	FormatTreeEnsemble     = "tree_ensemble"
	FormatLinearRegression = "linear_regression"
	FormatNaiveBayes       = "naive_bayes"
	FormatLegacyNaiveBayes = "legacy_naive_bayes"
)

// Decode parses a document without interpreting it.
func Decode(data []byte) (*Document, error) {
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.NewUnknownModelFormatError("invalid XML: " + err.Error())
	}
	return &doc, nil
}

// Target returns the name of the predicted column: the mining field used as
// target, then the naive Bayes output field, then the first data field.
func (d *Document) Target() string {
	var schema *MiningSchema
	switch {
	case d.MiningModel != nil:
		schema = &d.MiningModel.MiningSchema
	case d.RegressionModel != nil:
		schema = &d.RegressionModel.MiningSchema
	case d.NaiveBayesModel != nil:
		schema = &d.NaiveBayesModel.MiningSchema
	}
	if schema != nil {
		for _, f := range schema.MiningFields {
			if f.UsageType == "target" || f.UsageType == "predicted" {
				return f.Name
			}
		}
	}
	if d.NaiveBayesModel != nil && d.NaiveBayesModel.BayesOutput.FieldName != "" {
		return d.NaiveBayesModel.BayesOutput.FieldName
	}
	if len(d.DataDictionary.DataFields) > 0 {
		return d.DataDictionary.DataFields[0].Name
	}
	return ""
}

// Load decodes a document and builds the evaluator it describes. Tree
// ensembles are recognized by a segmentation, then linear regression, then
// naive Bayes. Naive Bayes documents in the legacy layout are rejected; see
// LoadLegacyNaiveBayes.
func Load(data []byte, opts ...Option) (model.Evaluator, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return LoadDocument(doc, opts...)
}

// LoadDocument builds the evaluator described by an already decoded document.
func LoadDocument(doc *Document, opts ...Option) (ev model.Evaluator, err error) {
	defer errors.Recover(&err, "pmml.Load")
	ld := newLoader(doc, opts)
	var format string
	switch {
	case doc.MiningModel != nil && doc.MiningModel.Segmentation != nil:
		format = FormatTreeEnsemble
		ev, err = ld.trees()
	case doc.RegressionModel != nil:
		format = FormatLinearRegression
		ev, err = ld.linear()
	case doc.NaiveBayesModel != nil:
		format = FormatNaiveBayes
		ev, err = ld.naiveBayes(false)
	default:
		return nil, errors.NewUnknownModelFormatError("no MiningModel segmentation, RegressionModel or NaiveBayesModel")
	}
	if err != nil {
		return nil, err
	}
	ld.logger.Debug("Document loaded", log.FormatKey, format, log.ObjectiveKey, string(ev.Objective()))
	return ev, nil
}

type loader struct {
	doc    *Document
	logger log.Logger
	// terms maps derived field names to the text term they count.
	terms map[string]feature.Key
	text  evaluator.Text
}

func newLoader(doc *Document, opts []Option) *loader {
	ld := &loader{doc: doc}
	for _, opt := range opts {
		opt(ld)
	}
	if ld.logger == nil {
		ld.logger = log.GetLoggerWithName("pmml")
	}
	return ld
}

// key maps a field name used by a predicate or predictor to its feature key.
func (ld *loader) key(name string) feature.Key {
	if k, ok := ld.terms[name]; ok {
		return k
	}
	return feature.FieldKey(name)
}

func (ld *loader) derivedFields(locals ...*LocalTransformations) []DerivedField {
	var out []DerivedField
	if td := ld.doc.TransformationDictionary; td != nil {
		out = append(out, td.DerivedFields...)
	}
	for _, lt := range locals {
		if lt != nil {
			out = append(out, lt.DerivedFields...)
		}
	}
	return out
}

// readText collects the text features: every derived field applying a
// defined text function to a field and a term constant.
func (ld *loader) readText(locals ...*LocalTransformations) {
	ld.terms = make(map[string]feature.Key)
	ld.text = make(evaluator.Text)

	functions := make(map[string]*TextIndex)
	if td := ld.doc.TransformationDictionary; td != nil {
		for _, fn := range td.DefineFunctions {
			if fn.TextIndex != nil {
				functions[fn.Name] = fn.TextIndex
			}
		}
	}

	vocab := make(map[string][]string)
	function := make(map[string]string)
	var order []string
	for _, df := range ld.derivedFields(locals...) {
		if df.Apply == nil {
			continue
		}
		field, term := applyArguments(df.Apply)
		if field == "" || term == "" {
			continue
		}
		if _, ok := functions[df.Apply.Function]; !ok {
			continue
		}
		if _, ok := function[field]; !ok {
			order = append(order, field)
			function[field] = df.Apply.Function
		}
		vocab[field] = append(vocab[field], term)
		ld.terms[df.Name] = feature.TermKey(field, term)
	}

	// Text fields whose vocabulary came out empty keep their function but
	// have no term fields.
	for _, df := range ld.doc.DataDictionary.DataFields {
		if _, ok := function[df.Name]; ok {
			continue
		}
		if _, ok := functions[transformName(df.Name)]; ok {
			order = append(order, df.Name)
			function[df.Name] = transformName(df.Name)
		}
	}

	for _, field := range order {
		ti := functions[function[field]]
		opts := preprocessing.TextOptions{
			Tokenizer:  ti.WordSeparatorCharacterRE,
			Vocabulary: vocab[field],
		}
		if ti.IsCaseSensitive != nil {
			opts.CaseSensitive = *ti.IsCaseSensitive
		}
		if opts.Tokenizer == "" {
			opts.Tokenizer = preprocessing.DefaultTokenizer
		}
		ld.text[field] = opts
	}
}

// applyArguments returns the first field reference and the first constant of
// a call, looking through nested calls such as lowercase(field).
func applyArguments(a *Apply) (field, term string) {
	if len(a.FieldRefs) > 0 {
		field = a.FieldRefs[0].Field
	}
	if len(a.Constants) > 0 {
		term = a.Constants[0].Value
	}
	for i := range a.Applies {
		f, t := applyArguments(&a.Applies[i])
		if field == "" {
			field = f
		}
		if term == "" {
			term = t
		}
	}
	if inner, ok := strings.CutPrefix(field, "lowercase("); ok {
		field = strings.TrimSuffix(inner, ")")
	}
	return field, strings.TrimSpace(term)
}

// spec builds the feature list from the data dictionary, keeping only names
// in types and appending the others in first-use order.
func (ld *loader) spec(types map[string]feature.Type, order []string) feature.Spec {
	var spec feature.Spec
	seen := make(map[string]bool)
	for _, df := range ld.doc.DataDictionary.DataFields {
		t, ok := types[df.Name]
		if !ok || seen[df.Name] {
			continue
		}
		seen[df.Name] = true
		spec = append(spec, feature.Feature{Name: df.Name, Type: t, Values: domain(t, df)})
	}
	for _, name := range order {
		if !seen[name] {
			seen[name] = true
			spec = append(spec, feature.Feature{Name: name, Type: types[name]})
		}
	}
	return spec
}

func domain(t feature.Type, df DataField) []string {
	if t != feature.Categorical && t != feature.Derived {
		return nil
	}
	var out []string
	for _, v := range df.Values {
		out = append(out, v.Value)
	}
	sort.Strings(out)
	return out
}

func (ld *loader) linear() (*evaluator.LinearRegression, error) {
	rm := ld.doc.RegressionModel
	if len(rm.RegressionTables) == 0 {
		return nil, errors.NewUnknownModelFormatError("RegressionModel without RegressionTable")
	}
	ld.readText(rm.LocalTransformations)

	table := rm.RegressionTables[0]
	coef := evaluator.Coefficients{Intercept: table.Intercept}
	types := make(map[string]feature.Type)
	var order []string
	use := func(name string, t feature.Type) {
		if _, ok := types[name]; !ok {
			types[name] = t
			order = append(order, name)
		}
	}

	for _, np := range table.NumericPredictors {
		k := ld.key(np.Name)
		if k.Kind == feature.KindTerm {
			use(k.Name, feature.Text)
		} else {
			use(k.Name, feature.Numeric)
		}
		coef.Terms = append(coef.Terms, evaluator.Coefficient{Key: k, Value: np.Coefficient})
	}
	for _, cp := range table.CategoricalPredictors {
		use(cp.Name, feature.Categorical)
		coef.Terms = append(coef.Terms, evaluator.Coefficient{Key: feature.CategoryKey(cp.Name, cp.Value), Value: cp.Coefficient})
	}
	for _, name := range ld.text.Names() {
		use(name, feature.Text)
	}
	// Features without a predictor, such as a categorical with one level,
	// are still inputs of the model.
	for _, name := range ld.activeFields(rm.MiningSchema) {
		use(name, ld.fieldType(name))
	}
	return evaluator.NewLinearRegression(ld.spec(types, order), coef, ld.text)
}

// activeFields lists the input fields of schema, or every data field but the
// target when the schema names none.
func (ld *loader) activeFields(schema MiningSchema) []string {
	target := ld.doc.Target()
	var out []string
	for _, f := range schema.MiningFields {
		if f.UsageType != "" && f.UsageType != "active" {
			continue
		}
		if _, derived := ld.terms[f.Name]; derived || f.Name == target {
			continue
		}
		out = append(out, f.Name)
	}
	if len(out) > 0 {
		return out
	}
	for _, df := range ld.doc.DataDictionary.DataFields {
		if df.Name != target {
			out = append(out, df.Name)
		}
	}
	return out
}

// fieldType types a declared field from its text function or data field.
func (ld *loader) fieldType(name string) feature.Type {
	if _, ok := ld.text[name]; ok {
		return feature.Text
	}
	for _, df := range ld.doc.DataDictionary.DataFields {
		if df.Name != name {
			continue
		}
		if df.Optype == "categorical" || df.Optype == "ordinal" || df.DataType == "string" || df.DataType == "boolean" {
			return feature.Categorical
		}
		break
	}
	return feature.Numeric
}

func (ld *loader) trees() (*evaluator.TreeEnsemble, error) {
	mm := ld.doc.MiningModel

	objective := model.Regression
	var labels []string
	if mm.FunctionName == "classification" {
		labels = outputLabels(mm)
		switch {
		case len(labels) > 2:
			objective = model.Multiclass
		case len(labels) == 2:
			objective = model.Binary
		default:
			return nil, errors.NewUnknownModelFormatError("classification MiningModel without class probabilities")
		}
	}

	var locals []*LocalTransformations
	var trees []*TreeModel
	walkMiningModels(mm, func(m *MiningModel) {
		locals = append(locals, m.LocalTransformations)
		if m.Segmentation == nil {
			return
		}
		for _, s := range m.Segmentation.Segments {
			if s.TreeModel != nil {
				trees = append(trees, s.TreeModel)
			}
		}
	})
	if len(trees) == 0 {
		return nil, errors.NewUnknownModelFormatError("segmentation without TreeModel")
	}
	ld.readText(locals...)

	target := ld.doc.Target()
	types := make(map[string]feature.Type)
	var order []string
	for _, df := range ld.doc.DataDictionary.DataFields {
		if df.Name != target {
			types[df.Name] = ld.fieldType(df.Name)
		}
	}
	for _, name := range ld.text.Names() {
		if _, ok := types[name]; !ok {
			types[name] = feature.Text
			order = append(order, name)
		}
	}

	nodes := make([]*evaluator.Node, len(trees))
	for i, tm := range trees {
		n, err := ld.node(&tm.Node)
		if err != nil {
			return nil, errors.Wrapf(err, "tree %d", i)
		}
		nodes[i] = n
	}
	return evaluator.NewTreeEnsemble(ld.spec(types, order), objective, labels, nodes, ld.text)
}

// walkMiningModels visits m and every mining model nested in its segments.
func walkMiningModels(m *MiningModel, visit func(*MiningModel)) {
	visit(m)
	if m.Segmentation == nil {
		return
	}
	for _, s := range m.Segmentation.Segments {
		if s.MiningModel != nil {
			walkMiningModels(s.MiningModel, visit)
		}
	}
}

// outputLabels returns the class values of the probability outputs of the
// regression models chained in the segmentation.
func outputLabels(mm *MiningModel) []string {
	var labels []string
	walkMiningModels(mm, func(m *MiningModel) {
		if m.Segmentation == nil {
			return
		}
		for _, s := range m.Segmentation.Segments {
			if s.RegressionModel == nil || s.RegressionModel.Output == nil {
				continue
			}
			for _, f := range s.RegressionModel.Output.OutputFields {
				if f.Value != "" && !slices.Contains(labels, f.Value) {
					labels = append(labels, f.Value)
				}
			}
		}
	})
	return labels
}

func (ld *loader) node(n *Node) (*evaluator.Node, error) {
	out := &evaluator.Node{Score: n.Score}
	switch {
	case n.SimplePredicate != nil:
		p := n.SimplePredicate
		pred := &evaluator.Predicate{Field: ld.key(p.Field), Operator: evaluator.Operator(p.Operator)}
		switch pred.Operator {
		case evaluator.GreaterThan, evaluator.LessOrEqual:
			th, err := strconv.ParseFloat(p.Value, 64)
			if err != nil {
				return nil, errors.NewUnknownModelFormatError("invalid threshold " + strconv.Quote(p.Value))
			}
			pred.Threshold = th
		case evaluator.Equal:
			pred.Set = []string{p.Value}
		default:
			return nil, errors.NewUnknownModelFormatError("unsupported operator " + p.Operator)
		}
		out.Predicate = pred
	case n.SimpleSetPredicate != nil:
		p := n.SimpleSetPredicate
		if p.BooleanOperator != "isIn" {
			return nil, errors.NewUnknownModelFormatError("unsupported set operator " + p.BooleanOperator)
		}
		out.Predicate = &evaluator.Predicate{Field: ld.key(p.Field), Operator: evaluator.In, Set: ParseArray(p.Array.Value)}
	}

	for i := range n.Nodes {
		c, err := ld.node(&n.Nodes[i])
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, c)
	}
	return out, nil
}

// ParseArray splits the content of a string Array. Entries are separated by
// whitespace; quoted entries may contain spaces and \" escapes.
func ParseArray(s string) []string {
	var out []string
	r := []rune(s)
	for i := 0; i < len(r); {
		switch {
		case r[i] == ' ' || r[i] == '\t' || r[i] == '\n' || r[i] == '\r':
			i++
		case r[i] == '"':
			var b strings.Builder
			i++
			for i < len(r) && r[i] != '"' {
				if r[i] == '\\' && i+1 < len(r) && r[i+1] == '"' {
					i++
				}
				b.WriteRune(r[i])
				i++
			}
			i++
			out = append(out, b.String())
		default:
			start := i
			for i < len(r) && !strings.ContainsRune(" \t\n\r", r[i]) {
				i++
			}
			out = append(out, string(r[start:i]))
		}
	}
	return out
}

func (ld *loader) naiveBayes(allowLegacy bool) (*evaluator.NaiveBayes, error) {
	nb := ld.doc.NaiveBayesModel

	probs := evaluator.ProbabilityTable{
		Prior:       make(map[string]float64),
		Categorical: make(map[string]map[string]map[string]float64),
		Numeric:     make(map[string]map[string]evaluator.Gaussian),
	}
	var classes []string
	prior := make(map[string]decimal.Decimal)
	for _, tvc := range nb.BayesOutput.TargetValueCounts.TargetValueCounts {
		n, err := parseCount(tvc.Count)
		if err != nil {
			return nil, err
		}
		prior[tvc.Value] = n
		classes = append(classes, tvc.Value)
	}
	if len(classes) == 0 {
		return nil, errors.NewUnknownModelFormatError("BayesOutput without target counts")
	}
	if classTotal(prior, classes).Sign() <= 0 {
		return nil, errors.NewUnknownModelFormatError("BayesOutput target counts sum to zero")
	}
	probs.Prior = toFloats(prior)

	derived := make(map[string][]evaluator.Derived)
	derivedName := make(map[string]bool)
	var sources []string
	for _, df := range ld.derivedFields(nb.LocalTransformations) {
		if df.NormDiscrete == nil {
			continue
		}
		src := df.NormDiscrete.Field
		if _, ok := derived[src]; !ok {
			sources = append(sources, src)
		}
		derived[src] = append(derived[src], evaluator.Derived{Name: df.Name, Value: df.NormDiscrete.Value})
		derivedName[df.Name] = true
	}

	types := make(map[string]feature.Type)
	var order []string
	for _, in := range nb.BayesInputs.BayesInputs {
		if in.TargetValueStats != nil {
			stats := make(map[string]evaluator.Gaussian)
			for _, s := range in.TargetValueStats.TargetValueStats {
				g := s.GaussianDistribution
				stats[s.Value] = evaluator.Gaussian{Mean: g.Mean, Stdev: math.Sqrt(g.Variance)}
			}
			probs.Numeric[in.FieldName] = stats
			if !derivedName[in.FieldName] {
				types[in.FieldName] = feature.Numeric
				order = append(order, in.FieldName)
			}
			continue
		}

		legacy := legacyPairCounts(in.PairCounts, classes)
		if legacy && !allowLegacy {
			return nil, errors.NewUnknownModelFormatError("naive Bayes pair counts are keyed by class (legacy layout); use LoadLegacyNaiveBayes")
		}

		counts := make(map[string]map[string]decimal.Decimal)
		for _, pc := range in.PairCounts {
			for _, tvc := range pc.TargetValueCounts.TargetValueCounts {
				n, err := parseCount(tvc.Count)
				if err != nil {
					return nil, err
				}
				value, class := tvc.Value, pc.Value
				if !legacy {
					value, class = pc.Value, tvc.Value
				}
				if counts[value] == nil {
					counts[value] = make(map[string]decimal.Decimal, len(classes))
				}
				counts[value][class] = n
			}
		}
		for _, byClass := range counts {
			for _, c := range classes {
				if _, ok := byClass[c]; !ok {
					byClass[c] = decimal.Zero
				}
			}
		}
		if legacy {
			totals := make(map[string]string, len(classes))
			for _, c := range classes {
				byValue := make(map[string]decimal.Decimal, len(counts))
				for v, byClass := range counts {
					byValue[v] = byClass[c]
				}
				totals[c] = classTotal(byValue, mapKeys(counts)).String()
			}
			ld.logger.Warn("Reading legacy naive Bayes pair counts",
				log.FormatKey, FormatLegacyNaiveBayes,
				log.ColumnKey, in.FieldName,
				log.CountsKey, totals,
			)
		}

		table := make(map[string]map[string]float64, len(counts))
		for v, byClass := range counts {
			table[v] = toFloats(byClass)
		}
		probs.Categorical[in.FieldName] = table
		types[in.FieldName] = feature.Categorical
		order = append(order, in.FieldName)
	}

	for _, src := range sources {
		types[src] = feature.Derived
		order = append(order, src)
	}

	spec := ld.spec(types, order)
	for i, f := range spec {
		switch f.Type {
		case feature.Categorical:
			spec[i].Values = mapKeys(probs.Categorical[f.Name])
		case feature.Derived:
			var vs []string
			for _, d := range derived[f.Name] {
				vs = append(vs, d.Value)
			}
			sort.Strings(vs)
			spec[i].Values = vs
		}
	}
	return evaluator.NewNaiveBayes(spec, probs, derived)
}

func mapKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// legacyPairCounts reports whether a BayesInput lists one PairCounts per
// class. A document where every PairCounts holds a count for each class is read
// as the current layout even when the feature values equal the classes.
func legacyPairCounts(pairs []PairCounts, classes []string) bool {
	want := slices.Sorted(slices.Values(classes))
	current := true
	values := make([]string, 0, len(pairs))
	for _, pc := range pairs {
		values = append(values, pc.Value)
		var got []string
		for _, tvc := range pc.TargetValueCounts.TargetValueCounts {
			got = append(got, tvc.Value)
		}
		sort.Strings(got)
		if !slices.Equal(got, want) {
			current = false
		}
	}
	return !current && slices.Equal(values, classes)
}

// parseCount reads a non-negative decimal count exactly.
func parseCount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, errors.NewUnknownModelFormatError("invalid count " + strconv.Quote(s))
	}
	if d.IsNegative() {
		return decimal.Zero, errors.NewUnknownModelFormatError("negative count " + strconv.Quote(s))
	}
	return d, nil
}

// classTotal sums the counts of keys in order.
func classTotal(counts map[string]decimal.Decimal, keys []string) decimal.Decimal {
	total := decimal.Zero
	for _, k := range keys {
		total = total.Add(counts[k])
	}
	return total
}

func toFloats(counts map[string]decimal.Decimal) map[string]float64 {
	out := make(map[string]float64, len(counts))
	for k, d := range counts {
		out[k], _ = d.Float64()
	}
	return out
}
