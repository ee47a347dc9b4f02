package pmml

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/evaluator"
	"github.com/YuminosukeSato/eps/pkg/errors"
)

// ApplicationName is written to the document header.
const ApplicationName = "Eps"

// Generate renders ev as a PMML 4.4 document. target names the predicted
// column in the data dictionary.
func Generate(ev model.Evaluator, target string) ([]byte, error) {
	const op = "pmml.Generate"
	if target == "" {
		return nil, errors.NewValueError(op, "target name is empty")
	}

	var (
		doc *Document
		err error
	)
	switch e := ev.(type) {
	case *evaluator.LinearRegression:
		doc = linearDocument(e, target)
	case *evaluator.NaiveBayes:
		doc = naiveBayesDocument(e, target)
	case *evaluator.TreeEnsemble:
		doc, err = treeDocument(e, target)
	default:
		return nil, errors.NewValueError(op, fmt.Sprintf("unsupported evaluator %T", ev))
	}
	if err != nil {
		return nil, err
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal document")
	}
	return append([]byte(xml.Header), out...), nil
}

func newDocument(targetField DataField, spec feature.Spec, text evaluator.Text) *Document {
	doc := &Document{
		Version: "4.4",
		Xmlns:   Namespace,
		Header:  Header{Application: Application{Name: ApplicationName}},
	}
	doc.DataDictionary.DataFields = append(doc.DataDictionary.DataFields, targetField)
	for _, f := range spec {
		doc.DataDictionary.DataFields = append(doc.DataDictionary.DataFields, dataField(f))
	}

	if names := textNames(spec); len(names) > 0 {
		td := &TransformationDictionary{}
		for _, name := range names {
			opts := text[name]
			sensitive := opts.CaseSensitive
			td.DefineFunctions = append(td.DefineFunctions, DefineFunction{
				Name:            transformName(name),
				Optype:          "continuous",
				ParameterFields: []ParameterField{{Name: "text"}, {Name: "term"}},
				TextIndex: &TextIndex{
					TextField:                "text",
					LocalTermWeights:         "termFrequency",
					WordSeparatorCharacterRE: opts.Tokenizer,
					IsCaseSensitive:          &sensitive,
					FieldRef:                 &FieldRef{Field: "term"},
				},
			})
		}
		doc.TransformationDictionary = td
	}
	return doc
}

func dataField(f feature.Feature) DataField {
	switch f.Type {
	case feature.Numeric:
		return DataField{Name: f.Name, Optype: "continuous", DataType: "double"}
	case feature.Text:
		return DataField{Name: f.Name, Optype: "categorical", DataType: "string"}
	default:
		return DataField{Name: f.Name, Optype: "categorical", DataType: "string", Values: values(f.Values)}
	}
}

func values(vs []string) []Value {
	sorted := append([]string(nil), vs...)
	sort.Strings(sorted)
	out := make([]Value, len(sorted))
	for i, v := range sorted {
		out[i] = Value{Value: v}
	}
	return out
}

func regressionTarget(name string) DataField {
	return DataField{Name: name, Optype: "continuous", DataType: "double"}
}

func classificationTarget(name string, classes []string) DataField {
	return DataField{Name: name, Optype: "categorical", DataType: "string", Values: values(classes)}
}

func miningSchema(target string, spec feature.Spec) MiningSchema {
	ms := MiningSchema{MiningFields: []MiningField{{Name: target, UsageType: "target"}}}
	for _, f := range spec {
		ms.MiningFields = append(ms.MiningFields, MiningField{Name: f.Name})
	}
	return ms
}

func textNames(spec feature.Spec) []string {
	return spec.OfType(feature.Text).Names()
}

func transformName(field string) string { return field + "Transform" }

// termFields defines one integer field per vocabulary term, in spec order.
func termFields(spec feature.Spec, text evaluator.Text) *LocalTransformations {
	var lt LocalTransformations
	for _, name := range textNames(spec) {
		for _, term := range text[name].Vocabulary {
			lt.DerivedFields = append(lt.DerivedFields, DerivedField{
				Name:     feature.TermKey(name, term).String(),
				Optype:   "continuous",
				DataType: "integer",
				Apply: &Apply{
					Function:  transformName(name),
					FieldRefs: []FieldRef{{Field: name}},
					Constants: []Constant{{Value: term}},
				},
			})
		}
	}
	if len(lt.DerivedFields) == 0 {
		return nil
	}
	return &lt
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func linearDocument(e *evaluator.LinearRegression, target string) *Document {
	spec := e.Features()
	doc := newDocument(regressionTarget(target), spec, e.Text())

	coef := e.Coefficients()
	table := RegressionTable{Intercept: coef.Intercept}
	for _, t := range coef.Terms {
		switch t.Key.Kind {
		case feature.KindCategory:
			table.CategoricalPredictors = append(table.CategoricalPredictors, CategoricalPredictor{
				Name: t.Key.Name, Value: t.Key.Value, Coefficient: t.Value,
			})
		default:
			table.NumericPredictors = append(table.NumericPredictors, NumericPredictor{
				Name: t.Key.String(), Coefficient: t.Value,
			})
		}
	}

	doc.RegressionModel = &RegressionModel{
		FunctionName:         "regression",
		MiningSchema:         miningSchema(target, spec),
		LocalTransformations: termFields(spec, e.Text()),
		RegressionTables:     []RegressionTable{table},
	}
	return doc
}

func naiveBayesDocument(e *evaluator.NaiveBayes, target string) *Document {
	spec := e.Features()
	classes := e.Classes()
	probs := e.Probabilities()
	derived := e.Derived()

	doc := newDocument(classificationTarget(target, classes), spec, nil)
	m := &NaiveBayesModel{
		FunctionName: "classification",
		Threshold:    0.001,
		MiningSchema: miningSchema(target, spec),
	}

	stats := func(name string) *TargetValueStats {
		s := &TargetValueStats{}
		for _, c := range classes {
			g := probs.Numeric[name][c]
			s.TargetValueStats = append(s.TargetValueStats, TargetValueStat{
				Value:                c,
				GaussianDistribution: GaussianDistribution{Mean: g.Mean, Variance: g.Stdev * g.Stdev},
			})
		}
		return s
	}

	var lt LocalTransformations
	for _, f := range spec {
		switch f.Type {
		case feature.Categorical:
			in := BayesInput{FieldName: f.Name}
			vals := make([]string, 0, len(probs.Categorical[f.Name]))
			for v := range probs.Categorical[f.Name] {
				vals = append(vals, v)
			}
			sort.Strings(vals)
			for _, v := range vals {
				pc := PairCounts{Value: v}
				for _, c := range classes {
					pc.TargetValueCounts.TargetValueCounts = append(pc.TargetValueCounts.TargetValueCounts, TargetValueCount{
						Value: c, Count: formatFloat(probs.Smoothed(f.Name, v, c)),
					})
				}
				in.PairCounts = append(in.PairCounts, pc)
			}
			m.BayesInputs.BayesInputs = append(m.BayesInputs.BayesInputs, in)
		case feature.Derived:
			for _, d := range derived[f.Name] {
				lt.DerivedFields = append(lt.DerivedFields, DerivedField{
					Name:         d.Name,
					Optype:       "continuous",
					DataType:     "double",
					NormDiscrete: &NormDiscrete{Field: f.Name, Value: d.Value},
				})
				m.BayesInputs.BayesInputs = append(m.BayesInputs.BayesInputs, BayesInput{FieldName: d.Name, TargetValueStats: stats(d.Name)})
			}
		default:
			m.BayesInputs.BayesInputs = append(m.BayesInputs.BayesInputs, BayesInput{FieldName: f.Name, TargetValueStats: stats(f.Name)})
		}
	}
	if len(lt.DerivedFields) > 0 {
		m.LocalTransformations = &lt
	}

	m.BayesOutput.FieldName = target
	for _, c := range classes {
		m.BayesOutput.TargetValueCounts.TargetValueCounts = append(m.BayesOutput.TargetValueCounts.TargetValueCounts, TargetValueCount{
			Value: c, Count: formatFloat(probs.Prior[c]),
		})
	}

	doc.NaiveBayesModel = m
	return doc
}

func treeDocument(e *evaluator.TreeEnsemble, target string) (*Document, error) {
	spec := e.Features()
	text := e.Text()
	classes := e.Classes()

	var doc *Document
	if e.Objective() == model.Regression {
		doc = newDocument(regressionTarget(target), spec, text)
	} else {
		doc = newDocument(classificationTarget(target, classes), spec, text)
	}

	mm := &MiningModel{
		AlgorithmName:        "LightGBM",
		MiningSchema:         miningSchema(target, spec),
		LocalTransformations: termFields(spec, text),
	}
	trees := e.Trees()

	switch e.Objective() {
	case model.Regression:
		mm.FunctionName = "regression"
		mm.Segmentation = sumSegmentation(trees)
	case model.Binary:
		mm.FunctionName = "classification"
		mm.Segmentation = &Segmentation{
			MultipleModelMethod: "modelChain",
			Segments: []Segment{
				{ID: 1, True: &struct{}{}, MiningModel: &MiningModel{
					FunctionName: "regression",
					MiningSchema: featureSchema(spec),
					Output: &Output{OutputFields: []OutputField{
						scoreField("lgbmValue"),
						{
							Name:          "transformedLgbmValue",
							Optype:        "continuous",
							DataType:      "double",
							Feature:       "transformedValue",
							IsFinalResult: boolPtr(false),
							Apply:         sigmoid("lgbmValue"),
						},
					}},
					Segmentation: sumSegmentation(trees),
				}},
				{ID: 2, True: &struct{}{}, RegressionModel: &RegressionModel{
					FunctionName:        "classification",
					NormalizationMethod: "none",
					MiningSchema: MiningSchema{MiningFields: []MiningField{
						{Name: target, UsageType: "target"},
						{Name: "transformedLgbmValue"},
					}},
					Output: probabilityOutput(classes),
					RegressionTables: []RegressionTable{
						{TargetCategory: classes[1], NumericPredictors: []NumericPredictor{{Name: "transformedLgbmValue", Coefficient: 1}}},
						{TargetCategory: classes[0]},
					},
				}},
			},
		}
	case model.Multiclass:
		mm.FunctionName = "classification"
		per := e.TreesPerClass()
		seg := &Segmentation{MultipleModelMethod: "modelChain"}
		final := &RegressionModel{
			FunctionName:        "classification",
			NormalizationMethod: "softmax",
			MiningSchema:        MiningSchema{MiningFields: []MiningField{{Name: target, UsageType: "target"}}},
			Output:              probabilityOutput(classes),
		}
		for i, c := range classes {
			name := "lgbmValue(" + c + ")"
			seg.Segments = append(seg.Segments, Segment{ID: i + 1, True: &struct{}{}, MiningModel: &MiningModel{
				FunctionName: "regression",
				MiningSchema: featureSchema(spec),
				Output:       &Output{OutputFields: []OutputField{scoreField(name)}},
				Segmentation: sumSegmentation(trees[i*per : (i+1)*per]),
			}})
			final.MiningSchema.MiningFields = append(final.MiningSchema.MiningFields, MiningField{Name: name})
			final.RegressionTables = append(final.RegressionTables, RegressionTable{
				TargetCategory:    c,
				NumericPredictors: []NumericPredictor{{Name: name, Coefficient: 1}},
			})
		}
		seg.Segments = append(seg.Segments, Segment{ID: len(classes) + 1, True: &struct{}{}, RegressionModel: final})
		mm.Segmentation = seg
	default:
		return nil, errors.NewValueError("pmml.Generate", "unknown objective "+string(e.Objective()))
	}

	doc.MiningModel = mm
	return doc, nil
}

func featureSchema(spec feature.Spec) MiningSchema {
	var ms MiningSchema
	for _, f := range spec {
		ms.MiningFields = append(ms.MiningFields, MiningField{Name: f.Name})
	}
	return ms
}

func boolPtr(b bool) *bool { return &b }

func scoreField(name string) OutputField {
	return OutputField{
		Name:          name,
		Optype:        "continuous",
		DataType:      "double",
		Feature:       "predictedValue",
		IsFinalResult: boolPtr(false),
	}
}

func probabilityOutput(classes []string) *Output {
	out := &Output{}
	for _, c := range classes {
		out.OutputFields = append(out.OutputFields, OutputField{
			Name:     "probability(" + c + ")",
			Optype:   "continuous",
			DataType: "double",
			Feature:  "probability",
			Value:    c,
		})
	}
	return out
}

// sigmoid is 1 / (1 + exp(-1 * field)).
func sigmoid(field string) *Apply {
	return &Apply{
		Function:  "/",
		Constants: []Constant{{DataType: "double", Value: "1"}},
		Applies: []Apply{{
			Function:  "+",
			Constants: []Constant{{DataType: "double", Value: "1"}},
			Applies: []Apply{{
				Function: "exp",
				Applies: []Apply{{
					Function:  "*",
					FieldRefs: []FieldRef{{Field: field}},
					Constants: []Constant{{DataType: "double", Value: "-1"}},
				}},
			}},
		}},
	}
}

func sumSegmentation(trees []*evaluator.Node) *Segmentation {
	seg := &Segmentation{MultipleModelMethod: "sum"}
	for i, t := range trees {
		seg.Segments = append(seg.Segments, Segment{ID: i + 1, True: &struct{}{}, TreeModel: treeModel(t)})
	}
	return seg
}

func treeModel(root *evaluator.Node) *TreeModel {
	tm := &TreeModel{
		FunctionName:         "regression",
		MissingValueStrategy: "none",
		NoTrueChildStrategy:  "returnLastPrediction",
		SplitCharacteristic:  "multiSplit",
		Node:                 treeNode(root),
	}
	for _, k := range root.Fields() {
		tm.MiningSchema.MiningFields = append(tm.MiningSchema.MiningFields, MiningField{Name: k.String()})
	}
	return tm
}

func treeNode(n *evaluator.Node) Node {
	out := Node{Score: n.Score}
	switch p := n.Predicate; {
	case p == nil:
		out.True = &struct{}{}
	case p.Operator == evaluator.In:
		out.SimpleSetPredicate = &SimpleSetPredicate{
			Field:           p.Field.String(),
			BooleanOperator: "isIn",
			Array:           Array{Type: "string", Value: quoteArray(p.Set)},
		}
	case p.Operator == evaluator.Equal:
		out.SimplePredicate = &SimplePredicate{Field: p.Field.String(), Operator: string(p.Operator), Value: p.Set[0]}
	default:
		out.SimplePredicate = &SimplePredicate{Field: p.Field.String(), Operator: string(p.Operator), Value: formatFloat(p.Threshold)}
	}
	for _, c := range n.Children {
		out.Nodes = append(out.Nodes, treeNode(c))
	}
	return out
}

func quoteArray(vs []string) string {
	quoted := make([]string, len(vs))
	for i, v := range vs {
		quoted[i] = `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return strings.Join(quoted, " ")
}
