package pmml

import "encoding/xml"

// Namespace is the PMML 4.4 namespace written by Generate.
const Namespace = "http://www.dmg.org/PMML-4_4"

// Document is the subset of PMML 4.4 read and written by this package.
// Elements are matched by local name, so documents of other PMML versions
// decode as well.
type Document struct {
	XMLName xml.Name `xml:"PMML"`
	Version string   `xml:"version,attr"`
	Xmlns   string   `xml:"xmlns,attr,omitempty"`

	Header                   Header                    `xml:"Header"`
	DataDictionary           DataDictionary            `xml:"DataDictionary"`
	TransformationDictionary *TransformationDictionary `xml:"TransformationDictionary"`

	RegressionModel *RegressionModel `xml:"RegressionModel"`
	NaiveBayesModel *NaiveBayesModel `xml:"NaiveBayesModel"`
	MiningModel     *MiningModel     `xml:"MiningModel"`
}

type Header struct {
	Application Application `xml:"Application"`
}

type Application struct {
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr,omitempty"`
}

type DataDictionary struct {
	DataFields []DataField `xml:"DataField"`
}

// DataField declares one input or target column.
type DataField struct {
	Name     string  `xml:"name,attr"`
	Optype   string  `xml:"optype,attr"`
	DataType string  `xml:"dataType,attr"`
	Values   []Value `xml:"Value"`
}

type Value struct {
	Value string `xml:"value,attr"`
}

type TransformationDictionary struct {
	DefineFunctions []DefineFunction `xml:"DefineFunction"`
	DerivedFields   []DerivedField   `xml:"DerivedField"`
}

// DefineFunction holds the tokenizer settings of one text feature.
type DefineFunction struct {
	Name            string           `xml:"name,attr"`
	Optype          string           `xml:"optype,attr"`
	ParameterFields []ParameterField `xml:"ParameterField"`
	TextIndex       *TextIndex       `xml:"TextIndex"`
}

type ParameterField struct {
	Name string `xml:"name,attr"`
}

type TextIndex struct {
	TextField                string    `xml:"textField,attr"`
	LocalTermWeights         string    `xml:"localTermWeights,attr,omitempty"`
	WordSeparatorCharacterRE string    `xml:"wordSeparatorCharacterRE,attr,omitempty"`
	IsCaseSensitive          *bool     `xml:"isCaseSensitive,attr"`
	FieldRef                 *FieldRef `xml:"FieldRef"`
}

type LocalTransformations struct {
	DerivedFields []DerivedField `xml:"DerivedField"`
}

// DerivedField is either a text term count (an Apply of the feature's
// transform function to a FieldRef and a term Constant) or an indicator
// (NormDiscrete).
type DerivedField struct {
	Name         string        `xml:"name,attr"`
	Optype       string        `xml:"optype,attr"`
	DataType     string        `xml:"dataType,attr"`
	Apply        *Apply        `xml:"Apply"`
	NormDiscrete *NormDiscrete `xml:"NormDiscrete"`
}

// Apply is a function call. Arguments are written field references first,
// then constants, then nested calls.
type Apply struct {
	Function  string     `xml:"function,attr"`
	FieldRefs []FieldRef `xml:"FieldRef"`
	Constants []Constant `xml:"Constant"`
	Applies   []Apply    `xml:"Apply"`
}

type FieldRef struct {
	Field string `xml:"field,attr"`
}

type Constant struct {
	DataType string `xml:"dataType,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type NormDiscrete struct {
	Field string `xml:"field,attr"`
	Value string `xml:"value,attr"`
}

type MiningSchema struct {
	MiningFields []MiningField `xml:"MiningField"`
}

type MiningField struct {
	Name      string `xml:"name,attr"`
	UsageType string `xml:"usageType,attr,omitempty"`
}

type Output struct {
	OutputFields []OutputField `xml:"OutputField"`
}

type OutputField struct {
	Name          string `xml:"name,attr"`
	Optype        string `xml:"optype,attr"`
	DataType      string `xml:"dataType,attr"`
	Feature       string `xml:"feature,attr"`
	Value         string `xml:"value,attr,omitempty"`
	IsFinalResult *bool  `xml:"isFinalResult,attr"`
	Apply         *Apply `xml:"Apply"`
}

type RegressionModel struct {
	FunctionName         string                `xml:"functionName,attr"`
	NormalizationMethod  string                `xml:"normalizationMethod,attr,omitempty"`
	MiningSchema         MiningSchema          `xml:"MiningSchema"`
	Output               *Output               `xml:"Output"`
	LocalTransformations *LocalTransformations `xml:"LocalTransformations"`
	RegressionTables     []RegressionTable     `xml:"RegressionTable"`
}

type RegressionTable struct {
	Intercept             float64                `xml:"intercept,attr"`
	TargetCategory        string                 `xml:"targetCategory,attr,omitempty"`
	NumericPredictors     []NumericPredictor     `xml:"NumericPredictor"`
	CategoricalPredictors []CategoricalPredictor `xml:"CategoricalPredictor"`
}

type NumericPredictor struct {
	Name        string  `xml:"name,attr"`
	Coefficient float64 `xml:"coefficient,attr"`
}

type CategoricalPredictor struct {
	Name        string  `xml:"name,attr"`
	Value       string  `xml:"value,attr"`
	Coefficient float64 `xml:"coefficient,attr"`
}

type NaiveBayesModel struct {
	FunctionName         string                `xml:"functionName,attr"`
	Threshold            float64               `xml:"threshold,attr"`
	MiningSchema         MiningSchema          `xml:"MiningSchema"`
	LocalTransformations *LocalTransformations `xml:"LocalTransformations"`
	BayesInputs          BayesInputs           `xml:"BayesInputs"`
	BayesOutput          BayesOutput           `xml:"BayesOutput"`
}

type BayesInputs struct {
	BayesInputs []BayesInput `xml:"BayesInput"`
}

// BayesInput holds either PairCounts (categorical) or TargetValueStats
// (numeric) for one field.
type BayesInput struct {
	FieldName        string            `xml:"fieldName,attr"`
	TargetValueStats *TargetValueStats `xml:"TargetValueStats"`
	PairCounts       []PairCounts      `xml:"PairCounts"`
}

type PairCounts struct {
	Value             string            `xml:"value,attr"`
	TargetValueCounts TargetValueCounts `xml:"TargetValueCounts"`
}

type TargetValueCounts struct {
	TargetValueCounts []TargetValueCount `xml:"TargetValueCount"`
}

// TargetValueCount keeps the count as written so that the legacy loader can
// parse it exactly.
type TargetValueCount struct {
	Value string `xml:"value,attr"`
	Count string `xml:"count,attr"`
}

type TargetValueStats struct {
	TargetValueStats []TargetValueStat `xml:"TargetValueStat"`
}

type TargetValueStat struct {
	Value                string               `xml:"value,attr"`
	GaussianDistribution GaussianDistribution `xml:"GaussianDistribution"`
}

type GaussianDistribution struct {
	Mean     float64 `xml:"mean,attr"`
	Variance float64 `xml:"variance,attr"`
}

type BayesOutput struct {
	FieldName         string            `xml:"fieldName,attr"`
	TargetValueCounts TargetValueCounts `xml:"TargetValueCounts"`
}

type MiningModel struct {
	FunctionName         string                `xml:"functionName,attr"`
	AlgorithmName        string                `xml:"algorithmName,attr,omitempty"`
	MiningSchema         MiningSchema          `xml:"MiningSchema"`
	Output               *Output               `xml:"Output"`
	LocalTransformations *LocalTransformations `xml:"LocalTransformations"`
	Segmentation         *Segmentation         `xml:"Segmentation"`
}

type Segmentation struct {
	MultipleModelMethod string    `xml:"multipleModelMethod,attr"`
	Segments            []Segment `xml:"Segment"`
}

type Segment struct {
	ID              int              `xml:"id,attr"`
	True            *struct{}        `xml:"True"`
	TreeModel       *TreeModel       `xml:"TreeModel"`
	MiningModel     *MiningModel     `xml:"MiningModel"`
	RegressionModel *RegressionModel `xml:"RegressionModel"`
}

type TreeModel struct {
	FunctionName         string       `xml:"functionName,attr"`
	MissingValueStrategy string       `xml:"missingValueStrategy,attr,omitempty"`
	NoTrueChildStrategy  string       `xml:"noTrueChildStrategy,attr,omitempty"`
	SplitCharacteristic  string       `xml:"splitCharacteristic,attr,omitempty"`
	MiningSchema         MiningSchema `xml:"MiningSchema"`
	Node                 Node         `xml:"Node"`
}

// Node is a tree node: one predicate element followed by the child nodes.
type Node struct {
	Score              float64             `xml:"score,attr"`
	True               *struct{}           `xml:"True"`
	SimplePredicate    *SimplePredicate    `xml:"SimplePredicate"`
	SimpleSetPredicate *SimpleSetPredicate `xml:"SimpleSetPredicate"`
	Nodes              []Node              `xml:"Node"`
}

type SimplePredicate struct {
	Field    string `xml:"field,attr"`
	Operator string `xml:"operator,attr"`
	Value    string `xml:"value,attr"`
}

type SimpleSetPredicate struct {
	Field           string `xml:"field,attr"`
	BooleanOperator string `xml:"booleanOperator,attr"`
	Array           Array  `xml:"Array"`
}

// Array is a whitespace separated list; string entries may be quoted.
type Array struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}
