package pmml

import (
	"strings"
	"testing"

	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/core/table"
	"github.com/YuminosukeSato/eps/evaluator"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/YuminosukeSato/eps/pkg/log"
	"github.com/YuminosukeSato/eps/preprocessing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTable(t *testing.T, cols ...table.Column) *table.Table {
	t.Helper()
	tbl, err := table.FromColumns(cols...)
	require.NoError(t, err)
	return tbl
}

func roundTrip(t *testing.T, ev model.Evaluator) (model.Evaluator, []byte) {
	t.Helper()
	data, err := Generate(ev, "y")
	require.NoError(t, err)
	loaded, err := Load(data)
	require.NoError(t, err)
	return loaded, data
}

var reviewText = evaluator.Text{"review": {Tokenizer: preprocessing.DefaultTokenizer, Vocabulary: []string{"good", "bad"}}}

func TestLinearRegressionRoundTrip(t *testing.T) {
	spec := feature.Spec{
		{Name: "x", Type: feature.Numeric},
		{Name: "color", Type: feature.Categorical, Values: []string{"blue", "red"}},
		{Name: "review", Type: feature.Text},
		// Neither has a predictor: one level and an empty vocabulary.
		{Name: "store", Type: feature.Categorical, Values: []string{"main"}},
		{Name: "notes", Type: feature.Text},
	}
	text := evaluator.Text{
		"review": reviewText["review"],
		"notes":  {Tokenizer: preprocessing.DefaultTokenizer},
	}
	ev, err := evaluator.NewLinearRegression(spec, evaluator.Coefficients{
		Intercept: 1.5,
		Terms: []evaluator.Coefficient{
			{Key: feature.FieldKey("x"), Value: 2},
			{Key: feature.TermKey("review", "good"), Value: 4},
			{Key: feature.TermKey("review", "bad"), Value: -1.25},
			{Key: feature.CategoryKey("color", "red"), Value: 3},
		},
	}, text)
	require.NoError(t, err)

	loaded, data := roundTrip(t, ev)
	assert.Contains(t, string(data), `xmlns="http://www.dmg.org/PMML-4_4"`)
	assert.Contains(t, string(data), `<Application name="Eps">`)
	assert.Contains(t, string(data), `name="review(good)"`)

	lr, ok := loaded.(*evaluator.LinearRegression)
	require.True(t, ok)
	assert.Equal(t, ev.Features(), lr.Features())
	assert.Equal(t, ev.Coefficients(), lr.Coefficients())
	assert.Equal(t, ev.Text(), lr.Text())

	data2 := mustTable(t,
		table.Column{Name: "x", Values: []any{1.0, -2.0}},
		table.Column{Name: "color", Values: []any{"red", "blue"}},
		table.Column{Name: "review", Values: []any{"Good good", "bad"}},
		table.Column{Name: "store", Values: []any{"main", "main"}},
		table.Column{Name: "notes", Values: []any{"late", ""}},
	)
	want, err := ev.Predict(data2)
	require.NoError(t, err)
	got, err := lr.Predict(data2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.InDelta(t, 1.5+2+3+8, got.Scores[0], 1e-12)

	for _, name := range []string{"store", "notes"} {
		partial := data2.Dup()
		partial.Delete(name)
		var missing *errors.MissingColumnError
		_, err = ev.Predict(partial)
		assert.True(t, errors.As(err, &missing), "%s: got %v", name, err)
		_, err = lr.Predict(partial)
		assert.True(t, errors.As(err, &missing), "%s: got %v", name, err)
	}
}

func TestNaiveBayesRoundTrip(t *testing.T) {
	spec := feature.Spec{
		{Name: "color", Type: feature.Categorical, Values: []string{"blue", "red"}},
		{Name: "size", Type: feature.Numeric},
	}
	ev, err := evaluator.NewNaiveBayes(spec, evaluator.ProbabilityTable{
		Prior: map[string]float64{"no": 3, "yes": 2},
		Categorical: map[string]map[string]map[string]float64{
			"color": {
				"red":  {"no": 1, "yes": 2},
				"blue": {"no": 2, "yes": 0},
			},
		},
		Numeric: map[string]map[string]evaluator.Gaussian{
			"size": {"no": {Mean: 1, Stdev: 2}, "yes": {Mean: 3, Stdev: 0.5}},
		},
		Smoothing: 1,
	}, nil)
	require.NoError(t, err)

	loaded, data := roundTrip(t, ev)
	assert.Contains(t, string(data), `<NaiveBayesModel functionName="classification" threshold="0.001">`)

	nb, ok := loaded.(*evaluator.NaiveBayes)
	require.True(t, ok)
	assert.Equal(t, ev.Features(), nb.Features())
	assert.Equal(t, []string{"no", "yes"}, nb.Classes())
	assert.Equal(t, 0.0, nb.Probabilities().Smoothing)

	// Smoothed counts read back with α = 0 give the same conditionals.
	for _, v := range []string{"red", "blue"} {
		for _, c := range []string{"no", "yes"} {
			want, _ := ev.Probabilities().Conditional("color", v, c)
			got, ok := nb.Probabilities().Conditional("color", v, c)
			require.True(t, ok)
			assert.InDelta(t, want, got, 1e-12)
		}
	}

	rows := mustTable(t,
		table.Column{Name: "color", Values: []any{"red", "blue", "green"}},
		table.Column{Name: "size", Values: []any{3.0, 0.0, 1.0}},
	)
	want, err := ev.PredictProbability(rows)
	require.NoError(t, err)
	got, err := nb.PredictProbability(rows)
	require.NoError(t, err)
	for i := range want {
		for c, p := range want[i] {
			assert.InDelta(t, p, got[i][c], 1e-9)
		}
	}
}

func sampleTrees() []*evaluator.Node {
	return []*evaluator.Node{
		{Score: 0, Children: []*evaluator.Node{
			{Score: -1, Predicate: &evaluator.Predicate{Field: feature.FieldKey("x"), Operator: evaluator.LessOrEqual, Threshold: 2.5}},
			{Score: 1, Predicate: &evaluator.Predicate{Field: feature.FieldKey("color"), Operator: evaluator.In, Set: []string{"blue", `dark "red"`}}},
		}},
		{Score: 0.5, Children: []*evaluator.Node{
			{Score: 2, Predicate: &evaluator.Predicate{Field: feature.TermKey("review", "good"), Operator: evaluator.GreaterThan, Threshold: 0.5}},
			{Score: -2, Predicate: &evaluator.Predicate{Field: feature.FieldKey("color"), Operator: evaluator.Equal, Set: []string{"green"}}},
		}},
	}
}

func TestTreeEnsembleRoundTrip(t *testing.T) {
	spec := feature.Spec{
		{Name: "x", Type: feature.Numeric},
		{Name: "color", Type: feature.Categorical, Values: []string{"blue", `dark "red"`, "green"}},
		{Name: "review", Type: feature.Text},
	}
	rows := mustTable(t,
		table.Column{Name: "x", Values: []any{1.0, 5.0, nil}},
		table.Column{Name: "color", Values: []any{"green", `dark "red"`, "blue"}},
		table.Column{Name: "review", Values: []any{"good", "bad", "so good"}},
	)

	tests := []struct {
		name      string
		objective model.Objective
		labels    []string
		trees     []*evaluator.Node
		contains  string
	}{
		{"regression", model.Regression, nil, sampleTrees(), `multipleModelMethod="sum"`},
		{"binary", model.Binary, []string{"no", "yes"}, sampleTrees(), `name="transformedLgbmValue"`},
		{"multiclass", model.Multiclass, []string{"a", "b", "c"}, append(sampleTrees(), &evaluator.Node{Score: 0.25}), `name="lgbmValue(c)"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := evaluator.NewTreeEnsemble(spec, tt.objective, tt.labels, tt.trees, reviewText)
			require.NoError(t, err)

			loaded, data := roundTrip(t, ev)
			assert.Contains(t, string(data), tt.contains)
			assert.Contains(t, string(data), `<Array type="string">&#34;blue&#34; &#34;dark \&#34;red\&#34;&#34;</Array>`)

			te, ok := loaded.(*evaluator.TreeEnsemble)
			require.True(t, ok)
			assert.Equal(t, tt.objective, te.Objective())
			assert.Equal(t, ev.Features(), te.Features())
			assert.Equal(t, ev.Classes(), te.Classes())
			assert.Equal(t, ev.Text(), te.Text())
			assert.Equal(t, ev.Trees(), te.Trees())

			want, err := ev.Predict(rows)
			require.NoError(t, err)
			got, err := te.Predict(rows)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestDocumentTarget(t *testing.T) {
	ev, err := evaluator.NewTreeEnsemble(feature.Spec{{Name: "x", Type: feature.Numeric}}, model.Regression, nil,
		[]*evaluator.Node{{Score: 1}}, nil)
	require.NoError(t, err)
	data, err := Generate(ev, "price")
	require.NoError(t, err)

	doc, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "price", doc.Target())
	assert.Equal(t, "4.4", doc.Version)
}

const externalTrees = `<?xml version="1.0"?>
<PMML version="4.3" xmlns="http://www.dmg.org/PMML-4_3">
  <Header/>
  <DataDictionary>
    <DataField name="y" optype="continuous" dataType="double"/>
    <DataField name="color" optype="categorical" dataType="string">
      <Value value="a"/><Value value="b"/><Value value="c"/>
    </DataField>
    <DataField name="review" optype="categorical" dataType="string"/>
  </DataDictionary>
  <TransformationDictionary>
    <DefineFunction name="reviewTransform" optype="continuous">
      <ParameterField name="text"/>
      <ParameterField name="term"/>
      <TextIndex textField="text" wordSeparatorCharacterRE="\s+">
        <FieldRef field="term"/>
      </TextIndex>
    </DefineFunction>
    <DerivedField name="review(good)" optype="continuous" dataType="integer">
      <Apply function="reviewTransform">
        <Apply function="lowercase"><FieldRef field="review"/></Apply>
        <Constant>good</Constant>
      </Apply>
    </DerivedField>
  </TransformationDictionary>
  <MiningModel functionName="regression">
    <MiningSchema><MiningField name="y" usageType="target"/></MiningSchema>
    <LocalTransformations>
      <DerivedField name="review(bad)" optype="continuous" dataType="integer">
        <Apply function="reviewTransform">
          <FieldRef field="lowercase(review)"/>
          <Constant>bad</Constant>
        </Apply>
      </DerivedField>
      <DerivedField name="review()" optype="continuous" dataType="integer">
        <Apply function="reviewTransform">
          <FieldRef field="review"/>
          <Constant></Constant>
        </Apply>
      </DerivedField>
    </LocalTransformations>
    <Segmentation multipleModelMethod="sum">
      <Segment id="1">
        <True/>
        <TreeModel functionName="regression">
          <MiningSchema/>
          <Node score="0">
            <True/>
            <Node score="1">
              <SimpleSetPredicate field="color" booleanOperator="isIn">
                <Array type="string">a b</Array>
              </SimpleSetPredicate>
            </Node>
            <Node score="5">
              <SimplePredicate field="review(good)" operator="greaterThan" value="0.5"/>
            </Node>
            <Node score="-5">
              <SimplePredicate field="review(bad)" operator="greaterThan" value="0.5"/>
            </Node>
          </Node>
        </TreeModel>
      </Segment>
    </Segmentation>
  </MiningModel>
</PMML>`

func TestLoadExternalTrees(t *testing.T) {
	ev, err := Load([]byte(externalTrees))
	require.NoError(t, err)
	te, ok := ev.(*evaluator.TreeEnsemble)
	require.True(t, ok)

	assert.Equal(t, model.Regression, te.Objective())
	assert.Equal(t, feature.Spec{
		{Name: "color", Type: feature.Categorical, Values: []string{"a", "b", "c"}},
		{Name: "review", Type: feature.Text},
	}, te.Features())
	assert.Equal(t, preprocessing.TextOptions{Tokenizer: `\s+`, Vocabulary: []string{"good", "bad"}}, te.Text()["review"])

	root := te.Trees()[0]
	require.Len(t, root.Children, 3)
	assert.Equal(t, []string{"a", "b"}, root.Children[0].Predicate.Set)
	assert.Equal(t, feature.TermKey("review", "bad"), root.Children[2].Predicate.Field)

	out, err := te.Predict(mustTable(t,
		table.Column{Name: "color", Values: []any{"a", "c", "c"}},
		table.Column{Name: "review", Values: []any{"bad", "GOOD food", "Bad"}},
	))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 5, -5}, out.Scores)
}

const derivedNaiveBayes = `<PMML version="4.4">
  <Header/>
  <DataDictionary>
    <DataField name="y" optype="categorical" dataType="string"/>
    <DataField name="color" optype="categorical" dataType="string"/>
  </DataDictionary>
  <NaiveBayesModel functionName="classification" threshold="0.001">
    <MiningSchema><MiningField name="y" usageType="target"/><MiningField name="color"/></MiningSchema>
    <LocalTransformations>
      <DerivedField name="color_red" optype="continuous" dataType="double">
        <NormDiscrete field="color" value="red"/>
      </DerivedField>
    </LocalTransformations>
    <BayesInputs>
      <BayesInput fieldName="color_red">
        <TargetValueStats>
          <TargetValueStat value="no"><GaussianDistribution mean="0" variance="0.01"/></TargetValueStat>
          <TargetValueStat value="yes"><GaussianDistribution mean="1" variance="0.01"/></TargetValueStat>
        </TargetValueStats>
      </BayesInput>
    </BayesInputs>
    <BayesOutput fieldName="y">
      <TargetValueCounts>
        <TargetValueCount value="no" count="5"/>
        <TargetValueCount value="yes" count="5"/>
      </TargetValueCounts>
    </BayesOutput>
  </NaiveBayesModel>
</PMML>`

func TestLoadDerivedNaiveBayes(t *testing.T) {
	ev, err := Load([]byte(derivedNaiveBayes))
	require.NoError(t, err)
	nb, ok := ev.(*evaluator.NaiveBayes)
	require.True(t, ok)

	assert.Equal(t, feature.Spec{{Name: "color", Type: feature.Derived, Values: []string{"red"}}}, nb.Features())
	assert.Equal(t, map[string][]evaluator.Derived{"color": {{Name: "color_red", Value: "red"}}}, nb.Derived())
	assert.InDelta(t, 0.1, nb.Probabilities().Numeric["color_red"]["yes"].Stdev, 1e-12)

	out, err := nb.Predict(mustTable(t, table.Column{Name: "color", Values: []any{"red", "blue"}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"yes", "no"}, out.Labels)

	// Generated documents keep the indicator.
	data, err := Generate(nb, "y")
	require.NoError(t, err)
	assert.Contains(t, string(data), `<NormDiscrete field="color" value="red"></NormDiscrete>`)
	again, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, nb.Features(), again.Features())
}

const legacyNaiveBayes = `<PMML version="4.3">
  <Header/>
  <DataDictionary>
    <DataField name="y" optype="categorical" dataType="string"/>
    <DataField name="color" optype="categorical" dataType="string"/>
  </DataDictionary>
  <NaiveBayesModel functionName="classification" threshold="0.001">
    <MiningSchema><MiningField name="y" usageType="target"/></MiningSchema>
    <BayesInputs>
      <BayesInput fieldName="color">
        <PairCounts value="no">
          <TargetValueCounts><TargetValueCount value="blue" count="2.0"/></TargetValueCounts>
        </PairCounts>
        <PairCounts value="yes">
          <TargetValueCounts><TargetValueCount value="red" count="2"/></TargetValueCounts>
        </PairCounts>
      </BayesInput>
    </BayesInputs>
    <BayesOutput fieldName="y">
      <TargetValueCounts>
        <TargetValueCount value="no" count="2"/>
        <TargetValueCount value="yes" count="2"/>
      </TargetValueCounts>
    </BayesOutput>
  </NaiveBayesModel>
</PMML>`

func TestLoadLegacyNaiveBayes(t *testing.T) {
	_, err := Load([]byte(legacyNaiveBayes))
	var unknown *errors.UnknownModelFormatError
	require.True(t, errors.As(err, &unknown))
	assert.Contains(t, unknown.Reason, "LoadLegacyNaiveBayes")

	logger, _ := log.NewTestLogger(log.LevelDebug)
	nb, err := LoadLegacyNaiveBayes([]byte(legacyNaiveBayes), WithLogger(logger))
	require.NoError(t, err)
	assert.True(t, logger.ContainsMessage("Reading legacy naive Bayes pair counts"))
	entries, err := logger.GetLogEntries()
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, map[string]any{"no": "2", "yes": "2"}, entries[len(entries)-1][log.CountsKey])

	assert.Equal(t, map[string]map[string]float64{
		"blue": {"no": 2, "yes": 0},
		"red":  {"no": 0, "yes": 2},
	}, nb.Probabilities().Categorical["color"])
	assert.Equal(t, feature.Spec{{Name: "color", Type: feature.Categorical, Values: []string{"blue", "red"}}}, nb.Features())

	out, err := nb.Predict(mustTable(t, table.Column{Name: "color", Values: []any{"red", "blue"}}))
	require.NoError(t, err)
	assert.Equal(t, []string{"yes", "no"}, out.Labels)
}

func TestNaiveBayesRoundTripClassDomainFeature(t *testing.T) {
	spec := feature.Spec{{Name: "yesterday", Type: feature.Categorical, Values: []string{"rain", "sun"}}}
	ev, err := evaluator.NewNaiveBayes(spec, evaluator.ProbabilityTable{
		Prior: map[string]float64{"rain": 3, "sun": 5},
		Categorical: map[string]map[string]map[string]float64{
			"yesterday": {
				"rain": {"rain": 2, "sun": 1},
				"sun":  {"rain": 1, "sun": 4},
			},
		},
		Smoothing: 1,
	}, nil)
	require.NoError(t, err)

	data, err := Generate(ev, "today")
	require.NoError(t, err)
	loaded, err := Load(data)
	require.NoError(t, err)
	nb, ok := loaded.(*evaluator.NaiveBayes)
	require.True(t, ok)
	assert.Equal(t, ev.Features(), nb.Features())

	rows := mustTable(t, table.Column{Name: "yesterday", Values: []any{"rain", "sun"}})
	want, err := ev.PredictProbability(rows)
	require.NoError(t, err)
	got, err := nb.PredictProbability(rows)
	require.NoError(t, err)
	for i := range want {
		for c, p := range want[i] {
			assert.InDelta(t, p, got[i][c], 1e-9)
		}
	}
}

func TestLoadNaiveBayesCountErrors(t *testing.T) {
	for _, doc := range []string{
		strings.Replace(legacyNaiveBayes, `count="2.0"`, `count="-2"`, 1),
		strings.Replace(legacyNaiveBayes, `count="2.0"`, `count="two"`, 1),
		strings.NewReplacer(`<TargetValueCount value="no" count="2"/>`, `<TargetValueCount value="no" count="0"/>`,
			`<TargetValueCount value="yes" count="2"/>`, `<TargetValueCount value="yes" count="0"/>`).Replace(legacyNaiveBayes),
	} {
		_, err := LoadLegacyNaiveBayes([]byte(doc))
		var unknown *errors.UnknownModelFormatError
		assert.True(t, errors.As(err, &unknown), "got %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"invalid XML", "<PMML"},
		{"no model", `<PMML version="4.4"><Header/><DataDictionary/></PMML>`},
		{"unsupported operator", strings.Replace(externalTrees, `operator="greaterThan"`, `operator="lessThan"`, 1)},
		{"legacy layout for LoadLegacyNaiveBayes only", legacyNaiveBayes},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			var unknown *errors.UnknownModelFormatError
			assert.True(t, errors.As(err, &unknown), "got %v", err)
		})
	}

	_, err := LoadLegacyNaiveBayes([]byte(externalTrees))
	var unknown *errors.UnknownModelFormatError
	assert.True(t, errors.As(err, &unknown))
}

func TestGenerateErrors(t *testing.T) {
	ev, err := evaluator.NewTreeEnsemble(nil, model.Regression, nil, []*evaluator.Node{{Score: 1}}, nil)
	require.NoError(t, err)

	var valueErr *errors.ValueError
	_, err = Generate(ev, "")
	assert.True(t, errors.As(err, &valueErr))

	_, err = Generate(struct{ model.Evaluator }{ev}, "y")
	assert.True(t, errors.As(err, &valueErr))
}

func TestParseArray(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`a b`, []string{"a", "b"}},
		{`"a b"  c`, []string{"a b", "c"}},
		{`"say \"hi\"" x`, []string{`say "hi"`, "x"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseArray(tt.in), tt.in)
	}
}
