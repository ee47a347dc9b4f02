package preprocessing

import (
	"testing"

	"github.com/YuminosukeSato/eps/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelEncoder(t *testing.T) {
	enc := NewLabelEncoder()

	_, err := enc.Transform([]any{"a"})
	var notFitted *errors.NotFittedError
	require.True(t, errors.As(err, &notFitted))

	got, err := enc.FitTransform([]any{"red", "blue", nil, "green", "blue"})
	require.NoError(t, err)
	assert.Equal(t, []string{"blue", "green", "red"}, enc.Labels())
	assert.Equal(t, []int{2, 0, -1, 1, 0}, got)

	unseen, err := enc.Transform([]any{"purple", "red"})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, unseen)

	labels, err := enc.InverseTransform([]int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"green", "blue"}, labels)

	_, err = enc.InverseTransform([]int{3})
	var valueErr *errors.ValueError
	assert.True(t, errors.As(err, &valueErr))
}

func TestLabelEncoderStringifies(t *testing.T) {
	enc := NewLabelEncoder()
	enc.Fit([]any{true, false, true})
	assert.Equal(t, []string{"false", "true"}, enc.Labels())

	numbers := NewLabelEncoder()
	numbers.Fit([]any{10.0, 2.0, 1.5})
	// lexical, not numeric
	assert.Equal(t, []string{"1.5", "10", "2"}, numbers.Labels())

	loaded := NewLabelEncoderFromLabels([]string{"b", "a"})
	assert.Equal(t, 0, loaded.Encode("a"))
	assert.Equal(t, 2, loaded.Encode("zzz"))
}

func TestTextEncoderFit(t *testing.T) {
	enc, err := NewTextEncoder(TextOptions{})
	require.NoError(t, err)

	counts := enc.Fit([]any{"Red red blue", "blue, GREEN!", nil, ""})
	assert.Equal(t, []string{"red", "blue", "green"}, enc.Vocabulary())
	assert.Equal(t, map[string]int{"red": 2, "blue": 1}, counts[0])
	assert.Equal(t, map[string]int{"blue": 1, "green": 1}, counts[1])
	assert.Empty(t, counts[2])
	assert.Empty(t, counts[3])
	assert.True(t, enc.IsFitted())
}

func TestTextEncoderFilters(t *testing.T) {
	docs := []any{
		"a bb ccc bb",
		"bb ccc dddd",
		"ccc eee eee",
	}

	tests := []struct {
		name string
		opts TextOptions
		want []string
	}{
		{"min length", TextOptions{MinLength: 3}, []string{"ccc", "dddd", "eee"}},
		{"min occurrences", TextOptions{MinOccurrences: 2}, []string{"bb", "ccc", "eee"}},
		{"max occurrences", TextOptions{MaxOccurrences: 2}, []string{"a", "dddd", "eee"}},
		{"max features ties keep first seen", TextOptions{MaxFeatures: 3}, []string{"bb", "ccc", "eee"}},
		{"max features one", TextOptions{MaxFeatures: 1}, []string{"bb"}},
		{"stop words", TextOptions{StopWords: []string{"bb", "ccc"}}, []string{"a", "dddd", "eee"}},
		{"defaults", DefaultTextOptions(), []string{"bb", "ccc", "eee", "dddd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewTextEncoder(tt.opts)
			require.NoError(t, err)
			enc.Fit(docs)
			assert.Equal(t, tt.want, enc.Vocabulary())
			if tt.opts.MaxFeatures > 0 {
				assert.LessOrEqual(t, len(enc.Vocabulary()), tt.opts.MaxFeatures)
			}
		})
	}
}

func TestTextEncoderTransformKeepsVocabulary(t *testing.T) {
	enc, err := NewTextEncoder(TextOptions{Vocabulary: []string{"good"}})
	require.NoError(t, err)
	assert.True(t, enc.IsFitted())

	counts := enc.Transform([]any{"Good good bad"})
	assert.Equal(t, map[string]int{"good": 2, "bad": 1}, counts[0])
	assert.Equal(t, []string{"good"}, enc.Vocabulary())
	assert.Equal(t, []string{"good"}, enc.Options().Vocabulary)
}

func TestTextEncoderCaseAndTokenizer(t *testing.T) {
	enc, err := NewTextEncoder(TextOptions{CaseSensitive: true, Tokenizer: `[,;]\s*`})
	require.NoError(t, err)
	enc.Fit([]any{"New York, new york; Boston"})
	assert.Equal(t, []string{"New York", "new york", "Boston"}, enc.Vocabulary())

	folded, err := NewTextEncoder(TextOptions{Tokenizer: `\s+`})
	require.NoError(t, err)
	folded.Fit([]any{"ÉCOLE école"})
	assert.Equal(t, []string{"école"}, folded.Vocabulary())

	_, err = NewTextEncoder(TextOptions{Tokenizer: "("})
	assert.Error(t, err)
}
