package preprocessing

import (
	"regexp"
	"sort"
	"unicode/utf8"

	"github.com/YuminosukeSato/eps/core/feature"
	"github.com/YuminosukeSato/eps/core/model"
	"github.com/YuminosukeSato/eps/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultTokenizer splits on runs of non-word characters.
const DefaultTokenizer = `\W+`

// TextOptions configures a TextEncoder. Zero values disable the corresponding
// filter.
type TextOptions struct {
	Tokenizer      string   `yaml:"tokenizer"`
	CaseSensitive  bool     `yaml:"case_sensitive"`
	StopWords      []string `yaml:"stop_words"`
	MinLength      int      `yaml:"min_length"`
	MinOccurrences int      `yaml:"min_occurrences"`
	MaxOccurrences int      `yaml:"max_occurrences"`
	MaxFeatures    int      `yaml:"max_features"`
	// Vocabulary is the frozen term list. It is filled by Fit and read by
	// encoders rebuilt from a stored model.
	Vocabulary []string `yaml:"vocabulary,omitempty"`
}

// DefaultTextOptions returns the options used for text columns during training:
// the default tokenizer, terms of at least two characters and at most 100 terms.
func DefaultTextOptions() TextOptions {
	return TextOptions{
		Tokenizer:   DefaultTokenizer,
		MinLength:   2,
		MaxFeatures: 100,
	}
}

// TextEncoder turns free text into per-row term counts over a frozen vocabulary.
type TextEncoder struct {
	model.BaseEstimator

	opts      TextOptions
	tokenizer *regexp.Regexp
	stopWords map[string]struct{}
}

// NewTextEncoder compiles the tokenizer. An encoder built from options that
// already carry a vocabulary is considered fitted.
func NewTextEncoder(opts TextOptions) (*TextEncoder, error) {
	if opts.Tokenizer == "" {
		opts.Tokenizer = DefaultTokenizer
	}
	re, err := regexp.Compile(opts.Tokenizer)
	if err != nil {
		return nil, errors.NewValueError("NewTextEncoder", "invalid tokenizer: "+err.Error())
	}
	e := &TextEncoder{
		opts:      opts,
		tokenizer: re,
		stopWords: make(map[string]struct{}, len(opts.StopWords)),
	}
	for _, w := range opts.StopWords {
		e.stopWords[w] = struct{}{}
	}
	e.opts.Vocabulary = append([]string(nil), opts.Vocabulary...)
	if len(opts.Vocabulary) > 0 {
		e.SetFitted()
	}
	return e, nil
}

// Fit builds the vocabulary from values and returns their per-row counts.
//
// Filters run in order: minimum term length in characters, minimum corpus
// occurrences, maximum corpus occurrences (terms above it are dropped), and
// finally the MaxFeatures most frequent terms, ties kept in first-seen order.
func (e *TextEncoder) Fit(values []any) []map[string]int {
	counts := e.count(values)

	var order []string
	corpus := make(map[string]int)
	for _, row := range counts {
		for _, term := range row.order {
			if _, ok := corpus[term]; !ok {
				order = append(order, term)
			}
			corpus[term] += row.counts[term]
		}
	}

	kept := order[:0:0]
	for _, term := range order {
		n := corpus[term]
		if e.opts.MinLength > 0 && utf8.RuneCountInString(term) < e.opts.MinLength {
			continue
		}
		if e.opts.MinOccurrences > 0 && n < e.opts.MinOccurrences {
			continue
		}
		if e.opts.MaxOccurrences > 0 && n > e.opts.MaxOccurrences {
			continue
		}
		kept = append(kept, term)
	}
	if e.opts.MaxFeatures > 0 {
		sort.SliceStable(kept, func(i, j int) bool { return corpus[kept[i]] > corpus[kept[j]] })
		if len(kept) > e.opts.MaxFeatures {
			kept = kept[:e.opts.MaxFeatures]
		}
	}

	e.opts.Vocabulary = kept
	e.SetFitted()

	out := make([]map[string]int, len(counts))
	for i, row := range counts {
		out[i] = row.counts
	}
	return out
}

// Transform tokenizes values with the fitted rules and returns per-row term
// counts. The vocabulary is neither consulted nor changed: callers match terms
// against Vocabulary themselves.
func (e *TextEncoder) Transform(values []any) []map[string]int {
	counts := e.count(values)
	out := make([]map[string]int, len(counts))
	for i, row := range counts {
		out[i] = row.counts
	}
	return out
}

// termCounts keeps the first-seen order of a row's terms.
type termCounts struct {
	order  []string
	counts map[string]int
}

func (e *TextEncoder) count(values []any) []termCounts {
	lower := cases.Lower(language.Und)
	out := make([]termCounts, len(values))
	for i, v := range values {
		text := feature.Stringify(v)
		if !e.opts.CaseSensitive {
			text = lower.String(text)
		}
		row := termCounts{counts: make(map[string]int)}
		for _, tok := range e.tokenizer.Split(text, -1) {
			if tok == "" {
				continue
			}
			if _, stop := e.stopWords[tok]; stop {
				continue
			}
			if _, ok := row.counts[tok]; !ok {
				row.order = append(row.order, tok)
			}
			row.counts[tok]++
		}
		out[i] = row
	}
	return out
}

// Vocabulary returns the frozen term list.
func (e *TextEncoder) Vocabulary() []string {
	return append([]string(nil), e.opts.Vocabulary...)
}

// Options returns the encoder configuration including the vocabulary.
func (e *TextEncoder) Options() TextOptions {
	opts := e.opts
	opts.Vocabulary = e.Vocabulary()
	return opts
}
