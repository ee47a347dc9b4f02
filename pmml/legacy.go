package pmml

import (
	"github.com/YuminosukeSato/eps/evaluator"
	"github.com/YuminosukeSato/eps/pkg/errors"
)

// LoadLegacyNaiveBayes loads a naive Bayes document whose pair counts are
// keyed by class instead of by feature value, as written by Eps releases
// before 0.3. Class and value combinations absent from the document count 0.
//
// Deprecated: regenerate the document with Generate and use Load.
func LoadLegacyNaiveBayes(data []byte, opts ...Option) (ev *evaluator.NaiveBayes, err error) {
	defer errors.Recover(&err, "pmml.LoadLegacyNaiveBayes")
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if doc.NaiveBayesModel == nil {
		return nil, errors.NewUnknownModelFormatError("document has no NaiveBayesModel")
	}
	ld := newLoader(doc, opts)
	ld.logger.Warn("LoadLegacyNaiveBayes is deprecated, regenerate the document")
	return ld.naiveBayes(true)
}
