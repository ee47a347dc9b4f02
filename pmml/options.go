package pmml

import "github.com/YuminosukeSato/eps/pkg/log"

// Option configures Load and LoadLegacyNaiveBayes.
type Option func(*loader)

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(ld *loader) {
		ld.logger = l
	}
}
