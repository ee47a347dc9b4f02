// Package eps trains tabular models and exchanges them as PMML documents.
//
// A model is trained from a table holding a target column and any mix of
// numeric, categorical and free-text features. Three families are available:
// gradient boosted trees (the default), linear regression and naive Bayes.
//
// # Training
//
//	data, err := table.FromRecords([]map[string]any{
//		{"x": 1.0, "target": 8.0},
//		{"x": 2.0, "target": 13.0},
//		{"x": 3.0, "target": 18.0},
//	})
//	if err != nil {
//		return err
//	}
//	m, err := eps.Train(data, eps.WithAlgorithm(eps.LinearRegression))
//	if err != nil {
//		return err
//	}
//	y, err := m.PredictOne(map[string]any{"x": 6.0}) // 33
//
// Tables with 30 rows or more are split into a training and a validation set;
// Summary reports the validation metric. WithoutSplit, WithSplit and
// WithValidationSet change that.
//
// # PMML
//
// ToPMML writes a PMML 4.4 document that LoadPMML, or any PMML consumer, can
// score:
//
//	doc, err := m.ToPMML()
//	loaded, err := eps.LoadPMML(doc)
//
// # Logging
//
// Trainers and the document codec log through pkg/log, backed by zerolog.
// Pass WithLogger to route the records of a single call.
package eps
