package core

import "context"

// Metric is a corpus-level scorer. It consumes a JSON array of
// Prediction records at resultsPath and returns a single scalar.
// Annotation locations and any answer normalization are the scorer's
// own concern.
type Metric interface {
	Name() string
	Score(ctx context.Context, resultsPath string) (float64, error)
}
