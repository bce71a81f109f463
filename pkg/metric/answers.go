package metric

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"vlmeval/pkg/core"
)

// AnswerAccuracy is an in-process open-ended answer scorer: a
// prediction is correct when it matches any acceptable answer for its
// sample after lowercasing and whitespace trimming. Scores 0-100.
type AnswerAccuracy struct {
	// Answers maps sample ID to its acceptable answers.
	Answers map[string][]string
}

func (a AnswerAccuracy) Name() string { return "answer-accuracy" }

func (a AnswerAccuracy) Score(_ context.Context, resultsPath string) (float64, error) {
	file, err := os.Open(resultsPath)
	if err != nil {
		return 0, fmt.Errorf("metric: %w", err)
	}
	defer file.Close()

	var predictions []core.Prediction
	if err := json.NewDecoder(file).Decode(&predictions); err != nil {
		return 0, fmt.Errorf("metric: decode %s: %w", resultsPath, err)
	}
	if len(predictions) == 0 {
		return 0, nil
	}

	correct := 0
	for _, p := range predictions {
		got := normalize(p.Output)
		for _, want := range a.Answers[p.ID] {
			if got == normalize(want) {
				correct++
				break
			}
		}
	}
	return 100 * float64(correct) / float64(len(predictions)), nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// AnswersFromDataset builds the acceptable-answer index for every
// sample of a dataset.
func AnswersFromDataset(ds core.Dataset) (map[string][]string, error) {
	out := make(map[string][]string, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		s, err := ds.At(i)
		if err != nil {
			return nil, err
		}
		out[s.ID] = s.Answers
	}
	return out, nil
}
