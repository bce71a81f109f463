package eval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vlmeval/pkg/core"
	"vlmeval/pkg/dataset"
	"vlmeval/pkg/metric"
	"vlmeval/pkg/model"
	"vlmeval/pkg/prompt"
	"vlmeval/pkg/sampling"

	"github.com/stretchr/testify/require"
)

func vqaPool() []core.Sample {
	return []core.Sample{
		{ID: "p1", Image: core.Image{Path: "p1.jpg"}, Question: "how many?", Answers: []string{"two"}},
		{ID: "p2", Image: core.Image{Path: "p2.jpg"}, Question: "what animal?", Answers: []string{"dog"}},
		{ID: "p3", Image: core.Image{Path: "p3.jpg"}, Question: "what sport?", Answers: []string{"tennis"}},
	}
}

func TestGenerationRun(t *testing.T) {
	items := []core.Sample{
		{ID: "q1", Image: core.Image{Path: "q1.jpg"}, Question: "what color?", Answers: []string{"red"}},
		{ID: "q2", Image: core.Image{Path: "q2.jpg"}, Question: "what shape?", Answers: []string{"round"}},
		{ID: "q3", Image: core.Image{Path: "q3.jpg"}, Question: "what color?", Answers: []string{"red"}},
	}
	evalSet := &dataset.Slice{NameHint: "vqav2", Items: items}

	answers, err := metric.AnswersFromDataset(evalSet)
	require.NoError(t, err)

	g := Generation{
		Model:      &model.Mock{Outputs: []string{"red"}},
		Eval:       evalSet,
		Pool:       vqaPool(),
		Selector:   sampling.NewSelector(1),
		Spec:       prompt.VQASpec("vqav2"),
		Metric:     metric.AnswerAccuracy{Answers: answers},
		Shots:      2,
		Batch:      2,
		ResultsDir: t.TempDir(),
	}
	score, err := g.Run(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 100*2.0/3.0, score, 1e-9)
}

func TestGenerationTransientFileRemoved(t *testing.T) {
	dir := t.TempDir()
	evalSet := &dataset.Slice{NameHint: "vqav2", Items: []core.Sample{
		{ID: "q1", Image: core.Image{Path: "q1.jpg"}, Question: "what?", Answers: []string{"x"}},
	}}
	answers, err := metric.AnswersFromDataset(evalSet)
	require.NoError(t, err)

	g := Generation{
		Model:      &model.Mock{Outputs: []string{"x"}},
		Eval:       evalSet,
		Pool:       vqaPool(),
		Selector:   sampling.NewSelector(1),
		Spec:       prompt.VQASpec("vqav2"),
		Metric:     metric.AnswerAccuracy{Answers: answers},
		Shots:      1,
		Batch:      1,
		ResultsDir: dir,
	}
	_, err = g.Run(context.Background())
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestGenerationLastWriteWins(t *testing.T) {
	// The same sample ID in a later batch silently overwrites the
	// earlier prediction; the record count stays at one per ID.
	items := []core.Sample{
		{ID: "dup", Image: core.Image{Path: "a.jpg"}, Question: "what?", Answers: []string{"red"}},
		{ID: "dup", Image: core.Image{Path: "b.jpg"}, Question: "what?", Answers: []string{"red"}},
	}
	evalSet := &dataset.Slice{NameHint: "vqav2", Items: items}

	g := Generation{
		Model:      &model.Mock{Outputs: []string{"red"}},
		Eval:       evalSet,
		Pool:       vqaPool(),
		Selector:   sampling.NewSelector(1),
		Spec:       prompt.VQASpec("vqav2"),
		Metric:     metric.AnswerAccuracy{Answers: map[string][]string{"dup": {"red"}}},
		Shots:      1,
		Batch:      1,
		ResultsDir: t.TempDir(),
	}
	score, err := g.Run(context.Background())
	require.NoError(t, err)
	// One record, correct: accuracy 100.
	require.Equal(t, 100.0, score)
}

func TestGenerationScoreScale(t *testing.T) {
	evalSet := &dataset.Slice{NameHint: "coco", Items: []core.Sample{
		{ID: "1", Image: core.Image{Path: "1.jpg"}, Caption: "a dog"},
	}}
	pool := []core.Sample{
		{ID: "p1", Image: core.Image{Path: "p1.jpg"}, Caption: "a cat"},
		{ID: "p2", Image: core.Image{Path: "p2.jpg"}, Caption: "a bird"},
	}
	g := Generation{
		Model:      &model.Mock{Outputs: []string{"a dog"}},
		Eval:       evalSet,
		Pool:       pool,
		Selector:   sampling.NewSelector(1),
		Spec:       prompt.CaptionSpec("coco"),
		Metric:     fixedMetric{value: 1.13},
		Shots:      1,
		Batch:      1,
		ResultsDir: t.TempDir(),
	}
	score, err := g.Run(context.Background())
	require.NoError(t, err)
	// CIDEr is reported x100.
	require.InDelta(t, 113.0, score, 1e-9)
}

type fixedMetric struct {
	value float64
}

func (f fixedMetric) Name() string { return "fixed" }

func (f fixedMetric) Score(_ context.Context, resultsPath string) (float64, error) {
	if !strings.HasSuffix(filepath.Base(resultsPath), ".json") {
		return 0, os.ErrInvalid
	}
	return f.value, nil
}
