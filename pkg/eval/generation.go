package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vlmeval/pkg/core"
	"vlmeval/pkg/prompt"
	"vlmeval/pkg/sampling"
)

// Generation is the free-form decoding evaluation path: assemble
// prompts batch by batch, decode, post-process, then hand the collected
// predictions to an external corpus metric.
type Generation struct {
	Model    core.Model
	Eval     core.Dataset
	Pool     []core.Sample
	Selector *sampling.Selector
	Spec     prompt.Spec
	Metric   core.Metric
	Shots    int
	Batch    int
	Options  core.GenerateOptions

	// ResultsDir receives the transient predictions file; empty means
	// the OS temp directory.
	ResultsDir string

	Logger   *zap.Logger
	Progress func(done, total int)
}

// Run evaluates the subset and returns the metric's scalar scaled to
// the task's reported range.
func (g *Generation) Run(ctx context.Context) (float64, error) {
	if g.Model == nil || g.Eval == nil || g.Metric == nil || g.Selector == nil {
		return 0, errors.New("eval: model, dataset, selector, and metric are required")
	}
	batchSize := g.Batch
	if batchSize <= 0 {
		batchSize = 1
	}
	logger := g.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	total := g.Eval.Len()
	// Last write wins per sample ID; insertion order is kept so the
	// transient file follows subset order.
	predictions := make(map[string]string, total)
	var order []string

	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}

		batch := make([]core.Sample, 0, end-start)
		for i := start; i < end; i++ {
			s, err := g.Eval.At(i)
			if err != nil {
				return 0, err
			}
			batch = append(batch, s)
		}

		demoSets, err := g.Selector.Demos(g.Pool, g.Shots, len(batch))
		if err != nil {
			return 0, err
		}

		prompts := make([]core.Prompt, len(batch))
		for i, s := range batch {
			prompts[i] = prompt.Assemble(s, demoSets[i], g.Shots, g.Spec)
		}

		outputs, err := g.Model.Generate(ctx, prompts, g.Options)
		if err != nil {
			return 0, fmt.Errorf("eval: generate batch at %d: %w", start, err)
		}
		if len(outputs) != len(batch) {
			return 0, fmt.Errorf("eval: model returned %d outputs for %d prompts", len(outputs), len(batch))
		}

		for i, s := range batch {
			if _, seen := predictions[s.ID]; !seen {
				order = append(order, s.ID)
			}
			predictions[s.ID] = g.Spec.Postprocess(outputs[i])
		}

		logger.Debug("batch complete",
			zap.String("task", g.Spec.Name),
			zap.Int("done", end),
			zap.Int("total", total))
		if g.Progress != nil {
			g.Progress(end, total)
		}
	}

	resultsPath, err := g.writePredictions(order, predictions)
	if err != nil {
		return 0, err
	}
	defer os.Remove(resultsPath)

	score, err := g.Metric.Score(ctx, resultsPath)
	if err != nil {
		return 0, err
	}
	scale := g.Spec.ScoreScale
	if scale == 0 {
		scale = 1
	}
	return score * scale, nil
}

// writePredictions materializes the records under a collision-resistant
// random name so concurrent runs do not clobber each other's files.
func (g *Generation) writePredictions(order []string, predictions map[string]string) (string, error) {
	dir := g.ResultsDir
	if dir == "" {
		dir = os.TempDir()
	}

	records := make([]core.Prediction, 0, len(order))
	for _, id := range order {
		records = append(records, core.Prediction{ID: id, Output: predictions[id]})
	}

	path := filepath.Join(dir, fmt.Sprintf("%s_results_%s.json", g.Spec.Name, uuid.NewString()))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("eval: %w", err)
	}
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(records); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("eval: write predictions: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("eval: write predictions: %w", err)
	}
	return path, nil
}
