package eval

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"vlmeval/pkg/core"
)

// TrialFunc runs one evaluation for a fixed shot count and seed and
// returns its scalar score.
type TrialFunc func(ctx context.Context, shots int, seed int64) (float64, error)

// Runner sweeps shot counts against trial seeds and aggregates per-shot
// scores. Shot counts run in configured order; within one shot count,
// trials zip seeds against the trial counter, ignoring extra seeds.
type Runner struct {
	Shots     []int
	Seeds     []int64
	NumTrials int
	Logger    *zap.Logger
}

// ExtendSeeds pads seeds with freshly generated ones up to numTrials.
// The extension is logged so a run's effective seed list is never
// silent.
func ExtendSeeds(seeds []int64, numTrials int, logger *zap.Logger) []int64 {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(seeds) >= numTrials {
		return seeds
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	extended := append([]int64{}, seeds...)
	for len(extended) < numTrials {
		extended = append(extended, rng.Int63n(1_000_000))
	}
	logger.Info("extended trial seeds",
		zap.Int("provided", len(seeds)),
		zap.Int("trials", numTrials),
		zap.Int64s("seeds", extended))
	return extended
}

// Run executes the sweep for one task and returns its per-shot results
// alongside the effective seed list.
func (r *Runner) Run(ctx context.Context, task string, trial TrialFunc) ([]core.ShotResult, []int64, error) {
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	numTrials := r.NumTrials
	if numTrials <= 0 {
		numTrials = 1
	}
	seeds := ExtendSeeds(r.Seeds, numTrials, logger)

	results := make([]core.ShotResult, 0, len(r.Shots))
	for _, shots := range r.Shots {
		scores := make([]float64, 0, numTrials)
		for t := 0; t < numTrials; t++ {
			score, err := trial(ctx, shots, seeds[t])
			if err != nil {
				return nil, nil, fmt.Errorf("eval: task %s shots %d trial %d: %w", task, shots, t, err)
			}
			logger.Info("trial complete",
				zap.String("task", task),
				zap.Int("shots", shots),
				zap.Int("trial", t),
				zap.Int64("seed", seeds[t]),
				zap.Float64("score", score))
			scores = append(scores, score)
		}
		result := core.ShotResult{Shots: shots, Trials: scores, Mean: mean(scores)}
		logger.Info("shot complete",
			zap.String("task", task),
			zap.Int("shots", shots),
			zap.Float64("mean", result.Mean))
		results = append(results, result)
	}
	return results, seeds, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
