package sampling

import (
	"fmt"
	"math/rand"

	"vlmeval/pkg/core"
)

// Indices draws count distinct indices in [0, poolSize) from a generator
// seeded freshly for this call, so the draw is reproducible regardless of
// any other randomized work in the process.
func Indices(poolSize, count int, seed int64) ([]int, error) {
	if count < 0 {
		return nil, fmt.Errorf("sampling: negative count %d: %w", count, core.ErrConfiguration)
	}
	if count > poolSize {
		return nil, fmt.Errorf("sampling: count %d exceeds pool size %d: %w", count, poolSize, core.ErrConfiguration)
	}
	rng := rand.New(rand.NewSource(seed))
	return rng.Perm(poolSize)[:count], nil
}

// Split draws two disjoint index subsets from one pool with a single
// seeded permutation: the evaluation subset first, then the query pool.
func Split(poolSize, evalCount, queryCount int, seed int64) (evalIdx, queryIdx []int, err error) {
	if evalCount < 0 || queryCount < 0 {
		return nil, nil, fmt.Errorf("sampling: negative subset size (eval %d, query %d): %w", evalCount, queryCount, core.ErrConfiguration)
	}
	total := evalCount + queryCount
	if total > poolSize {
		return nil, nil, fmt.Errorf("sampling: eval %d + query %d exceeds pool size %d: %w", evalCount, queryCount, poolSize, core.ErrConfiguration)
	}
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(poolSize)[:total]
	return perm[:evalCount], perm[evalCount:total], nil
}

// EffectiveShots maps a requested shot count to the count actually
// sampled: a zero-shot request still samples 2 demonstrations so the
// prompt keeps textual style conditioning.
func EffectiveShots(requested int) int {
	if requested == 0 {
		return 2
	}
	return requested
}

// Selector draws demonstration sets from a query pool. Unlike Indices it
// is intentionally not reseeded between draws: batch-to-batch variety
// within one trial is wanted, and reproducibility is only promised at
// the subset level.
type Selector struct {
	rng *rand.Rand
}

func NewSelector(seed int64) *Selector {
	return &Selector{rng: rand.New(rand.NewSource(seed))}
}

// Demos returns batchSize independent demonstration sets of
// EffectiveShots(k) samples each, drawn without replacement from pool.
func (s *Selector) Demos(pool []core.Sample, k, batchSize int) ([][]core.Sample, error) {
	n := EffectiveShots(k)
	if n < 0 {
		return nil, fmt.Errorf("sampling: negative shot count %d: %w", k, core.ErrConfiguration)
	}
	if n > len(pool) {
		return nil, fmt.Errorf("sampling: %d demonstrations requested from pool of %d: %w", n, len(pool), core.ErrConfiguration)
	}
	sets := make([][]core.Sample, batchSize)
	for i := range sets {
		picks := s.rng.Perm(len(pool))[:n]
		demos := make([]core.Sample, n)
		for j, p := range picks {
			demos[j] = pool[p]
		}
		sets[i] = demos
	}
	return sets, nil
}
