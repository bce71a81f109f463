package eval

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"vlmeval/pkg/core"
	"vlmeval/pkg/prompt"
	"vlmeval/pkg/sampling"
)

// Likelihood is the closed-set classification path: every candidate
// label is scored by the joint conditional probability of its tokens
// under the model, and candidates are ranked without any decoding.
type Likelihood struct {
	Model    core.LikelihoodModel
	Eval     core.Dataset
	Pool     []core.Sample
	Selector *sampling.Selector
	Labels   []string
	Shots    int

	// Budget caps the number of evaluated items and fixes the accuracy
	// denominator; zero or negative means the whole subset.
	Budget int

	Logger   *zap.Logger
	Progress func(done, total int)
}

// Accuracy carries top-1 and top-5 accuracy over the sample budget.
type Accuracy struct {
	Top1 float64
	Top5 float64
}

func (l *Likelihood) Run(ctx context.Context) (Accuracy, error) {
	if l.Model == nil || l.Eval == nil || l.Selector == nil {
		return Accuracy{}, errors.New("eval: model, dataset, and selector are required")
	}
	if len(l.Labels) == 0 {
		return Accuracy{}, fmt.Errorf("eval: empty label vocabulary: %w", core.ErrConfiguration)
	}
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	count := l.Budget
	if count <= 0 || count > l.Eval.Len() {
		count = l.Eval.Len()
	}

	prefixTokens, err := l.Model.Encode(prompt.ClassPrompt)
	if err != nil {
		return Accuracy{}, fmt.Errorf("eval: encode query prefix: %w", err)
	}

	spec := prompt.ClassificationSpec(l.Eval.Name())

	var acc1, acc5 int
	for i := 0; i < count; i++ {
		query, err := l.Eval.At(i)
		if err != nil {
			return Accuracy{}, err
		}

		// Fresh demonstrations per item; variety across items is the
		// point, reproducibility is fixed at the subset level.
		demoSets, err := l.Selector.Demos(l.Pool, l.Shots, 1)
		if err != nil {
			return Accuracy{}, err
		}
		demos := demoSets[0]

		images := make([]core.Image, 0, len(demos)+1)
		for _, d := range demos {
			images = append(images, d.Image)
		}
		images = append(images, query.Image)
		if err := l.Model.Prime(ctx, images); err != nil {
			return Accuracy{}, fmt.Errorf("eval: prime visual context: %w", err)
		}

		contextText := ""
		for _, d := range demos {
			contextText += spec.Context(d)
		}

		scores := make([]float64, len(l.Labels))
		for j, label := range l.Labels {
			joint, err := l.scoreCandidate(ctx, contextText, label, prefixTokens)
			if err != nil {
				return Accuracy{}, fmt.Errorf("eval: label %q: %w", label, err)
			}
			scores[j] = joint
		}

		top5 := rank(l.Labels, scores, 5)
		if top5[0] == query.ClassName {
			acc1++
		}
		for _, label := range top5 {
			if label == query.ClassName {
				acc5++
				break
			}
		}

		logger.Info("classification progress",
			zap.Int("item", i+1),
			zap.Int("total", count),
			zap.Float64("acc1", float64(acc1)/float64(i+1)),
			zap.Float64("acc5", float64(acc5)/float64(i+1)))
		if l.Progress != nil {
			l.Progress(i+1, count)
		}
	}

	return Accuracy{
		Top1: float64(acc1) / float64(count),
		Top5: float64(acc5) / float64(count),
	}, nil
}

// scoreCandidate computes the joint conditional probability of the
// candidate's tokens: one forward pass over context + query prefix +
// candidate, probabilities shifted by one position so each one is the
// teacher-forced probability of the realized next token, then the
// product of the probabilities strictly after the last occurrence of
// the query prefix. Underflow toward zero for long labels is accepted.
func (l *Likelihood) scoreCandidate(ctx context.Context, contextText, label string, prefixTokens []int) (float64, error) {
	full := contextText + prompt.ClassPrompt + " " + label
	tokens, err := l.Model.Encode(full)
	if err != nil {
		return 0, err
	}
	if len(tokens) < 2 {
		return 0, fmt.Errorf("sequence of %d tokens has nothing to score", len(tokens))
	}

	dists, err := l.Model.Forward(ctx, tokens)
	if err != nil {
		return 0, err
	}
	if len(dists) < len(tokens)-1 {
		return 0, fmt.Errorf("model returned %d distributions for %d tokens", len(dists), len(tokens))
	}

	// scored[t] realizes at position t+1; probs[t] is its teacher-forced
	// probability.
	scored := tokens[1:]
	probs := make([]float64, len(scored))
	for t, tok := range scored {
		row := dists[t]
		if tok < 0 || tok >= len(row) {
			return 0, fmt.Errorf("token %d outside vocabulary of %d", tok, len(row))
		}
		probs[t] = row[tok]
	}

	start, ok := lastMatch(prefixTokens, scored)
	if !ok {
		return 0, fmt.Errorf("%w", core.ErrAlignment)
	}

	joint := 1.0
	for _, p := range probs[start+len(prefixTokens):] {
		joint *= p
	}
	return joint, nil
}

// lastMatch returns the start of the last occurrence of needle as a
// contiguous subsequence of haystack. The prefix text can recur inside
// demonstrations, so only the final occurrence marks the candidate.
func lastMatch(needle, haystack []int) (int, bool) {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return 0, false
	}
	found := -1
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i] != needle[0] {
			continue
		}
		match := true
		for j := 1; j < len(needle); j++ {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			found = i
		}
	}
	if found < 0 {
		return 0, false
	}
	return found, true
}

// rank returns the k highest-scoring labels, best first. Ties keep
// vocabulary order.
func rank(labels []string, scores []float64, k int) []string {
	idx := make([]int, len(labels))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if k > len(idx) {
		k = len(idx)
	}
	top := make([]string, k)
	for i := 0; i < k; i++ {
		top[i] = labels[idx[i]]
	}
	return top
}
