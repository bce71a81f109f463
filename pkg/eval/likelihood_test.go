package eval

import (
	"context"
	"errors"
	"testing"

	"vlmeval/pkg/core"
	"vlmeval/pkg/dataset"
	"vlmeval/pkg/model"
	"vlmeval/pkg/prompt"
	"vlmeval/pkg/sampling"

	"github.com/stretchr/testify/require"
)

func TestLastMatch(t *testing.T) {
	start, ok := lastMatch([]int{5, 6, 7}, []int{5, 6, 7, 5, 6, 7, 9})
	require.True(t, ok)
	require.Equal(t, 3, start)
	// Scored tokens begin right after the match.
	require.Equal(t, 6, start+3)

	_, ok = lastMatch([]int{5, 6, 8}, []int{5, 6, 7, 9})
	require.False(t, ok)

	_, ok = lastMatch([]int{1, 2}, []int{2})
	require.False(t, ok)
}

func TestRank(t *testing.T) {
	top := rank([]string{"a", "b", "c"}, []float64{0.1, 0.2, 0.05}, 2)
	require.Equal(t, []string{"b", "a"}, top)

	// Ties keep vocabulary order.
	top = rank([]string{"a", "b"}, []float64{0.3, 0.3}, 5)
	require.Equal(t, []string{"a", "b"}, top)
}

func classPool() []core.Sample {
	return []core.Sample{
		{ID: "p1", Image: core.Image{Path: "p1.jpg"}, ClassName: "cat"},
		{ID: "p2", Image: core.Image{Path: "p2.jpg"}, ClassName: "dog"},
		{ID: "p3", Image: core.Image{Path: "p3.jpg"}, ClassName: "bird"},
	}
}

func TestLikelihoodSingleItem(t *testing.T) {
	evalSet := &dataset.Slice{NameHint: "toy", Items: []core.Sample{
		{ID: "q1", Image: core.Image{Path: "q1.jpg"}, ClassName: "cat"},
	}}

	run := func(weights map[string]float64) Accuracy {
		m := &model.Mock{Weights: weights}
		l := Likelihood{
			Model:    m,
			Eval:     evalSet,
			Pool:     classPool(),
			Selector: sampling.NewSelector(1),
			Labels:   []string{"cat", "dog", "bird"},
			Shots:    1,
			Budget:   1,
		}
		acc, err := l.Run(context.Background())
		require.NoError(t, err)
		return acc
	}

	acc := run(map[string]float64{"cat": 0.5, "dog": 0.1, "bird": 0.1})
	require.Equal(t, 1.0, acc.Top1)

	acc = run(map[string]float64{"cat": 0.1, "dog": 0.5, "bird": 0.2})
	require.Equal(t, 0.0, acc.Top1)
	// Three labels, so the true class is always within the top five.
	require.Equal(t, 1.0, acc.Top5)
}

func TestLikelihoodBudgetDenominator(t *testing.T) {
	items := []core.Sample{
		{ID: "q1", Image: core.Image{Path: "q1.jpg"}, ClassName: "cat"},
		{ID: "q2", Image: core.Image{Path: "q2.jpg"}, ClassName: "cat"},
		{ID: "q3", Image: core.Image{Path: "q3.jpg"}, ClassName: "dog"},
		{ID: "q4", Image: core.Image{Path: "q4.jpg"}, ClassName: "cat"},
		{ID: "q5", Image: core.Image{Path: "q5.jpg"}, ClassName: "dog"},
	}
	m := &model.Mock{Weights: map[string]float64{"cat": 0.5, "dog": 0.1, "bird": 0.1}}
	l := Likelihood{
		Model:    m,
		Eval:     &dataset.Slice{NameHint: "toy", Items: items},
		Pool:     classPool(),
		Selector: sampling.NewSelector(7),
		Labels:   []string{"cat", "dog", "bird"},
		Shots:    2,
		Budget:   5,
	}
	acc, err := l.Run(context.Background())
	require.NoError(t, err)
	// "cat" always wins, so accuracy is the cat fraction of the budget.
	require.InDelta(t, 3.0/5.0, acc.Top1, 1e-9)

	// A budget beyond the dataset falls back to the dataset size.
	l.Budget = 50
	acc, err = l.Run(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 3.0/5.0, acc.Top1, 1e-9)

	// A smaller budget caps both the loop and the denominator.
	l.Budget = 2
	m2 := &model.Mock{Weights: map[string]float64{"cat": 0.5, "dog": 0.1, "bird": 0.1}}
	l.Model = m2
	acc, err = l.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1.0, acc.Top1)
}

func TestLikelihoodMultiTokenLabels(t *testing.T) {
	evalSet := &dataset.Slice{NameHint: "toy", Items: []core.Sample{
		{ID: "q1", Image: core.Image{Path: "q1.jpg"}, ClassName: "tabby cat"},
	}}
	pool := []core.Sample{
		{ID: "p1", Image: core.Image{Path: "p1.jpg"}, ClassName: "tabby cat"},
		{ID: "p2", Image: core.Image{Path: "p2.jpg"}, ClassName: "dog"},
	}
	// Joint score is the product over label tokens: 0.5*0.4 = 0.2
	// beats 0.1.
	m := &model.Mock{Weights: map[string]float64{"tabby": 0.5, "cat": 0.4, "dog": 0.1}}
	l := Likelihood{
		Model:    m,
		Eval:     evalSet,
		Pool:     pool,
		Selector: sampling.NewSelector(3),
		Labels:   []string{"tabby cat", "dog"},
		Shots:    1,
		Budget:   1,
	}
	acc, err := l.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1.0, acc.Top1)
}

func TestLikelihoodPrimesPerItem(t *testing.T) {
	m := &model.Mock{Weights: map[string]float64{"cat": 0.5}}
	l := Likelihood{
		Model: m,
		Eval: &dataset.Slice{NameHint: "toy", Items: []core.Sample{
			{ID: "q1", Image: core.Image{Path: "q1.jpg"}, ClassName: "cat"},
		}},
		Pool:     classPool(),
		Selector: sampling.NewSelector(1),
		Labels:   []string{"cat", "dog"},
		Shots:    2,
		Budget:   1,
	}
	_, err := l.Run(context.Background())
	require.NoError(t, err)
	// One prime per item: two demonstration images plus the query.
	require.Len(t, m.Primed, 1)
	require.Len(t, m.Primed[0], 3)
	require.Equal(t, "q1.jpg", m.Primed[0][2].Path)
}

// alignmentStub encodes the query prefix to tokens that never occur in
// the full sequence, as when retokenization merges boundary tokens.
type alignmentStub struct {
	model.Mock
}

func (s *alignmentStub) Encode(text string) ([]int, error) {
	if text == prompt.ClassPrompt {
		return []int{101, 102}, nil
	}
	return []int{1, 2, 3, 4, 5}, nil
}

func (s *alignmentStub) Forward(_ context.Context, tokens []int) ([][]float64, error) {
	dists := make([][]float64, len(tokens))
	for i := range dists {
		dists[i] = make([]float64, 200)
	}
	return dists, nil
}

func TestLikelihoodAlignmentFailure(t *testing.T) {
	l := Likelihood{
		Model: &alignmentStub{},
		Eval: &dataset.Slice{NameHint: "toy", Items: []core.Sample{
			{ID: "q1", Image: core.Image{Path: "q1.jpg"}, ClassName: "cat"},
		}},
		Pool:     classPool(),
		Selector: sampling.NewSelector(1),
		Labels:   []string{"cat"},
		Shots:    1,
		Budget:   1,
	}
	_, err := l.Run(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, core.ErrAlignment))
}

func TestLikelihoodEmptyVocabulary(t *testing.T) {
	l := Likelihood{
		Model:    &model.Mock{},
		Eval:     &dataset.Slice{NameHint: "toy"},
		Selector: sampling.NewSelector(1),
	}
	_, err := l.Run(context.Background())
	require.True(t, errors.Is(err, core.ErrConfiguration))
}
