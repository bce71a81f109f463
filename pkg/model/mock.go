package model

import (
	"context"
	"strings"
	"sync"

	"vlmeval/pkg/core"
	"vlmeval/pkg/prompt"
)

// Mock is a scripted vision-language model for tests and dry runs. It
// tokenizes at word level (the image placeholder and end-of-example
// marker count as their own tokens) and its Forward distributions are
// position-independent: the probability assigned to a token is looked
// up by word, so a candidate label's joint score is the product of its
// words' configured weights.
type Mock struct {
	NameValue string

	// Outputs are returned by Generate per batch item, cycling when
	// shorter than the batch. Empty means echo the prompt text.
	Outputs []string

	// Weights maps a word to the probability every Forward row assigns
	// its token id. Unlisted words get DefaultWeight (or 0.01).
	Weights       map[string]float64
	DefaultWeight float64

	// Primed records every visual context presented through Prime.
	Primed [][]core.Image

	mu    sync.Mutex
	vocab map[string]int
	words []string
}

func (m *Mock) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

func (m *Mock) Generate(_ context.Context, prompts []core.Prompt, _ core.GenerateOptions) ([]string, error) {
	outputs := make([]string, len(prompts))
	for i, p := range prompts {
		if len(m.Outputs) > 0 {
			outputs[i] = m.Outputs[i%len(m.Outputs)]
		} else {
			outputs[i] = p.Text
		}
	}
	return outputs, nil
}

func (m *Mock) Prime(_ context.Context, images []core.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Primed = append(m.Primed, images)
	return nil
}

func (m *Mock) Encode(text string) ([]int, error) {
	spaced := strings.ReplaceAll(text, prompt.ImageToken, " "+prompt.ImageToken+" ")
	spaced = strings.ReplaceAll(spaced, prompt.EndMarker, " "+prompt.EndMarker+" ")

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vocab == nil {
		m.vocab = map[string]int{}
	}
	var tokens []int
	for _, word := range strings.Fields(spaced) {
		id, ok := m.vocab[word]
		if !ok {
			id = len(m.words)
			m.vocab[word] = id
			m.words = append(m.words, word)
		}
		tokens = append(tokens, id)
	}
	return tokens, nil
}

func (m *Mock) Forward(_ context.Context, tokens []int) ([][]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fallback := m.DefaultWeight
	if fallback == 0 {
		fallback = 0.01
	}
	row := make([]float64, len(m.words))
	for id, word := range m.words {
		if w, ok := m.Weights[word]; ok {
			row[id] = w
		} else {
			row[id] = fallback
		}
	}

	dists := make([][]float64, len(tokens))
	for i := range dists {
		dists[i] = row
	}
	return dists, nil
}
