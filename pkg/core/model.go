package core

import "context"

// Model performs batched constrained decoding over interleaved
// image/text prompts.
type Model interface {
	Name() string
	Generate(ctx context.Context, prompts []Prompt, opts GenerateOptions) ([]string, error)
}

// LikelihoodModel is the capability required by the closed-set
// classification path. A model that cannot score token sequences simply
// does not implement it; wiring such a model into the likelihood path is
// a type mismatch, not a runtime probe.
type LikelihoodModel interface {
	Model

	// Prime conditions subsequent Forward calls on a fixed visual
	// context. The cached effect is reused for every candidate label
	// scored against the same context.
	Prime(ctx context.Context, images []Image) error

	// Encode deterministically tokenizes text without special tokens.
	Encode(text string) ([]int, error)

	// Forward runs one scoring pass (no decoding) and returns, for each
	// token position, the probability distribution over the vocabulary
	// predicted at that position.
	Forward(ctx context.Context, tokens []int) ([][]float64, error)
}
