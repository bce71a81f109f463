package model

import (
	"context"

	"vlmeval/pkg/cache"
	"vlmeval/pkg/core"
)

// Cached wraps a generation model with the on-disk prompt cache.
// Likelihood scoring is never cached; primed visual state makes the
// forward pass context-dependent.
type Cached struct {
	Model core.Model
	Cache *cache.Cache
}

func (c Cached) Name() string {
	if c.Model == nil {
		return ""
	}
	return c.Model.Name()
}

func (c Cached) Generate(ctx context.Context, prompts []core.Prompt, opts core.GenerateOptions) ([]string, error) {
	if c.Model == nil {
		return nil, nil
	}
	if c.Cache == nil {
		return c.Model.Generate(ctx, prompts, opts)
	}

	outputs := make([]string, len(prompts))
	var misses []int
	for i, p := range prompts {
		if out, ok := c.Cache.Get(c.Name(), p, opts); ok {
			outputs[i] = out
		} else {
			misses = append(misses, i)
		}
	}
	if len(misses) == 0 {
		return outputs, nil
	}

	missed := make([]core.Prompt, len(misses))
	for j, i := range misses {
		missed[j] = prompts[i]
	}
	generated, err := c.Model.Generate(ctx, missed, opts)
	if err != nil {
		return nil, err
	}
	for j, i := range misses {
		outputs[i] = generated[j]
		_ = c.Cache.Set(c.Name(), prompts[i], opts, generated[j])
	}
	return outputs, nil
}
