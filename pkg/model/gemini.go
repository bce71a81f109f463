package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"google.golang.org/genai"

	"vlmeval/pkg/core"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini is a generation-only adapter: it can drive the captioning and
// VQA paths but does not implement the likelihood capability.
type Gemini struct {
	Client     *genai.Client
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

func NewGeminiFromEnv(modelName string) (*Gemini, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("gemini: GEMINI_API_KEY or GOOGLE_API_KEY is required")
	}
	if modelName == "" {
		modelName = defaultGeminiModel
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Gemini{
		Client:     client,
		Model:      modelName,
		Timeout:    60 * time.Second,
		MaxRetries: 2,
		Backoff:    500 * time.Millisecond,
	}, nil
}

func (g *Gemini) Name() string {
	if g.Model == "" {
		return defaultGeminiModel
	}
	return g.Model
}

func (g *Gemini) Generate(ctx context.Context, prompts []core.Prompt, opts core.GenerateOptions) ([]string, error) {
	outputs := make([]string, len(prompts))
	for i, p := range prompts {
		out, err := g.generateOne(ctx, p, opts)
		if err != nil {
			return nil, err
		}
		outputs[i] = out
	}
	return outputs, nil
}

func (g *Gemini) generateOne(ctx context.Context, p core.Prompt, opts core.GenerateOptions) (string, error) {
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := g.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := g.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	parts := make([]*genai.Part, 0, len(p.Images)+1)
	for _, img := range p.Images {
		data, mime, err := loadImage(img)
		if err != nil {
			return "", err
		}
		parts = append(parts, genai.NewPartFromBytes(data, mime))
	}
	parts = append(parts, genai.NewPartFromText(stripImageTokens(p.Text)))
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{}
	if opts.MaxNewTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxNewTokens)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := g.Client.Models.GenerateContent(attemptCtx, g.Name(), contents, config)
		cancel()
		if err == nil {
			content := result.Text()
			if content == "" {
				return "", fmt.Errorf("gemini: empty response")
			}
			return content, nil
		}

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", err
		}
		lastErr = err

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff * time.Duration(attempt+1)):
			}
		}
	}

	return "", fmt.Errorf("gemini: request failed after retries: %w", lastErr)
}
