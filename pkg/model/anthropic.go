package model

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"vlmeval/pkg/core"
)

const defaultAnthropicModel = "claude-3-5-haiku-latest"

// Anthropic is a generation-only adapter using messages with base64
// image blocks.
type Anthropic struct {
	Client     anthropic.Client
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	MaxTokens  int
}

func NewAnthropicFromEnv(modelName string) (*Anthropic, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("anthropic: ANTHROPIC_API_KEY is required")
	}
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	return &Anthropic{
		Client:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		Model:      modelName,
		Timeout:    60 * time.Second,
		MaxRetries: 2,
		Backoff:    500 * time.Millisecond,
		MaxTokens:  1024,
	}, nil
}

func (a *Anthropic) Name() string {
	if a.Model == "" {
		return defaultAnthropicModel
	}
	return a.Model
}

func (a *Anthropic) Generate(ctx context.Context, prompts []core.Prompt, opts core.GenerateOptions) ([]string, error) {
	outputs := make([]string, len(prompts))
	for i, p := range prompts {
		out, err := a.generateOne(ctx, p, opts)
		if err != nil {
			return nil, err
		}
		outputs[i] = out
	}
	return outputs, nil
}

func (a *Anthropic) generateOne(ctx context.Context, p core.Prompt, opts core.GenerateOptions) (string, error) {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := a.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := a.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	maxTokens := a.MaxTokens
	if opts.MaxNewTokens > 0 {
		maxTokens = opts.MaxNewTokens
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(p.Images)+1)
	for _, img := range p.Images {
		data, mime, err := loadImage(img)
		if err != nil {
			return "", err
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(data)))
	}
	blocks = append(blocks, anthropic.NewTextBlock(stripImageTokens(p.Text)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.Name()),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		message, err := a.Client.Messages.New(attemptCtx, params)
		cancel()
		if err == nil {
			return extractText(message.Content), nil
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

	return "", fmt.Errorf("anthropic: request failed after retries: %w", lastErr)
}

func extractText(blocks []anthropic.ContentBlockUnion) string {
	var builder strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			builder.WriteString(block.Text)
		}
	}
	return builder.String()
}
