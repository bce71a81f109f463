package model

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"vlmeval/pkg/core"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI is a generation-only adapter using chat completions with
// inline data-URL image parts.
type OpenAI struct {
	Client     openai.Client
	Model      string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

func NewOpenAIFromEnv(modelName string) (*OpenAI, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("openai: OPENAI_API_KEY is required")
	}
	if modelName == "" {
		modelName = defaultOpenAIModel
	}
	return &OpenAI{
		Client:     openai.NewClient(option.WithAPIKey(apiKey)),
		Model:      modelName,
		Timeout:    60 * time.Second,
		MaxRetries: 2,
		Backoff:    500 * time.Millisecond,
	}, nil
}

func (o *OpenAI) Name() string {
	if o.Model == "" {
		return defaultOpenAIModel
	}
	return o.Model
}

func (o *OpenAI) Generate(ctx context.Context, prompts []core.Prompt, opts core.GenerateOptions) ([]string, error) {
	outputs := make([]string, len(prompts))
	for i, p := range prompts {
		out, err := o.generateOne(ctx, p, opts)
		if err != nil {
			return nil, err
		}
		outputs[i] = out
	}
	return outputs, nil
}

func (o *OpenAI) generateOne(ctx context.Context, p core.Prompt, opts core.GenerateOptions) (string, error) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxRetries := o.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := o.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(p.Images)+1)
	for _, img := range p.Images {
		data, mime, err := loadImage(img)
		if err != nil {
			return "", err
		}
		url := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	}
	parts = append(parts, openai.TextContentPart(stripImageTokens(p.Text)))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.Name()),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
	}
	if opts.MaxNewTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxNewTokens))
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		completion, err := o.Client.Chat.Completions.New(attemptCtx, params)
		cancel()
		if err == nil {
			if len(completion.Choices) == 0 {
				return "", fmt.Errorf("openai: empty response")
			}
			return completion.Choices[0].Message.Content, nil
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

	return "", fmt.Errorf("openai: request failed after retries: %w", lastErr)
}
