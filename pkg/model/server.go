package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"vlmeval/pkg/core"
)

const defaultServerBaseURL = "http://localhost:8090"

// Server talks to a local inference server that fronts the actual
// vision-language model. It is the only adapter with the full
// likelihood capability: the server exposes generate, prime, encode,
// and forward endpoints.
type Server struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration

	// Padding is forwarded on generate requests; decoding wants pad
	// tokens on the left.
	Padding string
}

func NewServer(baseURL, modelName string) *Server {
	if baseURL == "" {
		baseURL = defaultServerBaseURL
	}
	return &Server{
		BaseURL:    baseURL,
		Model:      modelName,
		HTTPClient: &http.Client{},
		Timeout:    5 * time.Minute,
		MaxRetries: 2,
		Backoff:    500 * time.Millisecond,
		Padding:    "left",
	}
}

func (s *Server) Name() string {
	if s.Model == "" {
		return "server"
	}
	return s.Model
}

type serverPrompt struct {
	Images []string `json:"images"`
	Text   string   `json:"text"`
}

type generateRequest struct {
	Batch         []serverPrompt `json:"batch"`
	MaxNewTokens  int            `json:"max_new_tokens"`
	NumBeams      int            `json:"num_beams"`
	LengthPenalty float64        `json:"length_penalty"`
	Padding       string         `json:"padding"`
}

type generateResponse struct {
	Outputs []string `json:"outputs"`
}

func (s *Server) Generate(ctx context.Context, prompts []core.Prompt, opts core.GenerateOptions) ([]string, error) {
	req := generateRequest{
		MaxNewTokens:  opts.MaxNewTokens,
		NumBeams:      opts.NumBeams,
		LengthPenalty: opts.LengthPenalty,
		Padding:       s.Padding,
	}
	for _, p := range prompts {
		images, err := encodeImages(p.Images)
		if err != nil {
			return nil, err
		}
		req.Batch = append(req.Batch, serverPrompt{Images: images, Text: p.Text})
	}

	var resp generateResponse
	if err := s.post(ctx, "/generate", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Outputs) != len(prompts) {
		return nil, fmt.Errorf("server: %d outputs for %d prompts", len(resp.Outputs), len(prompts))
	}
	return resp.Outputs, nil
}

func (s *Server) Prime(ctx context.Context, images []core.Image) error {
	encoded, err := encodeImages(images)
	if err != nil {
		return err
	}
	return s.post(ctx, "/prime", map[string]any{"images": encoded}, &struct{}{})
}

func (s *Server) Encode(text string) ([]int, error) {
	var resp struct {
		Tokens []int `json:"tokens"`
	}
	if err := s.post(context.Background(), "/encode", map[string]any{"text": text}, &resp); err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

func (s *Server) Forward(ctx context.Context, tokens []int) ([][]float64, error) {
	var resp struct {
		Probs [][]float64 `json:"probs"`
	}
	if err := s.post(ctx, "/forward", map[string]any{"tokens": tokens}, &resp); err != nil {
		return nil, err
	}
	return resp.Probs, nil
}

func (s *Server) post(ctx context.Context, path string, payload, out any) error {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	maxRetries := s.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	client := s.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := func() error {
			req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, s.BaseURL+path, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return fmt.Errorf("server: %s returned %d: %s", path, resp.StatusCode, snippet)
			}
			return json.NewDecoder(resp.Body).Decode(out)
		}()
		cancel()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		lastErr = err

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff * time.Duration(attempt+1)):
			}
		}
	}

	return fmt.Errorf("server: request failed after retries: %w", lastErr)
}
