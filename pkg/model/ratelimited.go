package model

import (
	"context"
	"errors"
	"math"
	"time"

	"vlmeval/pkg/core"
)

// RateLimited throttles a remote adapter's generate calls with a token
// bucket, one token per batch.
type RateLimited struct {
	Model   core.Model
	Limiter *Limiter
}

func (r RateLimited) Name() string {
	if r.Model == nil {
		return ""
	}
	return r.Model.Name()
}

func (r RateLimited) Generate(ctx context.Context, prompts []core.Prompt, opts core.GenerateOptions) ([]string, error) {
	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return r.Model.Generate(ctx, prompts, opts)
}

// Limiter is a ticker-refilled token bucket.
type Limiter struct {
	tokens chan struct{}
	stop   chan struct{}
}

func NewLimiter(rps float64, burst int) (*Limiter, func(), error) {
	if rps <= 0 {
		return nil, func() {}, errors.New("model: limiter rps must be > 0")
	}
	if burst <= 0 {
		burst = 1
	}

	interval := time.Duration(math.Round(float64(time.Second) / rps))
	if interval <= 0 {
		interval = time.Nanosecond
	}

	l := &Limiter{
		tokens: make(chan struct{}, burst),
		stop:   make(chan struct{}),
	}
	for i := 0; i < burst; i++ {
		l.tokens <- struct{}{}
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				return
			case <-ticker.C:
				select {
				case l.tokens <- struct{}{}:
				default:
				}
			}
		}
	}()

	return l, func() { close(l.stop) }, nil
}

func (l *Limiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.tokens:
		return nil
	}
}
