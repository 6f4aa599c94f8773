package llmclient

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/makerflow/runner/internal/core/ports"
	coreerrors "github.com/makerflow/runner/pkg/errors"
)

// RetryConfig configures exponential backoff with jitter around a wrapped
// LlmClient.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retrying wraps a ports.LlmClient, retrying only errors the provider marks
// Retryable.
type Retrying struct {
	Client ports.LlmClient
	Config RetryConfig
}

func NewRetrying(client ports.LlmClient, cfg RetryConfig) *Retrying {
	return &Retrying{Client: client, Config: cfg}
}

func (r *Retrying) ChatCompletion(ctx context.Context, model, prompt string, opts ports.CompletionOptions) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= r.Config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(r.backoff(attempt)):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		out, err := r.Client.ChatCompletion(ctx, model, prompt, opts)
		if err == nil {
			return out, nil
		}
		lastErr = err

		var provErr *coreerrors.LlmProviderError
		if !errors.As(err, &provErr) || !provErr.Retryable {
			return "", err
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", &coreerrors.LlmProviderError{Provider: "retry", Details: "max retries exceeded: " + lastErr.Error()}
}

func (r *Retrying) backoff(attempt int) time.Duration {
	delay := float64(r.Config.InitialDelay) * math.Pow(r.Config.Multiplier, float64(attempt-1))
	if delay > float64(r.Config.MaxDelay) {
		delay = float64(r.Config.MaxDelay)
	}
	if r.Config.Jitter > 0 {
		jitter := delay * r.Config.Jitter
		delay += (rand.Float64() * 2 * jitter) - jitter
	}
	return time.Duration(delay)
}
