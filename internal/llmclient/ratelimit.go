package llmclient

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/makerflow/runner/internal/core/ports"
)

// RateLimited wraps a ports.LlmClient with a token-bucket limiter shared
// across every call the process makes, capping provider request rate
// regardless of how many steps are sampling concurrently.
type RateLimited struct {
	Client  ports.LlmClient
	Limiter *rate.Limiter
}

// NewRateLimited builds a limiter allowing ratePerSecond requests/sec with
// bursts up to burst.
func NewRateLimited(client ports.LlmClient, ratePerSecond float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{Client: client, Limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

func (r *RateLimited) ChatCompletion(ctx context.Context, model, prompt string, opts ports.CompletionOptions) (string, error) {
	if err := r.Limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.Client.ChatCompletion(ctx, model, prompt, opts)
}
