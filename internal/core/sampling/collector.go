// Package sampling implements SampleCollector: drawing N candidate LM
// outputs and running them through the red-flag pipeline with bounded
// resample.
package sampling

import (
	"context"

	"golang.org/x/sync/errgroup"

	coreerrors "github.com/makerflow/runner/pkg/errors"

	"github.com/makerflow/runner/internal/core/ports"
	"github.com/makerflow/runner/internal/core/workflow"
)

const previewLimit = 160

// Collector draws samples from an LlmClient, bounding concurrent model
// calls with a shared semaphore, and rejects flagged samples via a
// per-call list of RedFlaggers.
type Collector struct {
	llm ports.LlmClient
	sem chan struct{}
}

// NewCollector builds a Collector whose outstanding model calls are bounded
// by maxConcurrent (lower-bounded at 1).
func NewCollector(llm ports.LlmClient, maxConcurrent int) *Collector {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Collector{llm: llm, sem: make(chan struct{}, maxConcurrent)}
}

// Result is the outcome of a Collect call.
type Result struct {
	Samples          []string
	SamplesRequested int
	SamplesRetained  int
	Resamples        int
	Incidents        []workflow.RedFlagIncident
}

// Collect requests n samples of model for prompt, retaining only samples
// that pass every flagger in pipeline. It loops with a bounded resample
// budget (max(n,1)*4 attempts) until n samples are accepted or the budget
// is exhausted, in which case it returns a *errors.SystemError.
func (co *Collector) Collect(ctx context.Context, model, prompt string, n int, pipeline []ports.RedFlagger) (Result, error) {
	if n < 1 {
		n = 1
	}
	var res Result
	res.SamplesRequested = 0
	res.SamplesRetained = 0

	if len(pipeline) == 0 {
		out, err := co.requestBatch(ctx, model, prompt, n)
		if err != nil {
			return res, err
		}
		res.SamplesRequested = n
		res.SamplesRetained = len(out)
		res.Samples = out
		return res, nil
	}

	maxAttempts := n * 4
	if maxAttempts < 4 {
		maxAttempts = 4
	}
	attempts := 0
	accepted := make([]string, 0, n)
	for len(accepted) < n {
		remaining := n - len(accepted)
		batch, err := co.requestBatch(ctx, model, prompt, remaining)
		if err != nil {
			return res, err
		}
		res.SamplesRequested += len(batch)

		accByThis, incidents := co.evaluateBatch(ctx, batch, pipeline)
		res.SamplesRetained += len(accByThis)
		res.Incidents = append(res.Incidents, incidents...)
		accepted = append(accepted, accByThis...)

		if len(accepted) >= n {
			break
		}
		res.Resamples++
		attempts++
		if attempts >= maxAttempts {
			res.Samples = accepted
			return res, &coreerrors.SystemError{Message: "sample collector: resample budget exhausted"}
		}
	}
	res.Samples = accepted
	return res, nil
}

// requestBatch issues n concurrent model calls, each gated by the shared
// semaphore, and returns their raw outputs indexed by request order (not
// completion order); evaluateBatch keeps that order for accepted samples.
func (co *Collector) requestBatch(ctx context.Context, model, prompt string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]string, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			select {
			case co.sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-co.sem }()

			text, err := co.llm.ChatCompletion(gctx, model, prompt, ports.CompletionOptions{})
			if err != nil {
				return err
			}
			out[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// An error the client already reports as an LlmProviderError is
		// passed through unchanged so its Retryable flag reaches the caller;
		// anything else is wrapped as a non-retryable provider error.
		var provErr *coreerrors.LlmProviderError
		if coreerrors.As(err, &provErr) {
			return nil, provErr
		}
		return nil, &coreerrors.LlmProviderError{Provider: model, Details: err.Error(), Retryable: false}
	}
	return out, nil
}

// evaluateBatch runs the red-flag pipeline concurrently over each sample
// (per-sample join) and returns the accepted samples in their original
// batch order plus any recorded incidents.
func (co *Collector) evaluateBatch(ctx context.Context, batch []string, pipeline []ports.RedFlagger) ([]string, []workflow.RedFlagIncident) {
	type verdict struct {
		flagged  bool
		flagger  string
		reason   string
	}
	results := make([]verdict, len(batch))
	var g errgroup.Group
	for i, sample := range batch {
		i, sample := i, sample
		g.Go(func() error {
			var fg errgroup.Group
			verdicts := make([]ports.RedFlagVerdict, len(pipeline))
			names := make([]string, len(pipeline))
			for j, flagger := range pipeline {
				j, flagger := j, flagger
				fg.Go(func() error {
					verdicts[j] = flagger.Check(ctx, sample)
					names[j] = flagger.Name()
					return nil
				})
			}
			fg.Wait()
			for j, v := range verdicts {
				if v.Flagged {
					results[i] = verdict{flagged: true, flagger: names[j], reason: v.Reason}
					return nil
				}
			}
			return nil
		})
	}
	g.Wait()

	var accepted []string
	var incidents []workflow.RedFlagIncident
	for i, sample := range batch {
		if results[i].flagged {
			incidents = append(incidents, workflow.RedFlagIncident{
				Flagger: results[i].flagger,
				Reason:  results[i].reason,
				Preview: truncate(sample, previewLimit),
			})
			continue
		}
		accepted = append(accepted, sample)
	}
	return accepted, incidents
}

// truncate trims s to at most n runes, preserving complete runes rather
// than splitting multi-byte characters.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
