package sampling

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerflow/runner/internal/core/ports"
	coreerrors "github.com/makerflow/runner/pkg/errors"
)

type staticLLM struct {
	response string
	calls    int32
}

func (s *staticLLM) ChatCompletion(ctx context.Context, model, prompt string, opts ports.CompletionOptions) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.response, nil
}

type alwaysFlags struct{ reason string }

func (a alwaysFlags) Name() string { return "always" }
func (a alwaysFlags) Check(ctx context.Context, content string) ports.RedFlagVerdict {
	return ports.RedFlagVerdict{Flagged: true, Reason: a.reason}
}

type neverFlags struct{}

func (neverFlags) Name() string { return "never" }
func (neverFlags) Check(ctx context.Context, content string) ports.RedFlagVerdict {
	return ports.RedFlagVerdict{}
}

func TestCollectReturnsAllSamplesWithNoPipeline(t *testing.T) {
	llm := &staticLLM{response: "hello"}
	c := NewCollector(llm, 4)

	result, err := c.Collect(context.Background(), "m", "p", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.SamplesRetained)
	assert.Equal(t, 3, result.SamplesRequested)
	assert.Len(t, result.Samples, 3)
}

func TestCollectExhaustsResampleBudgetWhenAlwaysFlagged(t *testing.T) {
	llm := &staticLLM{response: "bad"}
	c := NewCollector(llm, 4)

	_, err := c.Collect(context.Background(), "m", "p", 2, []ports.RedFlagger{alwaysFlags{reason: "nope"}})
	assert.Error(t, err)
}

func TestCollectAcceptsAllSamplesWhenNeverFlagged(t *testing.T) {
	llm := &staticLLM{response: "good"}
	c := NewCollector(llm, 4)

	result, err := c.Collect(context.Background(), "m", "p", 3, []ports.RedFlagger{neverFlags{}})
	require.NoError(t, err)
	assert.Equal(t, 3, result.SamplesRetained)
	assert.Empty(t, result.Incidents)
}

func TestCollectRecordsIncidentsForFlaggedSamples(t *testing.T) {
	llm := &staticLLM{response: "bad"}
	c := NewCollector(llm, 4)

	result, err := c.Collect(context.Background(), "m", "p", 1, []ports.RedFlagger{alwaysFlags{reason: "too long"}})
	require.Error(t, err)
	// n=1 gives a budget of 4 attempts, each rejecting its single sample.
	require.Len(t, result.Incidents, 4)
	assert.Equal(t, "always", result.Incidents[0].Flagger)
	assert.Equal(t, "too long", result.Incidents[0].Reason)
	assert.Equal(t, "bad", result.Incidents[0].Preview)
}

type erroringLLM struct{}

func (erroringLLM) ChatCompletion(ctx context.Context, model, prompt string, opts ports.CompletionOptions) (string, error) {
	return "", assert.AnError
}

func TestCollectWrapsLlmErrorAsProviderError(t *testing.T) {
	c := NewCollector(erroringLLM{}, 2)

	_, err := c.Collect(context.Background(), "m", "p", 2, nil)
	assert.Error(t, err)
	var provErr *coreerrors.LlmProviderError
	assert.ErrorAs(t, err, &provErr)
}

func TestCollectBoundsConcurrencyBySemaphoreSize(t *testing.T) {
	llm := &staticLLM{response: "x"}
	c := NewCollector(llm, 1)

	result, err := c.Collect(context.Background(), "m", "p", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, result.SamplesRetained)
	assert.EqualValues(t, 5, llm.calls)
}
