package tasks

import (
	"context"
	"strings"

	coreerrors "github.com/makerflow/runner/pkg/errors"

	"github.com/makerflow/runner/internal/core/ports"
	"github.com/makerflow/runner/internal/core/workflow"
)

// DecompositionTask renders the decomposition prompt, draws samples
// proposals via SampleCollector, and registers them on the context.
type DecompositionTask struct {
	Deps
	StepID   int
	Agent    workflow.AgentConfig
	Pipeline []ports.RedFlagger
}

func (t *DecompositionTask) Run(ctx context.Context, wc *workflow.WorkflowContext) (TaskResult, error) {
	step := wc.Step(t.StepID)
	if step == nil {
		return TaskResult{}, &coreerrors.InvalidStateError{Message: "decomposition: unknown step"}
	}

	start := t.Clock.NowMs()

	prompt, err := t.Renderer.Render(ctx, t.Agent.PromptTemplate, map[string]any{
		"prompt": wc.Prompt,
		"task":   step.Description,
		"role":   "decomposition",
	})
	if err != nil {
		return TaskResult{}, &coreerrors.TemplateRenderingError{Template: t.Agent.PromptTemplate, Cause: err}
	}

	samples := t.Agent.Samples
	if samples < 1 {
		samples = 1
	}
	res, err := t.Collector.Collect(ctx, t.Agent.Model, prompt, samples, t.Pipeline)
	applyCollectorMetrics(step, res)
	wc.Metrics.DecompositionRuns++
	wc.Metrics.SampleCount += res.SamplesRequested
	wc.Metrics.ResampleCount += res.Resamples
	wc.Metrics.RedFlagHits += len(res.Incidents)
	if err != nil {
		step.Status = workflow.StepFailed
		return TaskResult{}, err
	}

	proposals := make([]workflow.DecompositionProposal, 0, len(res.Samples))
	for i, raw := range res.Samples {
		proposals = append(proposals, workflow.DecompositionProposal{
			ID:       i,
			Raw:      raw,
			Subtasks: parseSubtasks(raw, step.Description),
		})
	}
	wc.RegisterDecomposition(t.StepID, proposals)
	step.Status = workflow.StepRunning

	elapsed := t.Clock.NowMs() - start
	step.Metrics.DurationMs = &elapsed

	return TaskResult{Action: ActionContinue, Effect: Effect{Kind: EffectNone, StepID: t.StepID}}, nil
}

// parseSubtasks splits a raw decomposition proposal into subtasks: one per
// line, trimmed, with a leading "-", "*", or "•" bullet stripped. An empty
// resulting list falls back to a single entry equal to fallback.
func parseSubtasks(raw, fallback string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.TrimPrefix(line, "-")
		line = strings.TrimPrefix(line, "*")
		line = strings.TrimPrefix(line, "•")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	if len(out) == 0 {
		return []string{fallback}
	}
	return out
}
