package tasks

import (
	"context"

	coreerrors "github.com/makerflow/runner/pkg/errors"

	"github.com/makerflow/runner/internal/core/ports"
	"github.com/makerflow/runner/internal/core/workflow"
)

// SolveTask renders the solver prompt and draws candidate solutions via
// SampleCollector, registering them on the step.
type SolveTask struct {
	Deps
	StepID   int
	Agent    workflow.AgentConfig
	Pipeline []ports.RedFlagger
}

func (t *SolveTask) Run(ctx context.Context, wc *workflow.WorkflowContext) (TaskResult, error) {
	step := wc.Step(t.StepID)
	if step == nil {
		return TaskResult{}, &coreerrors.InvalidStateError{Message: "solve: unknown step"}
	}

	prompt, err := t.Renderer.Render(ctx, t.Agent.PromptTemplate, map[string]any{
		"prompt": wc.Prompt,
		"task":   step.Description,
		"role":   "solver",
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
	wc.Metrics.SolveRuns++
	wc.Metrics.SampleCount += res.SamplesRequested
	wc.Metrics.ResampleCount += res.Resamples
	wc.Metrics.RedFlagHits += len(res.Incidents)
	if err != nil {
		step.Status = workflow.StepFailed
		return TaskResult{}, err
	}

	step.CandidateSolutions = res.Samples
	wc.RegisterSolutions(t.StepID, res.Samples)

	return TaskResult{
		Action: ActionContinue,
		Effect: Effect{Kind: EffectSolutionsReady, StepID: t.StepID},
	}, nil
}
