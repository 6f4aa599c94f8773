package tasks

import (
	"context"
	"fmt"
	"strings"

	coreerrors "github.com/makerflow/runner/pkg/errors"

	"github.com/makerflow/runner/internal/core/ports"
	"github.com/makerflow/runner/internal/core/voting"
	"github.com/makerflow/runner/internal/core/workflow"
)

const solutionDiscriminatorKind = "solution_discriminator"

// SolutionVoteTask votes over the step's candidate solutions, sets the
// winner, and marks the step Completed.
type SolutionVoteTask struct {
	Deps
	StepID    int
	Agent     workflow.AgentConfig
	Pipeline  []ports.RedFlagger
	DefaultK  int
	AdaptiveK bool
}

func (t *SolutionVoteTask) Run(ctx context.Context, wc *workflow.WorkflowContext) (TaskResult, error) {
	step := wc.Step(t.StepID)
	if step == nil {
		return TaskResult{}, &coreerrors.InvalidStateError{Message: "solution_vote: unknown step"}
	}
	candidates, ok := wc.TakeSolutions(t.StepID)
	if !ok || len(candidates) == 0 {
		return TaskResult{}, &coreerrors.InvalidStateError{Message: "solution_vote: no pending solutions"}
	}

	var sb strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&sb, "Option %d:\n%s\n", i+1, c)
	}

	prompt, err := t.Renderer.Render(ctx, t.Agent.PromptTemplate, map[string]any{
		"prompt":  wc.Prompt,
		"task":    step.Description,
		"role":    "solution_discriminator",
		"options": sb.String(),
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
	wc.Metrics.VoteAttempts++
	wc.Metrics.SampleCount += res.SamplesRequested
	wc.Metrics.ResampleCount += res.Resamples
	wc.Metrics.RedFlagHits += len(res.Incidents)
	if err != nil {
		step.Status = workflow.StepFailed
		return TaskResult{}, err
	}

	c := len(candidates)
	var votes []int
	for _, raw := range res.Samples {
		if idx, ok := voting.ParseVote(raw, c); ok {
			votes = append(votes, idx)
		}
	}

	ring := wc.DiscriminatorRing(solutionDiscriminatorKind)
	k := resolveK(t.Agent.K, t.DefaultK, t.AdaptiveK, ring)

	winner := voting.FirstToAheadByK(votes, k)
	if winner < 0 {
		winner = 0
	}
	winnerVotes, secondBest := voting.VoteCounts(votes, c, winner)
	margin := voting.Margin(winnerVotes, secondBest)
	if len(votes) > 0 {
		step.Metrics.VoteMargin = &margin
		ring.Push(margin)
	}

	winning := candidates[winner]
	step.WinningSolution = &winning
	step.Status = workflow.StepCompleted

	return TaskResult{
		Action: ActionContinue,
		Effect: Effect{Kind: EffectWinnerSelected, StepID: t.StepID},
	}, nil
}
