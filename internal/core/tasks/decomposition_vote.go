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

// DecompositionVoteTask consumes the pending decomposition proposals,
// votes on them, spawns child steps from the winner, and records the
// margin into per-step metrics and the discriminator ring buffer.
type DecompositionVoteTask struct {
	Deps
	StepID       int
	Agent        workflow.AgentConfig
	Pipeline     []ports.RedFlagger
	DefaultK     int
	AdaptiveK    bool
}

const decompositionDiscriminatorKind = "decomposition_discriminator"

func (t *DecompositionVoteTask) Run(ctx context.Context, wc *workflow.WorkflowContext) (TaskResult, error) {
	step := wc.Step(t.StepID)
	if step == nil {
		return TaskResult{}, &coreerrors.InvalidStateError{Message: "decomposition_vote: unknown step"}
	}
	proposals, ok := wc.TakeDecomposition(t.StepID)
	if !ok || len(proposals) == 0 {
		return TaskResult{}, &coreerrors.InvalidStateError{Message: "decomposition_vote: no pending proposals"}
	}

	var sb strings.Builder
	for i, p := range proposals {
		fmt.Fprintf(&sb, "Option %d:\n%s\n", i+1, strings.Join(p.Subtasks, "\n"))
	}

	prompt, err := t.Renderer.Render(ctx, t.Agent.PromptTemplate, map[string]any{
		"prompt":  wc.Prompt,
		"task":    step.Description,
		"role":    "decomposition_discriminator",
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

	c := len(proposals)
	var votes []int
	for _, raw := range res.Samples {
		if idx, ok := voting.ParseVote(raw, c); ok {
			votes = append(votes, idx)
		}
	}

	ring := wc.DiscriminatorRing(decompositionDiscriminatorKind)
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

	var ids []int
	for _, sub := range proposals[winner].Subtasks {
		id, err := wc.AddChildStep(t.StepID, sub)
		if err != nil {
			return TaskResult{}, err
		}
		ids = append(ids, id)
	}

	return TaskResult{
		Action: ActionContinue,
		Effect: Effect{Kind: EffectSpawnedSteps, StepID: t.StepID, SpawnedIDs: ids},
	}, nil
}

// resolveK computes the effective k for this vote: the agent override or
// runner default, adjusted by the adaptive rule against the discriminator
// ring.
func resolveK(agentK *int, defaultK int, adaptive bool, ring *workflow.DiscriminatorHistory) int {
	base := defaultK
	if agentK != nil {
		base = *agentK
	}
	if base < 1 {
		base = 1
	}
	return voting.AdaptiveK(base, adaptive, ring.Average(), len(ring.RecentMargins))
}
