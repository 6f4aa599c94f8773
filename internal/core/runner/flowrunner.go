// Package runner implements FlowRunner: the single-threaded cooperative
// scheduler that drains a WorkflowContext's work queue, invoking the
// matching MicroTask for each item and routing its effect to the next
// item(s), pausing on human-in-loop triggers, or returning Completed.
package runner

import (
	"context"
	"fmt"
	"strings"

	coreerrors "github.com/makerflow/runner/pkg/errors"

	"github.com/makerflow/runner/internal/core/ports"
	"github.com/makerflow/runner/internal/core/sampling"
	"github.com/makerflow/runner/internal/core/tasks"
	"github.com/makerflow/runner/internal/core/workflow"
)

// ExecuteStatus is the terminal status of one Execute call.
type ExecuteStatus string

const (
	StatusCompleted ExecuteStatus = "completed"
	StatusPaused    ExecuteStatus = "paused"
)

// ExecuteResult is returned by FlowRunner.Execute.
type ExecuteResult struct {
	Status      ExecuteStatus
	PauseReason string
}

// RedFlaggerResolver turns a named list of red-flagger configurations into
// concrete checkers. It errors on a name with no matching spec, or a spec
// naming an unrecognized flagger kind, rather than mismapping or skipping it.
type RedFlaggerResolver func(names []string) ([]ports.RedFlagger, error)

// FlowRunner is the core scheduler. It is safe to reuse across many
// sequential Execute calls against different contexts; the only shared
// mutable state is the SampleCollector's semaphore.
type FlowRunner struct {
	Config       ConfigResolver
	Options      RunnerOptions
	Renderer     ports.PromptRenderer
	FileSystem   ports.FileSystem
	Clock        ports.Clock
	Telemetry    ports.TelemetrySink
	RedFlaggers  RedFlaggerResolver
	ValidatePath tasks.PathValidator
	RunCommand   func(ctx context.Context, command string) (ports.SubprocessResult, error)
	Collector    *sampling.Collector
}

// NewFlowRunner builds a FlowRunner sharing one SampleCollector (and hence
// one global max_concurrent_llm semaphore) across every Execute call.
func NewFlowRunner(llm ports.LlmClient, maxConcurrentLLM int, cfg ConfigResolver, opts RunnerOptions, renderer ports.PromptRenderer, fs ports.FileSystem, clock ports.Clock, telemetry ports.TelemetrySink, redflaggers RedFlaggerResolver, validatePath tasks.PathValidator, runCommand func(ctx context.Context, command string) (ports.SubprocessResult, error)) *FlowRunner {
	return &FlowRunner{
		Config:       cfg,
		Options:      opts,
		Renderer:     renderer,
		FileSystem:   fs,
		Clock:        clock,
		Telemetry:    telemetry,
		RedFlaggers:  redflaggers,
		ValidatePath: validatePath,
		RunCommand:   runCommand,
		Collector:    sampling.NewCollector(llm, maxConcurrentLLM),
	}
}

// Execute drains wc's work queue until it is empty (Completed) or a task
// asks to pause (Paused). It mutates wc in place.
func (r *FlowRunner) Execute(ctx context.Context, wc *workflow.WorkflowContext) (ExecuteResult, error) {
	domainCfg, err := r.Config.ResolveDomain(wc.Domain)
	if err != nil {
		return ExecuteResult{}, &coreerrors.ConfigError{Domain: wc.Domain, Message: err.Error()}
	}
	opts := r.Options

	if wc.RootStepID == nil {
		root := wc.EnsureRoot()
		wc.EnqueueWork(workflow.WorkItem{Kind: workflow.KindDecomposition, StepID: root})
	}

	for wc.HasPendingWork() {
		item, _ := wc.DequeueWork()

		result, err := r.runItem(ctx, wc, item, domainCfg, opts)
		if err != nil {
			return ExecuteResult{}, err
		}
		if result.Action == tasks.ActionWaitForInput {
			wc.EnqueueWorkFront(item)
			wc.SetWaitState(item.StepID, "task_requested_input", "task requested additional input")
			return ExecuteResult{Status: StatusPaused, PauseReason: "task_requested_input"}, nil
		}

		step := wc.Step(item.StepID)

		if paused, reason := r.checkSampleStagePause(wc, item, step, opts); paused {
			wc.EnqueueWorkFront(item)
			return ExecuteResult{Status: StatusPaused, PauseReason: reason}, nil
		}

		if item.Kind == workflow.KindDecompositionVote || item.Kind == workflow.KindSolutionVote {
			if paused, reason := r.checkVoteStagePause(wc, item, step, opts); paused {
				return ExecuteResult{Status: StatusPaused, PauseReason: reason}, nil
			}
		}

		if pauseRes, shouldReturn := r.routeEffect(wc, item, result, opts); shouldReturn {
			return pauseRes, nil
		}
	}

	if r.Telemetry != nil {
		r.Telemetry.RecordEvent("flow_runner.completed", map[string]string{"session_id": wc.SessionID})
	}
	return ExecuteResult{Status: StatusCompleted}, nil
}

func (r *FlowRunner) runItem(ctx context.Context, wc *workflow.WorkflowContext, item workflow.WorkItem, domainCfg DomainRuntimeConfig, opts RunnerOptions) (tasks.TaskResult, error) {
	deps := tasks.Deps{
		Renderer:   r.Renderer,
		Collector:  r.Collector,
		FileSystem: r.FileSystem,
		Clock:      r.Clock,
		RunCommand: r.RunCommand,
	}

	switch item.Kind {
	case workflow.KindDecomposition:
		agent := withDefaultSamples(domainCfg.Decomposition, opts.DefaultSamples)
		pipeline, err := r.resolvePipeline(agent.RedFlaggers, domainCfg.DefaultRedFlaggers)
		if err != nil {
			return tasks.TaskResult{}, &coreerrors.ConfigError{Domain: wc.Domain, Message: err.Error()}
		}
		t := &tasks.DecompositionTask{Deps: deps, StepID: item.StepID, Agent: agent, Pipeline: pipeline}
		return t.Run(ctx, wc)
	case workflow.KindDecompositionVote:
		agent := withDefaultSamples(domainCfg.DecompositionDiscriminator, opts.DefaultSamples)
		pipeline, err := r.resolvePipeline(agent.RedFlaggers, domainCfg.DefaultRedFlaggers)
		if err != nil {
			return tasks.TaskResult{}, &coreerrors.ConfigError{Domain: wc.Domain, Message: err.Error()}
		}
		t := &tasks.DecompositionVoteTask{Deps: deps, StepID: item.StepID, Agent: agent, Pipeline: pipeline, DefaultK: opts.DefaultK, AdaptiveK: opts.AdaptiveK}
		return t.Run(ctx, wc)
	case workflow.KindSolve:
		agent := withDefaultSamples(domainCfg.Solver, opts.DefaultSamples)
		pipeline, err := r.resolvePipeline(agent.RedFlaggers, domainCfg.DefaultRedFlaggers)
		if err != nil {
			return tasks.TaskResult{}, &coreerrors.ConfigError{Domain: wc.Domain, Message: err.Error()}
		}
		t := &tasks.SolveTask{Deps: deps, StepID: item.StepID, Agent: agent, Pipeline: pipeline}
		return t.Run(ctx, wc)
	case workflow.KindSolutionVote:
		agent := withDefaultSamples(domainCfg.SolutionDiscriminator, opts.DefaultSamples)
		pipeline, err := r.resolvePipeline(agent.RedFlaggers, domainCfg.DefaultRedFlaggers)
		if err != nil {
			return tasks.TaskResult{}, &coreerrors.ConfigError{Domain: wc.Domain, Message: err.Error()}
		}
		t := &tasks.SolutionVoteTask{Deps: deps, StepID: item.StepID, Agent: agent, Pipeline: pipeline, DefaultK: opts.DefaultK, AdaptiveK: opts.AdaptiveK}
		return t.Run(ctx, wc)
	case workflow.KindApplyVerify:
		t := &tasks.ApplyVerifyTask{
			Deps:         deps,
			StepID:       item.StepID,
			Applier:      domainCfg.Applier,
			Verifier:     domainCfg.Verifier,
			StepByStep:   opts.StepByStep,
			ValidatePath: r.ValidatePath,
		}
		return t.Run(ctx, wc)
	default:
		return tasks.TaskResult{}, &coreerrors.InvalidStateError{Message: fmt.Sprintf("unknown work item kind %q", item.Kind)}
	}
}

func withDefaultSamples(agent workflow.AgentConfig, defaultSamples int) workflow.AgentConfig {
	if agent.Samples < 1 {
		if defaultSamples < 1 {
			defaultSamples = 1
		}
		agent.Samples = defaultSamples
	}
	return agent
}

func (r *FlowRunner) resolvePipeline(agentOverride, domainDefault []string) ([]ports.RedFlagger, error) {
	names := domainDefault
	if len(agentOverride) > 0 {
		names = agentOverride
	}
	if r.RedFlaggers == nil || len(names) == 0 {
		return nil, nil
	}
	return r.RedFlaggers(names)
}

// checkSampleStagePause implements the post-Decomposition/post-Solve pause
// triggers: red-flag count then resample count, in that priority order.
func (r *FlowRunner) checkSampleStagePause(wc *workflow.WorkflowContext, item workflow.WorkItem, step *workflow.WorkflowStep, opts RunnerOptions) (bool, string) {
	var stage string
	switch item.Kind {
	case workflow.KindDecomposition:
		stage = "decomposition sampling"
	case workflow.KindSolve:
		stage = "solve sampling"
	default:
		return false, ""
	}
	if opts.HumanRedFlagThreshold > 0 && len(step.Metrics.RedFlags) >= opts.HumanRedFlagThreshold {
		trigger := stage + "_red_flags"
		wc.SetWaitState(item.StepID, trigger, fmt.Sprintf("%d red flags recorded", len(step.Metrics.RedFlags)))
		return true, trigger
	}
	if opts.HumanResampleThreshold > 0 && step.Metrics.Resamples >= opts.HumanResampleThreshold {
		trigger := stage + "_resamples"
		wc.SetWaitState(item.StepID, trigger, fmt.Sprintf("%d resamples recorded", step.Metrics.Resamples))
		return true, trigger
	}
	return false, ""
}

// checkVoteStagePause implements the post-vote low-margin pause. On pause
// it re-enqueues a fresh sampling item (Decomposition for the
// decomposition vote, Solve for the solution vote) rather than the vote
// item itself, since the margin was too thin to trust without a resample.
func (r *FlowRunner) checkVoteStagePause(wc *workflow.WorkflowContext, item workflow.WorkItem, step *workflow.WorkflowStep, opts RunnerOptions) (bool, string) {
	if opts.HumanLowMarginThreshold <= 0 || step.Metrics.VoteMargin == nil {
		return false, ""
	}
	if *step.Metrics.VoteMargin > opts.HumanLowMarginThreshold {
		return false, ""
	}
	var stage string
	var requeue workflow.WorkItem
	switch item.Kind {
	case workflow.KindDecompositionVote:
		stage = "decomposition"
		requeue = workflow.WorkItem{Kind: workflow.KindDecomposition, StepID: item.StepID}
	case workflow.KindSolutionVote:
		stage = "solution"
		requeue = workflow.WorkItem{Kind: workflow.KindSolve, StepID: item.StepID}
	default:
		return false, ""
	}
	trigger := stage + "_low_margin"
	wc.EnqueueWorkFront(requeue)
	wc.SetWaitState(item.StepID, trigger, fmt.Sprintf("vote margin %d", *step.Metrics.VoteMargin))
	return true, trigger
}

// routeEffect enqueues the follow-up work item(s) dictated by the task
// kind just run, and handles the step_by_step checkpoint pause. Returns
// (result, true) if Execute should return immediately.
func (r *FlowRunner) routeEffect(wc *workflow.WorkflowContext, item workflow.WorkItem, result tasks.TaskResult, opts RunnerOptions) (ExecuteResult, bool) {
	switch item.Kind {
	case workflow.KindDecomposition:
		wc.EnqueueWorkFront(workflow.WorkItem{Kind: workflow.KindDecompositionVote, StepID: item.StepID})

	case workflow.KindDecompositionVote:
		ids := result.Effect.SpawnedIDs
		if len(ids) == 0 {
			wc.EnqueueWork(workflow.WorkItem{Kind: workflow.KindSolve, StepID: item.StepID})
		} else {
			for _, childID := range ids {
				child := wc.Step(childID)
				if child != nil && shouldRecurse(child, opts) {
					wc.EnqueueWork(workflow.WorkItem{Kind: workflow.KindDecomposition, StepID: childID})
				} else {
					wc.EnqueueWork(workflow.WorkItem{Kind: workflow.KindSolve, StepID: childID})
				}
			}
		}
		if opts.StepByStep {
			wc.SetWaitState(item.StepID, "step_by_step_checkpoint", "Decomposition plan ready")
			return ExecuteResult{Status: StatusPaused, PauseReason: "step_by_step_checkpoint"}, true
		}

	case workflow.KindSolve:
		wc.EnqueueWorkFront(workflow.WorkItem{Kind: workflow.KindSolutionVote, StepID: item.StepID})

	case workflow.KindSolutionVote:
		wc.EnqueueWorkFront(workflow.WorkItem{Kind: workflow.KindApplyVerify, StepID: item.StepID})

	case workflow.KindApplyVerify:
		if opts.StepByStep {
			wc.SetWaitState(item.StepID, "step_by_step_checkpoint", "Step finished execution")
			return ExecuteResult{Status: StatusPaused, PauseReason: "step_by_step_checkpoint"}, true
		}
	}
	return ExecuteResult{}, false
}

// shouldRecurse implements §4.5.1: a step is decomposed further only while
// within depth budget and its description still carries enough words to be
// worth splitting.
func shouldRecurse(step *workflow.WorkflowStep, opts RunnerOptions) bool {
	if step.Depth >= opts.MaxDecompositionDepth {
		return false
	}
	return wordCount(step.Description) >= opts.MinWordsForDecomposition
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
