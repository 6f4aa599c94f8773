// Package tasks implements the five MicroTask kinds: Decomposition,
// DecompositionVote, Solve, SolutionVote, and ApplyVerify. Each exposes one
// Run(ctx) (TaskResult, error) method and is otherwise a pure function of
// its inputs plus the ports it was built with.
package tasks

import (
	"context"

	"github.com/makerflow/runner/internal/core/ports"
	"github.com/makerflow/runner/internal/core/sampling"
	"github.com/makerflow/runner/internal/core/workflow"
)

// Action is the closed set of task outcomes the scheduler understands.
type Action string

const (
	ActionContinue     Action = "continue"
	ActionWaitForInput Action = "wait_for_input"
	ActionEnd          Action = "end"
)

// EffectKind is the closed set of side-effect descriptors a task reports.
type EffectKind string

const (
	EffectNone            EffectKind = "none"
	EffectSpawnedSteps     EffectKind = "spawned_steps"
	EffectSolutionsReady   EffectKind = "solutions_ready"
	EffectWinnerSelected   EffectKind = "winner_selected"
	EffectStepCompleted    EffectKind = "step_completed"
)

// Effect carries the data associated with an EffectKind.
type Effect struct {
	Kind       EffectKind
	StepID     int
	SpawnedIDs []int
}

// TaskResult is returned by every MicroTask's Run method.
type TaskResult struct {
	Action Action
	Effect Effect
}

// Task is the common interface every MicroTask kind satisfies.
type Task interface {
	Run(ctx context.Context, wc *workflow.WorkflowContext) (TaskResult, error)
}

// Deps bundles the ports a task needs. Every task receives the same bundle;
// unused ports are simply not called.
type Deps struct {
	Renderer   ports.PromptRenderer
	Collector  *sampling.Collector
	FileSystem ports.FileSystem
	Clock      ports.Clock
	RunCommand func(ctx context.Context, command string) (ports.SubprocessResult, error)
}
