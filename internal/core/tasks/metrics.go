package tasks

import (
	"github.com/makerflow/runner/internal/core/sampling"
	"github.com/makerflow/runner/internal/core/workflow"
)

// applyCollectorMetrics folds one SampleCollector.Collect call's counters
// into the step's cumulative samples_requested / samples_retained /
// resamples / red_flags, reflecting all attempts across the step's
// lifetime (a step may be resampled across multiple Run invocations, e.g.
// a low-margin re-decomposition).
func applyCollectorMetrics(step *workflow.WorkflowStep, res sampling.Result) {
	step.Metrics.SamplesRequested += res.SamplesRequested
	step.Metrics.SamplesRetained += res.SamplesRetained
	step.Metrics.Resamples += res.Resamples
	step.Metrics.RedFlags = append(step.Metrics.RedFlags, res.Incidents...)
}
