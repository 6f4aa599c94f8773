package tasks

import (
	"context"
	"regexp"
	"strings"

	coreerrors "github.com/makerflow/runner/pkg/errors"

	"github.com/makerflow/runner/internal/core/ports"
	"github.com/makerflow/runner/internal/core/workflow"
)

// PathValidator checks an overwrite_file target path against the safety
// contract (see internal/fsutil). Returning a non-nil error aborts the
// write.
type PathValidator func(path string) error

// ApplyVerifyTask resolves the domain's applier/verifier, applies the
// winning solution, and records verification status.
type ApplyVerifyTask struct {
	Deps
	StepID       int
	Applier      string
	Verifier     string
	StepByStep   bool
	ValidatePath PathValidator
}

var fileBlockPattern = regexp.MustCompile(`(?s)<file\s+path="([^"]+)">(.*?)</file>`)
var fencedBlockPattern = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n(.*?)```")

func (t *ApplyVerifyTask) Run(ctx context.Context, wc *workflow.WorkflowContext) (TaskResult, error) {
	step := wc.Step(t.StepID)
	if step == nil {
		return TaskResult{}, &coreerrors.InvalidStateError{Message: "apply_verify: unknown step"}
	}

	if wc.DryRun {
		step.Status = workflow.StepCompleted
		return TaskResult{Action: ActionContinue, Effect: Effect{Kind: EffectStepCompleted, StepID: t.StepID}}, nil
	}

	if step.WinningSolution == nil {
		return TaskResult{}, &coreerrors.InvalidStateError{Message: "apply_verify: no winning solution"}
	}
	solution := *step.WinningSolution

	if err := t.apply(ctx, step, solution); err != nil {
		step.Status = workflow.StepFailed
		return TaskResult{}, err
	}

	if t.Verifier != "" {
		result, err := t.RunCommand(ctx, t.Verifier)
		passed := err == nil && result.ExitCode == 0
		step.Metrics.VerificationPassed = &passed
		if !passed {
			step.Status = workflow.StepFailed
			if err != nil {
				return TaskResult{}, err
			}
			return TaskResult{}, &coreerrors.SystemError{Message: "apply_verify: verification failed"}
		}
	}

	step.Status = workflow.StepCompleted
	return TaskResult{Action: ActionContinue, Effect: Effect{Kind: EffectStepCompleted, StepID: t.StepID}}, nil
}

func (t *ApplyVerifyTask) apply(ctx context.Context, step *workflow.WorkflowStep, solution string) error {
	switch {
	case t.Applier == "patch_file":
		// Built-in placeholder: no-op by design, the "patch" is the vote
		// winner already recorded on the step.
		return nil
	case t.Applier == "overwrite_file":
		return t.applyOverwriteFile(step, solution)
	case t.Applier == "":
		return nil
	default:
		// Any other applier string is run as a shell command through
		// RunCommand; only an execution error fails the step, the command's
		// exit code is not checked.
		_, err := t.RunCommand(ctx, t.Applier)
		return err
	}
}

func (t *ApplyVerifyTask) applyOverwriteFile(step *workflow.WorkflowStep, solution string) error {
	matches := fileBlockPattern.FindAllStringSubmatch(solution, -1)
	if len(matches) == 0 {
		path := extractPathFromDescription(step.Description)
		fenced := fencedBlockPattern.FindStringSubmatch(solution)
		if path == "" || fenced == nil {
			return &coreerrors.FileSystemError{Path: path, Op: "overwrite_file", Cause: errNoTarget}
		}
		return t.writeValidated(path, fenced[1])
	}
	for _, m := range matches {
		path := strings.TrimSpace(m[1])
		content := m[2]
		if err := t.writeValidated(path, content); err != nil {
			return err
		}
	}
	return nil
}

func (t *ApplyVerifyTask) writeValidated(path, content string) error {
	if t.ValidatePath != nil {
		if err := t.ValidatePath(path); err != nil {
			return &coreerrors.FileSystemError{Path: path, Op: "overwrite_file", Cause: err}
		}
	}
	if err := t.FileSystem.CreateDirAll(dirOf(path)); err != nil {
		return &coreerrors.FileSystemError{Path: path, Op: "create_dir_all", Cause: err}
	}
	if err := t.FileSystem.Write(path, content); err != nil {
		return &coreerrors.FileSystemError{Path: path, Op: "write", Cause: err}
	}
	return nil
}

var errNoTarget = &coreerrors.InvalidStateError{Message: "overwrite_file: no file block and no fallback target/fenced block"}

// extractPathFromDescription pulls a bare path-looking token from a step
// description, used as the fallback target when the solution has no
// <file path="..."> block.
func extractPathFromDescription(desc string) string {
	for _, tok := range strings.Fields(desc) {
		if strings.Contains(tok, "/") || strings.Contains(tok, ".") {
			return strings.Trim(tok, `"'`)
		}
	}
	return ""
}

// dirOf returns the parent directory portion of a slash-separated path.
func dirOf(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "."
	}
	return path[:idx]
}
