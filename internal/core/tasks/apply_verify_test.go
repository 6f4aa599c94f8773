package tasks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerflow/runner/internal/core/ports"
	"github.com/makerflow/runner/internal/core/workflow"
)

type fakeFS struct {
	files map[string]string
}

func newFakeFS() *fakeFS { return &fakeFS{files: make(map[string]string)} }

func (f *fakeFS) ReadToString(path string) (string, error) { return f.files[path], nil }
func (f *fakeFS) Write(path string, content string) error  { f.files[path] = content; return nil }
func (f *fakeFS) Exists(path string) bool                  { _, ok := f.files[path]; return ok }
func (f *fakeFS) CreateDirAll(path string) error            { return nil }

func stepWithSolution(wc *workflow.WorkflowContext, solution string) int {
	id := wc.EnsureRoot()
	s := wc.Step(id)
	s.WinningSolution = &solution
	return id
}

func TestApplyVerifyOverwriteFileWritesExtractedBlock(t *testing.T) {
	fs := newFakeFS()
	wc := workflow.NewWorkflowContext("s1", "demo", "do it", false)
	stepID := stepWithSolution(wc, `<file path="out/hello.go">package main</file>`)

	task := &ApplyVerifyTask{
		Deps:     Deps{FileSystem: fs},
		StepID:   stepID,
		Applier:  "overwrite_file",
		Verifier: "",
	}

	result, err := task.Run(context.Background(), wc)
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, result.Action)
	assert.Equal(t, "package main", fs.files["out/hello.go"])
	assert.Equal(t, workflow.StepCompleted, wc.Step(stepID).Status)
}

func TestApplyVerifyRunsVerifierAndFailsStepOnNonZeroExit(t *testing.T) {
	fs := newFakeFS()
	wc := workflow.NewWorkflowContext("s1", "demo", "do it", false)
	stepID := stepWithSolution(wc, `<file path="out/hello.go">package main</file>`)

	task := &ApplyVerifyTask{
		Deps: Deps{
			FileSystem: fs,
			RunCommand: func(ctx context.Context, command string) (ports.SubprocessResult, error) {
				return ports.SubprocessResult{ExitCode: 1}, nil
			},
		},
		StepID:   stepID,
		Applier:  "overwrite_file",
		Verifier: "go build ./...",
	}

	_, err := task.Run(context.Background(), wc)
	assert.Error(t, err)
	assert.Equal(t, workflow.StepFailed, wc.Step(stepID).Status)
}

func TestApplyVerifyPassesVerifierOnZeroExit(t *testing.T) {
	fs := newFakeFS()
	wc := workflow.NewWorkflowContext("s1", "demo", "do it", false)
	stepID := stepWithSolution(wc, `<file path="out/hello.go">package main</file>`)

	task := &ApplyVerifyTask{
		Deps: Deps{
			FileSystem: fs,
			RunCommand: func(ctx context.Context, command string) (ports.SubprocessResult, error) {
				return ports.SubprocessResult{ExitCode: 0}, nil
			},
		},
		StepID:   stepID,
		Applier:  "overwrite_file",
		Verifier: "go build ./...",
	}

	result, err := task.Run(context.Background(), wc)
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, result.Action)
	assert.True(t, *wc.Step(stepID).Metrics.VerificationPassed)
}

func TestApplyVerifyRejectsPathEscapingWorkingDir(t *testing.T) {
	fs := newFakeFS()
	wc := workflow.NewWorkflowContext("s1", "demo", "do it", false)
	stepID := stepWithSolution(wc, `<file path="../../etc/passwd">pwned</file>`)

	task := &ApplyVerifyTask{
		Deps:         Deps{FileSystem: fs},
		StepID:       stepID,
		Applier:      "overwrite_file",
		ValidatePath: func(path string) error { return assert.AnError },
	}

	_, err := task.Run(context.Background(), wc)
	assert.Error(t, err)
	assert.Empty(t, fs.files)
}

func TestApplyVerifyDryRunNeverWritesOrRuns(t *testing.T) {
	fs := newFakeFS()
	wc := workflow.NewWorkflowContext("s1", "demo", "do it", true)
	stepID := stepWithSolution(wc, `<file path="out/hello.go">package main</file>`)

	called := false
	task := &ApplyVerifyTask{
		Deps: Deps{
			FileSystem: fs,
			RunCommand: func(ctx context.Context, command string) (ports.SubprocessResult, error) {
				called = true
				return ports.SubprocessResult{}, nil
			},
		},
		StepID:   stepID,
		Applier:  "overwrite_file",
		Verifier: "go build ./...",
	}

	result, err := task.Run(context.Background(), wc)
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, result.Action)
	assert.False(t, called)
	assert.Empty(t, fs.files)
}
