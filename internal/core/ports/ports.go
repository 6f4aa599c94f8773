// Package ports declares the boundary interfaces the core consumes and the
// one it exposes. Concrete adapters live under internal/llmclient,
// internal/store, internal/promptrender, internal/redflag, internal/fsutil,
// and internal/telemetry.
package ports

import (
	"context"

	"github.com/makerflow/runner/internal/core/workflow"
)

// CompletionOptions carries the optional knobs a chat_completion call may
// honor. A provider is free to ignore fields it doesn't support.
type CompletionOptions struct {
	Temperature     *float64
	MaxTokens       *int
	ReasoningEffort string
}

// LlmClient is the single port through which the core talks to a language
// model. Concrete vendor wiring (OpenAI/Anthropic/Gemini/xAI) is out of
// core scope.
type LlmClient interface {
	ChatCompletion(ctx context.Context, model, prompt string, opts CompletionOptions) (string, error)
}

// SessionRecord is the DTO persisted by a SessionRepository.
type SessionRecord struct {
	SessionID    string
	Domain       string
	Prompt       string
	Status       string
	ContextJSON  string
	MetadataJSON string
	UpdatedAt    int64
}

// SessionRepository is the SessionStore port: at-least durable save,
// load, and list keyed by session id.
type SessionRepository interface {
	Save(ctx context.Context, record SessionRecord) error
	Load(ctx context.Context, sessionID string) (SessionRecord, error)
	List(ctx context.Context, limit int) ([]SessionRecord, error)
}

// PromptRenderer renders a named template against a data object. data is
// always JSON-serializable.
type PromptRenderer interface {
	Render(ctx context.Context, template string, data map[string]any) (string, error)
}

// RedFlagVerdict is the outcome of one RedFlagger.Check call.
type RedFlagVerdict struct {
	Flagged bool
	Reason  string
}

// RedFlagger validates one sample and reports whether it should be
// rejected and forced to resample. A RedFlagger never raises an error out
// of the core — a validator failure degrades to "not flagged" at the
// pipeline's discretion, never to a propagated error.
type RedFlagger interface {
	Name() string
	Check(ctx context.Context, content string) RedFlagVerdict
}

// FileSystem is the applier's I/O port.
type FileSystem interface {
	ReadToString(path string) (string, error)
	Write(path string, content string) error
	Exists(path string) bool
	CreateDirAll(path string) error
}

// Clock returns the current time in milliseconds since the Unix epoch.
type Clock interface {
	NowMs() int64
}

// TelemetrySink records a named event with string-valued properties.
type TelemetrySink interface {
	RecordEvent(name string, properties map[string]string)
}

// RunSessionResult is returned by WorkflowService.RunSession and ResumeSession.
type RunSessionResult struct {
	SessionID    string
	Completed    bool
	Paused       bool
	PauseReason  string
}

// SubprocessResult is returned by WorkflowService.RunSubprocess.
type SubprocessResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// DryRunPlan is returned by WorkflowService.DryRunProbe: the resulting step
// tree with no subprocess ever invoked.
type DryRunPlan struct {
	Steps []*workflow.WorkflowStep
}

// WorkflowService is the port the core exposes to driving adapters (CLI,
// HTTP facade).
type WorkflowService interface {
	RunSession(ctx context.Context, domain, prompt string) (RunSessionResult, error)
	ResumeSession(ctx context.Context, sessionID string) (RunSessionResult, error)
	RunSubprocess(ctx context.Context, sessionID, command string) (SubprocessResult, error)
	GetSession(ctx context.Context, sessionID string) (*workflow.WorkflowContext, string, error)
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	DryRunProbe(ctx context.Context, domain, prompt string) (DryRunPlan, error)
}
