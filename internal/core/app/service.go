// Package app wires FlowRunner and SessionRepository together into the
// ports.WorkflowService the driving adapters (CLI, HTTP facade) consume.
package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/makerflow/runner/internal/core/ports"
	"github.com/makerflow/runner/internal/core/runner"
	"github.com/makerflow/runner/internal/core/workflow"
	coreerrors "github.com/makerflow/runner/pkg/errors"
)

const (
	statusRunning   = "running"
	statusPaused    = "paused"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// Service implements ports.WorkflowService.
type Service struct {
	Runner *runner.FlowRunner
	Store  ports.SessionRepository
	Clock  ports.Clock
}

func New(r *runner.FlowRunner, store ports.SessionRepository, clock ports.Clock) *Service {
	return &Service{Runner: r, Store: store, Clock: clock}
}

func (s *Service) RunSession(ctx context.Context, domain, prompt string) (ports.RunSessionResult, error) {
	sessionID := uuid.NewString()
	wc := workflow.NewWorkflowContext(sessionID, domain, prompt, false)
	if err := s.persist(ctx, wc, statusRunning); err != nil {
		return ports.RunSessionResult{}, err
	}
	return s.execute(ctx, wc)
}

func (s *Service) DryRunProbe(ctx context.Context, domain, prompt string) (ports.DryRunPlan, error) {
	sessionID := uuid.NewString()
	wc := workflow.NewWorkflowContext(sessionID, domain, prompt, true)
	if _, err := s.execute(ctx, wc); err != nil {
		return ports.DryRunPlan{}, err
	}
	return ports.DryRunPlan{Steps: wc.Steps}, nil
}

func (s *Service) ResumeSession(ctx context.Context, sessionID string) (ports.RunSessionResult, error) {
	record, err := s.Store.Load(ctx, sessionID)
	if err != nil {
		return ports.RunSessionResult{}, err
	}
	if record.Status != statusPaused && record.Status != statusFailed {
		return ports.RunSessionResult{}, &coreerrors.InvalidStateError{
			Message: fmt.Sprintf("session %q is %q, not resumable", sessionID, record.Status),
		}
	}

	wc, err := decodeContext(record)
	if err != nil {
		return ports.RunSessionResult{}, err
	}
	wc.ClearWaitState()

	if err := s.persist(ctx, wc, statusRunning); err != nil {
		return ports.RunSessionResult{}, err
	}
	return s.execute(ctx, wc)
}

func (s *Service) RunSubprocess(ctx context.Context, sessionID, command string) (ports.SubprocessResult, error) {
	if s.Runner.RunCommand == nil {
		return ports.SubprocessResult{}, &coreerrors.InvalidStateError{Message: "no subprocess runner configured"}
	}
	return s.Runner.RunCommand(ctx, command)
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (*workflow.WorkflowContext, string, error) {
	record, err := s.Store.Load(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	wc, err := decodeContext(record)
	if err != nil {
		return nil, "", err
	}
	return wc, record.Status, nil
}

func (s *Service) ListSessions(ctx context.Context, limit int) ([]ports.SessionRecord, error) {
	return s.Store.List(ctx, limit)
}

// execute runs the scheduler to completion or pause, persisting the
// resulting context and status, and never leaves a session undurable: a
// scheduler error still saves the context with status "failed" before
// propagating.
func (s *Service) execute(ctx context.Context, wc *workflow.WorkflowContext) (ports.RunSessionResult, error) {
	result, runErr := s.Runner.Execute(ctx, wc)

	status := statusRunning
	switch {
	case runErr != nil:
		status = statusFailed
	case result.Status == runner.StatusCompleted:
		status = statusCompleted
	case result.Status == runner.StatusPaused:
		status = statusPaused
	}

	if saveErr := s.persist(ctx, wc, status); saveErr != nil {
		if runErr == nil {
			return ports.RunSessionResult{}, saveErr
		}
	}

	if runErr != nil {
		return ports.RunSessionResult{}, runErr
	}

	return ports.RunSessionResult{
		SessionID:   wc.SessionID,
		Completed:   status == statusCompleted,
		Paused:      status == statusPaused,
		PauseReason: result.PauseReason,
	}, nil
}

func (s *Service) persist(ctx context.Context, wc *workflow.WorkflowContext, status string) error {
	contextJSON, err := json.Marshal(wc)
	if err != nil {
		return &coreerrors.PersistenceError{Op: "marshal_context", Cause: err}
	}
	record := ports.SessionRecord{
		SessionID:   wc.SessionID,
		Domain:      wc.Domain,
		Prompt:      wc.Prompt,
		Status:      status,
		ContextJSON: string(contextJSON),
		UpdatedAt:   s.Clock.NowMs(),
	}
	return s.Store.Save(ctx, record)
}

func decodeContext(record ports.SessionRecord) (*workflow.WorkflowContext, error) {
	var wc workflow.WorkflowContext
	if err := json.Unmarshal([]byte(record.ContextJSON), &wc); err != nil {
		return nil, &coreerrors.PersistenceError{Op: "unmarshal_context", Cause: err}
	}
	wc.AfterLoad()
	return &wc, nil
}
