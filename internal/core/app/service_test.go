package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerflow/runner/internal/core/app"
	"github.com/makerflow/runner/internal/core/ports"
	"github.com/makerflow/runner/internal/core/runner"
	"github.com/makerflow/runner/internal/core/workflow"
	"github.com/makerflow/runner/internal/llmclient"
	"github.com/makerflow/runner/internal/promptrender"
	"github.com/makerflow/runner/internal/store/sqlite"
)

type fakeClock struct{ ms int64 }

func (f *fakeClock) NowMs() int64 { f.ms++; return f.ms }

type fixedResolver struct{ cfg runner.DomainRuntimeConfig }

func (r fixedResolver) ResolveDomain(domain string) (runner.DomainRuntimeConfig, error) {
	return r.cfg, nil
}

func singleChildDomain() runner.DomainRuntimeConfig {
	return runner.DomainRuntimeConfig{
		Decomposition:              workflow.AgentConfig{Kind: "decomposition", PromptTemplate: "decompose:{{.task}}", Model: "fast", Samples: 1},
		DecompositionDiscriminator: workflow.AgentConfig{Kind: "decomposition_discriminator", PromptTemplate: "vote_decomp:{{.options}}", Model: "fast", Samples: 1},
		Solver:                     workflow.AgentConfig{Kind: "solve", PromptTemplate: "solve:{{.task}}", Model: "strategic", Samples: 1},
		SolutionDiscriminator:      workflow.AgentConfig{Kind: "solution_discriminator", PromptTemplate: "vote_sol:{{.options}}", Model: "fast", Samples: 1},
		Applier:                    "",
		Verifier:                   "",
	}
}

func newTestService(t *testing.T) (*app.Service, *sqlite.Store) {
	t.Helper()

	client := llmclient.NewStatic(
		llmclient.Rule{PromptContains: "decompose:", Response: "write hello file"},
		llmclient.Rule{PromptContains: "vote_decomp:", Response: "1"},
		llmclient.Rule{PromptContains: "solve:", Response: "done solution content"},
		llmclient.Rule{PromptContains: "vote_sol:", Response: "1"},
	)

	store, err := sqlite.Open(sqlite.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	resolver := fixedResolver{cfg: singleChildDomain()}
	opts := runner.RunnerOptions{
		DefaultSamples:           1,
		DefaultK:                 1,
		MaxDecompositionDepth:    0,
		MinWordsForDecomposition: 1,
	}

	clock := &fakeClock{}
	flowRunner := runner.NewFlowRunner(
		client, 4, resolver, opts,
		promptrender.New(),
		nil, // FileSystem unused: applier is ""
		clock,
		nil, // Telemetry
		nil, // RedFlaggers
		nil, // ValidatePath
		nil, // RunCommand
	)

	return app.New(flowRunner, store, clock), store
}

func TestRunSessionCompletesSingleChildWorkflow(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.RunSession(context.Background(), "demo", "build something small")
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.False(t, result.Paused)
	assert.NotEmpty(t, result.SessionID)
}

func TestRunSessionPersistsSessionForLaterRetrieval(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.RunSession(context.Background(), "demo", "build something small")
	require.NoError(t, err)

	wc, status, err := svc.GetSession(context.Background(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "completed", status)
	assert.NotNil(t, wc.RootStepID)
}

func TestDryRunProbeNeverCallsApplier(t *testing.T) {
	svc, _ := newTestService(t)

	plan, err := svc.DryRunProbe(context.Background(), "demo", "build something small")
	require.NoError(t, err)
	assert.NotEmpty(t, plan.Steps)
}

func TestResumeSessionRejectsNonPausedSession(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.RunSession(context.Background(), "demo", "build something small")
	require.NoError(t, err)

	_, err = svc.ResumeSession(context.Background(), result.SessionID)
	assert.Error(t, err)
}

func TestListSessionsReturnsSavedRecord(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RunSession(context.Background(), "demo", "build something small")
	require.NoError(t, err)

	records, err := svc.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "demo", records[0].Domain)
}

type blockingLLM struct {
	client   ports.LlmClient
	release  chan struct{}
	firstHit chan struct{}
	once     bool
}

func (b *blockingLLM) ChatCompletion(ctx context.Context, model, prompt string, opts ports.CompletionOptions) (string, error) {
	if !b.once {
		b.once = true
		close(b.firstHit)
		<-b.release
	}
	return b.client.ChatCompletion(ctx, model, prompt, opts)
}

func TestRunSessionPersistsRunningRowBeforeExecuteCompletes(t *testing.T) {
	client := llmclient.NewStatic(
		llmclient.Rule{PromptContains: "decompose:", Response: "write hello file"},
		llmclient.Rule{PromptContains: "vote_decomp:", Response: "1"},
		llmclient.Rule{PromptContains: "solve:", Response: "done solution content"},
		llmclient.Rule{PromptContains: "vote_sol:", Response: "1"},
	)
	blocking := &blockingLLM{client: client, release: make(chan struct{}), firstHit: make(chan struct{})}

	store, err := sqlite.Open(sqlite.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	resolver := fixedResolver{cfg: singleChildDomain()}
	opts := runner.RunnerOptions{DefaultSamples: 1, DefaultK: 1, MaxDecompositionDepth: 0, MinWordsForDecomposition: 1}
	clock := &fakeClock{}
	flowRunner := runner.NewFlowRunner(blocking, 4, resolver, opts, promptrender.New(), nil, clock, nil, nil, nil, nil)
	svc := app.New(flowRunner, store, clock)

	resultCh := make(chan ports.RunSessionResult, 1)
	errCh := make(chan error, 1)
	go func() {
		result, err := svc.RunSession(context.Background(), "demo", "build something small")
		resultCh <- result
		errCh <- err
	}()

	<-blocking.firstHit

	records, err := svc.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "running", records[0].Status)

	close(blocking.release)
	require.NoError(t, <-errCh)
	result := <-resultCh
	assert.True(t, result.Completed)

	records, err = svc.ListSessions(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "completed", records[0].Status)
}

var _ ports.WorkflowService = (*app.Service)(nil)
