package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerflow/runner/internal/core/app"
	"github.com/makerflow/runner/internal/core/runner"
	"github.com/makerflow/runner/internal/core/workflow"
	"github.com/makerflow/runner/internal/httpapi"
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

func newTestServer(t *testing.T) *httpapi.Server {
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

	cfg := runner.DomainRuntimeConfig{
		Decomposition:              workflow.AgentConfig{Kind: "decomposition", PromptTemplate: "decompose:{{.task}}", Model: "fast", Samples: 1},
		DecompositionDiscriminator: workflow.AgentConfig{Kind: "decomposition_discriminator", PromptTemplate: "vote_decomp:{{.options}}", Model: "fast", Samples: 1},
		Solver:                     workflow.AgentConfig{Kind: "solve", PromptTemplate: "solve:{{.task}}", Model: "strategic", Samples: 1},
		SolutionDiscriminator:      workflow.AgentConfig{Kind: "solution_discriminator", PromptTemplate: "vote_sol:{{.options}}", Model: "fast", Samples: 1},
	}
	opts := runner.RunnerOptions{DefaultSamples: 1, DefaultK: 1, MaxDecompositionDepth: 0, MinWordsForDecomposition: 1}

	clock := &fakeClock{}
	flowRunner := runner.NewFlowRunner(client, 4, fixedResolver{cfg: cfg}, opts, promptrender.New(), nil, clock, nil, nil, nil, nil)

	svc := app.New(flowRunner, store, clock)
	return httpapi.NewServer(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateSessionRunsToCompletion(t *testing.T) {
	srv := newTestServer(t)

	body, err := json.Marshal(map[string]string{"domain": "demo", "prompt": "build something small"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var result struct {
		SessionID string `json:"SessionID"`
		Completed bool   `json:"Completed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Completed)
	assert.NotEmpty(t, result.SessionID)
}

func TestCreateSessionRejectsMissingFields(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSessionNotFoundReturns404(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessionsReturnsCreatedSession(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"domain": "demo", "prompt": "build something small"})
	createReq := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewReader(body))
	createRec := httptest.NewRecorder()
	srv.ServeHTTP(createRec, createReq)
	require.Equal(t, http.StatusAccepted, createRec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	listRec := httptest.NewRecorder()
	srv.ServeHTTP(listRec, listReq)

	require.Equal(t, http.StatusOK, listRec.Code)
	var out struct {
		Sessions []map[string]any `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &out))
	require.Len(t, out.Sessions, 1)
	assert.Equal(t, "demo", out.Sessions[0]["domain"])
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
