package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerflow/runner/internal/core/ports"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := ports.SessionRecord{
		SessionID:   "sess-1",
		Domain:      "code_generation",
		Prompt:      "build a thing",
		Status:      "running",
		ContextJSON: `{"steps":[]}`,
		UpdatedAt:   1000,
	}
	require.NoError(t, s.Save(ctx, rec))

	loaded, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, rec, loaded)
}

func TestLoadMissingSessionErrors(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSaveUpsertsExistingSession(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rec := ports.SessionRecord{SessionID: "sess-1", Domain: "d", Prompt: "p", Status: "running", ContextJSON: "{}", UpdatedAt: 1}
	require.NoError(t, s.Save(ctx, rec))

	rec.Status = "paused"
	rec.UpdatedAt = 2
	require.NoError(t, s.Save(ctx, rec))

	loaded, err := s.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "paused", loaded.Status)
	assert.Equal(t, int64(2), loaded.UpdatedAt)
}

func TestListOrdersByUpdatedAtDescAndRespectsLimit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, ports.SessionRecord{
			SessionID: id, Domain: "d", Prompt: "p", Status: "running",
			ContextJSON: "{}", UpdatedAt: int64(i),
		}))
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].SessionID)

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
