package promptrender

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesFields(t *testing.T) {
	e := New()
	out, err := e.Render(context.Background(), "Role: {{.role}}\nTask: {{.task}}", map[string]any{
		"role": "decomposition",
		"task": "build a bridge",
	})
	require.NoError(t, err)
	assert.Equal(t, "Role: decomposition\nTask: build a bridge", out)
}

func TestRenderMissingKeyZeroValue(t *testing.T) {
	e := New()
	out, err := e.Render(context.Background(), "x={{.missing}}", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "x=<no value>", out)
}

func TestRenderCachesParsedTemplate(t *testing.T) {
	e := New()
	tmpl := "{{.a}}-{{.b}}"
	_, err := e.Render(context.Background(), tmpl, map[string]any{"a": "1", "b": "2"})
	require.NoError(t, err)
	require.Len(t, e.cache, 1)
	_, err = e.Render(context.Background(), tmpl, map[string]any{"a": "3", "b": "4"})
	require.NoError(t, err)
	assert.Len(t, e.cache, 1)
}

func TestRenderInvalidTemplateErrors(t *testing.T) {
	e := New()
	_, err := e.Render(context.Background(), "{{.a", map[string]any{})
	require.Error(t, err)
}
