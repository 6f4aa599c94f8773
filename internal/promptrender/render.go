// Package promptrender renders agent prompt templates with text/template,
// the same engine the teacher's workflow expression layer uses for
// variable substitution.
package promptrender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"

	coreerrors "github.com/makerflow/runner/pkg/errors"
)

// Engine is a ports.PromptRenderer backed by text/template. Parsed templates
// are cached by source string since the same agent template is rendered
// repeatedly across steps and samples.
type Engine struct {
	mu    sync.Mutex
	cache map[string]*template.Template
}

func New() *Engine {
	return &Engine{cache: make(map[string]*template.Template)}
}

func (e *Engine) Render(ctx context.Context, tmplStr string, data map[string]any) (string, error) {
	tmpl, err := e.parse(tmplStr)
	if err != nil {
		return "", &coreerrors.TemplateRenderingError{Template: preview(tmplStr), Cause: err}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", &coreerrors.TemplateRenderingError{Template: preview(tmplStr), Cause: err}
	}
	return buf.String(), nil
}

func (e *Engine) parse(tmplStr string) (*template.Template, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.cache[tmplStr]; ok {
		return t, nil
	}
	t, err := template.New("prompt").Funcs(funcMap()).Option("missingkey=zero").Parse(tmplStr)
	if err != nil {
		return nil, err
	}
	e.cache[tmplStr] = t
	return t, nil
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"toJson": func(v any) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
		"join":     strings.Join,
		"upper":    strings.ToUpper,
		"lower":    strings.ToLower,
		"trim":     strings.TrimSpace,
		"truncate": truncateRunes,
		"default":  defaultFunc,
	}
}

func truncateRunes(n int, s string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func defaultFunc(def, v any) any {
	if v == nil || v == "" {
		return def
	}
	return v
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 60 {
		return s
	}
	return fmt.Sprintf("%s...", string(r[:57]))
}
