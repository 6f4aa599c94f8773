package llmclient

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/makerflow/runner/internal/core/ports"
)

// Rule matches a ChatCompletion call to a canned response. When
// PromptContains is empty the rule matches unconditionally — useful as a
// catch-all default at the end of the rule list.
type Rule struct {
	PromptContains string
	Response       string
	Err            error
}

// Static is a scripted ports.LlmClient for tests: each call is matched
// against Rules in order, first match wins. Unmatched calls return an
// error naming the prompt so a failing test points at its cause.
type Static struct {
	mu    sync.Mutex
	Rules []Rule
	Calls []string
}

func NewStatic(rules ...Rule) *Static {
	return &Static{Rules: rules}
}

func (s *Static) ChatCompletion(ctx context.Context, model, prompt string, opts ports.CompletionOptions) (string, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, prompt)
	s.mu.Unlock()

	for _, rule := range s.Rules {
		if rule.PromptContains == "" || strings.Contains(strings.ToLower(prompt), strings.ToLower(rule.PromptContains)) {
			if rule.Err != nil {
				return "", rule.Err
			}
			return rule.Response, nil
		}
	}
	return "", fmt.Errorf("static llm client: no rule matched prompt %q", preview(prompt))
}

// CallCount returns how many ChatCompletion calls have been observed.
func (s *Static) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= 80 {
		return s
	}
	return string(r[:77]) + "..."
}
