// Package redflag implements the three RedFlagger kinds named in the
// domain configuration: length, syntax, and llm_critique.
package redflag

import (
	"context"
	"fmt"
	"strings"

	"github.com/makerflow/runner/internal/core/ports"
)

// Length rejects a sample whose whitespace-token count exceeds MaxTokens.
type Length struct {
	MaxTokens int
}

func (l Length) Name() string { return "length" }

func (l Length) Check(_ context.Context, content string) ports.RedFlagVerdict {
	n := len(strings.Fields(content))
	if n > l.MaxTokens {
		return ports.RedFlagVerdict{Flagged: true, Reason: fmt.Sprintf("%d tokens exceeds max_tokens=%d", n, l.MaxTokens)}
	}
	return ports.RedFlagVerdict{}
}
