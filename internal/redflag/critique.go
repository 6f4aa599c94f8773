package redflag

import (
	"context"
	"strings"

	"github.com/makerflow/runner/internal/core/ports"
)

// Critique loops a sample back into an LlmClient: the rendered critique
// prompt asks the model to respond "REJECT <reason>" or "OK". A leading
// REJECT (case-insensitive) flags the sample with the remainder as reason.
type Critique struct {
	Model          string
	PromptTemplate string
	LLM            ports.LlmClient
	Renderer       ports.PromptRenderer
}

func (c Critique) Name() string { return "llm_critique" }

func (c Critique) Check(ctx context.Context, content string) ports.RedFlagVerdict {
	prompt, err := c.Renderer.Render(ctx, c.PromptTemplate, map[string]any{"sample": content})
	if err != nil {
		// A renderer failure degrades to "not flagged" — RedFlagger.Check
		// never surfaces an error out of the core.
		return ports.RedFlagVerdict{}
	}
	resp, err := c.LLM.ChatCompletion(ctx, c.Model, prompt, ports.CompletionOptions{})
	if err != nil {
		return ports.RedFlagVerdict{}
	}
	resp = strings.TrimSpace(resp)
	if len(resp) >= 6 && strings.EqualFold(resp[:6], "REJECT") {
		return ports.RedFlagVerdict{Flagged: true, Reason: strings.TrimSpace(resp[6:])}
	}
	return ports.RedFlagVerdict{}
}
