package redflag

import (
	"fmt"

	"github.com/makerflow/runner/internal/core/ports"
)

// Spec is one entry of a domain's red_flaggers configuration list.
type Spec struct {
	Name           string
	MaxTokens      int
	Language       string
	ExtractXML     bool
	Model          string
	PromptTemplate string
}

// Registry builds concrete RedFlagger instances from named specs declared
// in domain configuration.
type Registry struct {
	specs map[string]Spec
	llm   ports.LlmClient
	rend  ports.PromptRenderer
}

// NewRegistry builds a Registry over the given named specs. llm and rend
// are used to construct any "llm_critique" flaggers encountered.
func NewRegistry(specs map[string]Spec, llm ports.LlmClient, rend ports.PromptRenderer) *Registry {
	return &Registry{specs: specs, llm: llm, rend: rend}
}

// Resolve turns a list of flagger names into concrete RedFlagger instances.
// A name with no matching spec, or a spec whose Name isn't a recognized
// flagger kind, is a configuration defect and fails the whole resolution
// rather than silently dropping or mismapping it.
func (r *Registry) Resolve(names []string) ([]ports.RedFlagger, error) {
	out := make([]ports.RedFlagger, 0, len(names))
	for _, name := range names {
		spec, ok := r.specs[name]
		if !ok {
			return nil, fmt.Errorf("red flagger %q: no such spec configured", name)
		}
		flagger, err := r.build(spec)
		if err != nil {
			return nil, fmt.Errorf("red flagger %q: %w", name, err)
		}
		out = append(out, flagger)
	}
	return out, nil
}

func (r *Registry) build(spec Spec) (ports.RedFlagger, error) {
	switch spec.Name {
	case "length":
		return Length{MaxTokens: spec.MaxTokens}, nil
	case "syntax":
		return Syntax{Language: spec.Language, ExtractXML: spec.ExtractXML}, nil
	case "llm_critique":
		return Critique{Model: spec.Model, PromptTemplate: spec.PromptTemplate, LLM: r.llm, Renderer: r.rend}, nil
	default:
		return nil, fmt.Errorf("unknown red-flagger kind %q", spec.Name)
	}
}
