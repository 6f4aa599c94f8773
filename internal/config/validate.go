package config

import (
	"fmt"
	"strings"

	coreerrors "github.com/makerflow/runner/pkg/errors"
)

// knownRedFlaggerKinds are the Spec.Name values redflag.Registry.build
// recognizes. Kept in sync with internal/redflag/registry.go by hand since
// config must not import the redflag package (it would invert the
// core -> adapter dependency direction).
var knownRedFlaggerKinds = map[string]bool{
	"length":       true,
	"syntax":       true,
	"llm_critique": true,
}

// validate checks a parsed File for defects that would otherwise surface as
// confusing failures deep inside FlowRunner or redflag.Registry: an unknown
// red-flagger kind, a non-positive token budget, a domain missing a required
// agent block, or a non-positive sample/k count. Every problem found is
// aggregated into one ConfigError rather than returning on the first one, so
// a misconfigured domain file reports all of its defects at once.
func validate(file *File) error {
	var problems []string

	for name, spec := range file.RedFlaggers {
		path := fmt.Sprintf("red_flaggers.%s", name)
		if !knownRedFlaggerKinds[spec.Name] {
			problems = append(problems, fmt.Sprintf("%s: unknown red-flagger kind %q", path, spec.Name))
			continue
		}
		if spec.Name == "length" && spec.MaxTokens <= 0 {
			problems = append(problems, fmt.Sprintf("%s: max_tokens must be > 0, got %d", path, spec.MaxTokens))
		}
	}

	for domainName, d := range file.Domains {
		path := fmt.Sprintf("domains.%s", domainName)
		problems = append(problems, validateAgentSpec(path+".decomposition", d.Decomposition)...)
		problems = append(problems, validateAgentSpec(path+".decomposition_discriminator", d.DecompositionDiscriminator)...)
		problems = append(problems, validateAgentSpec(path+".solver", d.Solver)...)
		problems = append(problems, validateAgentSpec(path+".solution_discriminator", d.SolutionDiscriminator)...)

		problems = append(problems, validateRedFlaggerRefs(path+".default_red_flaggers", d.DefaultRedFlaggers, file.RedFlaggers)...)
		problems = append(problems, validateRedFlaggerRefs(path+".decomposition.red_flaggers", d.Decomposition.RedFlaggers, file.RedFlaggers)...)
		problems = append(problems, validateRedFlaggerRefs(path+".decomposition_discriminator.red_flaggers", d.DecompositionDiscriminator.RedFlaggers, file.RedFlaggers)...)
		problems = append(problems, validateRedFlaggerRefs(path+".solver.red_flaggers", d.Solver.RedFlaggers, file.RedFlaggers)...)
		problems = append(problems, validateRedFlaggerRefs(path+".solution_discriminator.red_flaggers", d.SolutionDiscriminator.RedFlaggers, file.RedFlaggers)...)
	}

	if file.Runner.DefaultSamples < 1 {
		problems = append(problems, fmt.Sprintf("runner.default_samples: must be >= 1, got %d", file.Runner.DefaultSamples))
	}
	if file.Runner.DefaultK < 1 {
		problems = append(problems, fmt.Sprintf("runner.default_k: must be >= 1, got %d", file.Runner.DefaultK))
	}

	if len(problems) == 0 {
		return nil
	}
	return &coreerrors.ConfigError{Message: strings.Join(problems, "; ")}
}

// validateAgentSpec checks one agent block. Samples uses 0 as a sentinel
// meaning "inherit the runner-wide default" (see runner.withDefaultSamples),
// so only a negative value is rejected there; K inherits the default when
// omitted (nil), so an explicit k must be >= 1. The "samples<1" floor
// applies to the runner-wide default itself, validated separately in
// validate.
func validateAgentSpec(path string, a AgentSpec) []string {
	var problems []string
	if strings.TrimSpace(a.PromptTemplate) == "" {
		problems = append(problems, fmt.Sprintf("%s: missing required agent block (prompt_template is empty)", path))
	}
	if a.Samples < 0 {
		problems = append(problems, fmt.Sprintf("%s.samples: must be >= 0 (0 inherits the runner default), got %d", path, a.Samples))
	}
	if a.K != nil && *a.K < 1 {
		problems = append(problems, fmt.Sprintf("%s.k: must be >= 1, got %d", path, *a.K))
	}
	return problems
}

// validateRedFlaggerRefs checks that every name in names has a matching
// entry in redFlaggers, catching a typo'd reference at load time instead of
// at the redflag.Registry.Resolve call buried inside the first Execute.
func validateRedFlaggerRefs(path string, names []string, redFlaggers map[string]RedFlaggerSpec) []string {
	var problems []string
	for _, name := range names {
		if _, ok := redFlaggers[name]; !ok {
			problems = append(problems, fmt.Sprintf("%s: %q has no matching red_flaggers entry", path, name))
		}
	}
	return problems
}
