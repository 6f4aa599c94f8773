package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
runner:
  default_samples: 5
  default_k: 2
  adaptive_k: true
  max_decomposition_depth: 3
  min_words_for_decomposition: 40
  human_low_margin_threshold: 1

red_flaggers:
  too_long:
    name: length
    max_tokens: 500
  go_syntax:
    name: syntax
    language: go
    extract_xml: true

domains:
  code_generation:
    decomposition:
      kind: decomposition
      prompt_template: "decompose: {{.task}}"
      model: fast
      samples: 5
    decomposition_discriminator:
      kind: decomposition_discriminator
      prompt_template: "vote: {{.options}}"
      model: fast
      samples: 3
    solver:
      kind: solve
      prompt_template: "solve: {{.task}}"
      model: strategic
      samples: 5
    solution_discriminator:
      kind: solution_discriminator
      prompt_template: "vote: {{.options}}"
      model: fast
      samples: 3
    applier: overwrite_file
    verifier: "go build ./..."
    default_red_flaggers: ["too_long"]
`

func writeTempConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoadParsesDomainsAndRunnerOptions(t *testing.T) {
	path := writeTempConfig(t)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.RunnerOptions.DefaultSamples)
	assert.Equal(t, 2, cfg.RunnerOptions.DefaultK)
	assert.True(t, cfg.RunnerOptions.AdaptiveK)

	domain, ok := cfg.Domains["code_generation"]
	require.True(t, ok)
	assert.Equal(t, "overwrite_file", domain.Applier)
	assert.Equal(t, "go build ./...", domain.Verifier)
	assert.Equal(t, []string{"too_long"}, domain.DefaultRedFlaggers)
	assert.Equal(t, 5, domain.Decomposition.Samples)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadRejectsUnknownRedFlaggerKind(t *testing.T) {
	path := writeConfig(t, `
runner:
  default_samples: 1
  default_k: 1
red_flaggers:
  bogus:
    name: lenght
domains: {}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown red-flagger kind "lenght"`)
}

func TestLoadRejectsNonPositiveMaxTokens(t *testing.T) {
	path := writeConfig(t, `
runner:
  default_samples: 1
  default_k: 1
red_flaggers:
  too_long:
    name: length
    max_tokens: 0
domains: {}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_tokens must be > 0")
}

func TestLoadRejectsMissingAgentBlock(t *testing.T) {
	path := writeConfig(t, `
runner:
  default_samples: 1
  default_k: 1
domains:
  code_generation:
    decomposition:
      kind: decomposition
      model: fast
    decomposition_discriminator:
      kind: decomposition_discriminator
      prompt_template: "vote: {{.options}}"
      model: fast
    solver:
      kind: solve
      prompt_template: "solve: {{.task}}"
      model: strategic
    solution_discriminator:
      kind: solution_discriminator
      prompt_template: "vote: {{.options}}"
      model: fast
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domains.code_generation.decomposition: missing required agent block")
}

func TestLoadRejectsNonPositiveK(t *testing.T) {
	path := writeConfig(t, `
runner:
  default_samples: 1
  default_k: 1
domains:
  code_generation:
    decomposition:
      kind: decomposition
      prompt_template: "decompose: {{.task}}"
      model: fast
      k: 0
    decomposition_discriminator:
      kind: decomposition_discriminator
      prompt_template: "vote: {{.options}}"
      model: fast
    solver:
      kind: solve
      prompt_template: "solve: {{.task}}"
      model: strategic
    solution_discriminator:
      kind: solution_discriminator
      prompt_template: "vote: {{.options}}"
      model: fast
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domains.code_generation.decomposition.k: must be >= 1")
}

func TestLoadRejectsNonPositiveRunnerDefaults(t *testing.T) {
	path := writeConfig(t, `
runner:
  default_samples: 0
  default_k: 0
domains: {}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner.default_samples: must be >= 1")
	assert.Contains(t, err.Error(), "runner.default_k: must be >= 1")
}

func TestLoadRejectsDanglingRedFlaggerReference(t *testing.T) {
	path := writeConfig(t, `
runner:
  default_samples: 1
  default_k: 1
domains:
  code_generation:
    decomposition:
      kind: decomposition
      prompt_template: "decompose: {{.task}}"
      model: fast
    decomposition_discriminator:
      kind: decomposition_discriminator
      prompt_template: "vote: {{.options}}"
      model: fast
    solver:
      kind: solve
      prompt_template: "solve: {{.task}}"
      model: strategic
    solution_discriminator:
      kind: solution_discriminator
      prompt_template: "vote: {{.options}}"
      model: fast
    default_red_flaggers: ["nonexistent"]
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nonexistent" has no matching red_flaggers entry`)
}

func TestResolverResolveDomain(t *testing.T) {
	path := writeTempConfig(t)
	cfg, err := Load(path)
	require.NoError(t, err)

	resolver := NewResolver(cfg)
	d, err := resolver.ResolveDomain("code_generation")
	require.NoError(t, err)
	assert.Equal(t, "overwrite_file", d.Applier)

	_, err = resolver.ResolveDomain("nonexistent")
	assert.Error(t, err)
}
