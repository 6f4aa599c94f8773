// Package config loads the YAML domain configuration that drives the
// runner: per-domain agent definitions plus the process-wide runner
// options, with an optional fsnotify watch for hot-reload.
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/makerflow/runner/internal/core/runner"
	"github.com/makerflow/runner/internal/core/workflow"
	coreerrors "github.com/makerflow/runner/pkg/errors"
)

// AgentSpec is the YAML shape of workflow.AgentConfig.
type AgentSpec struct {
	Kind           string   `yaml:"kind"`
	PromptTemplate string   `yaml:"prompt_template"`
	Model          string   `yaml:"model"`
	Samples        int      `yaml:"samples"`
	K              *int     `yaml:"k,omitempty"`
	RedFlaggers    []string `yaml:"red_flaggers,omitempty"`
}

func (a AgentSpec) toAgentConfig() workflow.AgentConfig {
	return workflow.AgentConfig{
		Kind:           a.Kind,
		PromptTemplate: a.PromptTemplate,
		Model:          a.Model,
		Samples:        a.Samples,
		K:              a.K,
		RedFlaggers:    a.RedFlaggers,
	}
}

// DomainSpec is the YAML shape of one entry under "domains".
type DomainSpec struct {
	Decomposition              AgentSpec `yaml:"decomposition"`
	DecompositionDiscriminator AgentSpec `yaml:"decomposition_discriminator"`
	Solver                     AgentSpec `yaml:"solver"`
	SolutionDiscriminator      AgentSpec `yaml:"solution_discriminator"`
	Applier                    string    `yaml:"applier"`
	Verifier                   string    `yaml:"verifier"`
	DefaultRedFlaggers         []string  `yaml:"default_red_flaggers,omitempty"`
}

// RedFlaggerSpec is the YAML shape of one entry under "red_flaggers".
type RedFlaggerSpec struct {
	Name           string `yaml:"name"`
	MaxTokens      int    `yaml:"max_tokens,omitempty"`
	Language       string `yaml:"language,omitempty"`
	ExtractXML     bool   `yaml:"extract_xml,omitempty"`
	Model          string `yaml:"model,omitempty"`
	PromptTemplate string `yaml:"prompt_template,omitempty"`
}

// File is the top-level YAML configuration document.
type File struct {
	Domains     map[string]DomainSpec     `yaml:"domains"`
	RedFlaggers map[string]RedFlaggerSpec `yaml:"red_flaggers,omitempty"`
	Runner      RunnerOptionsSpec         `yaml:"runner"`
}

// RunnerOptionsSpec is the YAML shape of runner.RunnerOptions.
type RunnerOptionsSpec struct {
	DefaultSamples           int  `yaml:"default_samples"`
	DefaultK                 int  `yaml:"default_k"`
	AdaptiveK                bool `yaml:"adaptive_k"`
	MaxDecompositionDepth    int  `yaml:"max_decomposition_depth"`
	MinWordsForDecomposition int  `yaml:"min_words_for_decomposition"`
	HumanRedFlagThreshold    int  `yaml:"human_red_flag_threshold"`
	HumanResampleThreshold   int  `yaml:"human_resample_threshold"`
	HumanLowMarginThreshold  int  `yaml:"human_low_margin_threshold"`
	StepByStep               bool `yaml:"step_by_step"`
}

func (r RunnerOptionsSpec) toRunnerOptions() runner.RunnerOptions {
	return runner.RunnerOptions{
		DefaultSamples:           r.DefaultSamples,
		DefaultK:                 r.DefaultK,
		AdaptiveK:                r.AdaptiveK,
		MaxDecompositionDepth:    r.MaxDecompositionDepth,
		MinWordsForDecomposition: r.MinWordsForDecomposition,
		HumanRedFlagThreshold:    r.HumanRedFlagThreshold,
		HumanResampleThreshold:   r.HumanResampleThreshold,
		HumanLowMarginThreshold:  r.HumanLowMarginThreshold,
		StepByStep:               r.StepByStep,
	}
}

// Resolved is the parsed, ready-to-use configuration.
type Resolved struct {
	Domains       map[string]runner.DomainRuntimeConfig
	RedFlaggers   map[string]RedFlaggerSpec
	RunnerOptions runner.RunnerOptions
}

// Load reads and parses the YAML configuration at path.
func Load(path string) (*Resolved, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &coreerrors.ConfigError{Message: fmt.Sprintf("reading %s: %v", path, err)}
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &coreerrors.ConfigError{Message: fmt.Sprintf("parsing %s: %v", path, err)}
	}

	if err := validate(&file); err != nil {
		return nil, err
	}

	domains := make(map[string]runner.DomainRuntimeConfig, len(file.Domains))
	for name, d := range file.Domains {
		domains[name] = runner.DomainRuntimeConfig{
			Decomposition:              d.Decomposition.toAgentConfig(),
			DecompositionDiscriminator: d.DecompositionDiscriminator.toAgentConfig(),
			Solver:                     d.Solver.toAgentConfig(),
			SolutionDiscriminator:      d.SolutionDiscriminator.toAgentConfig(),
			Applier:                    d.Applier,
			Verifier:                   d.Verifier,
			DefaultRedFlaggers:         d.DefaultRedFlaggers,
		}
	}

	return &Resolved{
		Domains:       domains,
		RedFlaggers:   file.RedFlaggers,
		RunnerOptions: file.Runner.toRunnerOptions(),
	}, nil
}

// Resolver adapts a *Resolved into runner.ConfigResolver. It is safe for
// concurrent use: Replace swaps in a freshly loaded Resolved (from the
// config Watcher) while ResolveDomain calls are in flight from FlowRunner.
type Resolver struct {
	mu  sync.RWMutex
	cfg *Resolved
}

func NewResolver(cfg *Resolved) *Resolver {
	return &Resolver{cfg: cfg}
}

func (r *Resolver) ResolveDomain(domain string) (runner.DomainRuntimeConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.cfg.Domains[domain]
	if !ok {
		return runner.DomainRuntimeConfig{}, &coreerrors.ConfigError{Domain: domain, Message: "unknown domain"}
	}
	return d, nil
}

// RunnerOptions returns the current process-wide runner options.
func (r *Resolver) RunnerOptions() runner.RunnerOptions {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.RunnerOptions
}

// RedFlaggerSpecs returns the current named red-flagger specs.
func (r *Resolver) RedFlaggerSpecs() map[string]RedFlaggerSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg.RedFlaggers
}

// Replace swaps in a freshly loaded configuration, used by the Watcher's
// hot-reload path.
func (r *Resolver) Replace(cfg *Resolved) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
}
